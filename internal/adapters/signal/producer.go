package signal

import (
	"context"
	"encoding/json"

	"github.com/jiyeyuran/mediasoup-go"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

func (ctl *Controller) handleCreateProducerTransport(ctx context.Context, sid core.SessionID, c *WsConn, req request) {
	info, err := ctl.Orch.CreateProducerTransport(ctx, sid)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	ctl.respond(c, req, info)
}

type connectTransportPayload struct {
	DtlsParameters mediasoup.DtlsParameters `json:"dtlsParameters"`
}

func (ctl *Controller) handleConnectProducerTransport(ctx context.Context, sid core.SessionID, c *WsConn, req request) {
	var p connectTransportPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		ctl.reject(c, req, err)
		return
	}
	if err := ctl.Orch.ConnectProducerTransport(ctx, sid, p.DtlsParameters); err != nil {
		ctl.reject(c, req, err)
		return
	}
	ctl.ack(c, req)
}

func (ctl *Controller) handleProduce(ctx context.Context, sid core.SessionID, c *WsConn, req request) {
	var p struct {
		Kind          string                  `json:"kind"`
		RtpParameters mediasoup.RtpParameters `json:"rtpParameters"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		ctl.reject(c, req, err)
		return
	}
	kind, err := domain.ParseKind(p.Kind)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	id, err := ctl.Orch.Produce(ctx, sid, kind, p.RtpParameters)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	ctl.respond(c, req, struct {
		ID string `json:"id"`
	}{ID: id})
}
