package signal

import (
	"context"
	"encoding/json"

	"github.com/jiyeyuran/mediasoup-go"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

func (ctl *Controller) handleCreateConsumerTransport(ctx context.Context, sid core.SessionID, c *WsConn, req request) {
	info, err := ctl.Orch.CreateConsumerTransport(ctx, sid)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	ctl.respond(c, req, info)
}

func (ctl *Controller) handleConnectConsumerTransport(ctx context.Context, sid core.SessionID, c *WsConn, req request) {
	var p connectTransportPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		ctl.reject(c, req, err)
		return
	}
	if err := ctl.Orch.ConnectConsumerTransport(ctx, sid, p.DtlsParameters); err != nil {
		ctl.reject(c, req, err)
		return
	}
	ctl.ack(c, req)
}

// consumePayload mirrors ConsumerInfo with nullable identifiers: when there is
// no producer to consume yet, the ids are null and the client retries after a
// newProducer push.
type consumePayload struct {
	ProducerID     *string                 `json:"producerId"`
	ID             *string                 `json:"id"`
	Kind           domain.Kind             `json:"kind"`
	RtpParameters  mediasoup.RtpParameters `json:"rtpParameters"`
	Type           mediasoup.ConsumerType  `json:"type,omitempty"`
	ProducerPaused bool                    `json:"producerPaused"`
}

func (ctl *Controller) handleConsume(ctx context.Context, sid core.SessionID, c *WsConn, req request) {
	var p struct {
		Kind            string                    `json:"kind"`
		RtpCapabilities mediasoup.RtpCapabilities `json:"rtpCapabilities"`
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
	info, err := ctl.Orch.Consume(ctx, sid, kind, p.RtpCapabilities)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	if info == nil {
		ctl.respond(c, req, consumePayload{Kind: kind})
		return
	}
	ctl.respond(c, req, consumePayload{
		ProducerID:     &info.ProducerID,
		ID:             &info.ID,
		Kind:           info.Kind,
		RtpParameters:  info.RtpParameters,
		Type:           info.Type,
		ProducerPaused: info.ProducerPaused,
	})
}

func (ctl *Controller) handleResume(ctx context.Context, sid core.SessionID, c *WsConn, req request) {
	var p struct {
		Kind string `json:"kind"`
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
	if err := ctl.Orch.Resume(ctx, sid, kind); err != nil {
		ctl.reject(c, req, err)
		return
	}
	ctl.ack(c, req)
}
