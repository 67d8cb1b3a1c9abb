package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

type roomPayload struct {
	Room string `json:"room"`
}

func (ctl *Controller) handleCreateRoom(sid core.SessionID, c *WsConn, req request) {
	var p roomPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		ctl.reject(c, req, err)
		return
	}
	name, err := domain.ParseRoomName(p.Room)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	if err := ctl.Orch.CreateRoom(sid, name); err != nil {
		ctl.reject(c, req, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("room created")
	ctl.ack(c, req)
}

func (ctl *Controller) handleConnectRoom(sid core.SessionID, c *WsConn, req request) {
	var p roomPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		ctl.reject(c, req, err)
		return
	}
	name, err := domain.ParseRoomName(p.Room)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	if err := ctl.Orch.ConnectRoom(sid, name); err != nil {
		ctl.reject(c, req, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("joined room")
	ctl.ack(c, req)
}

func (ctl *Controller) handleRouterRtpCapabilities(sid core.SessionID, c *WsConn, req request) {
	caps, err := ctl.Orch.RouterCapabilities(sid)
	if err != nil {
		ctl.reject(c, req, err)
		return
	}
	ctl.respond(c, req, caps)
}
