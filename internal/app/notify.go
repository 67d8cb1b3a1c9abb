package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

// Server-pushed notification payloads. Pushes carry no request id; they are
// enqueued onto the member's send channel right after the state mutation that
// causes them, with no ordering promise relative to the triggering caller's
// own ack.

type NewProducerPayload struct {
	Kind domain.Kind `json:"kind"`
}

type ProducerClosedPayload struct {
	LocalID  core.SessionID `json:"localId"`
	RemoteID core.SessionID `json:"remoteId"`
	Kind     domain.Kind    `json:"kind"`
}

type pushEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (o *Orchestrator) push(sid core.SessionID, typ string, payload any) {
	conn, ok := o.Registry.Signal(sid)
	if !ok {
		return
	}
	b, err := json.Marshal(pushEnvelope{Type: typ, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "app").Str("type", typ).Msg("push marshal")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "app").Str("sid", string(sid)).Str("type", typ).Msg("push dropped")
	}
}

func (o *Orchestrator) broadcast(name domain.RoomName, except core.SessionID, typ string, payload any) {
	for _, m := range o.Registry.MembersOfRoom(name) {
		if m.SID == except {
			continue
		}
		o.push(m.SID, typ, payload)
	}
}
