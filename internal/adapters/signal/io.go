package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/metrics"
)

// request is the client-to-server envelope. The id correlates exactly one
// response or error; payload layout depends on the type.
type request struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type response struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(sid)
		c.Close()
		cancel()
		metrics.SessionsConnected.Dec()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleRequest(ctx, sid, c, data)
		}
	}
}

func (ctl *Controller) handleRequest(ctx context.Context, sid core.SessionID, c *WsConn, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	metrics.SignalRequests.WithLabelValues(req.Type).Inc()

	switch req.Type {
	case "createRoom":
		ctl.handleCreateRoom(sid, c, req)
	case "connectRoom":
		ctl.handleConnectRoom(sid, c, req)
	case "getRouterRtpCapabilities":
		ctl.handleRouterRtpCapabilities(sid, c, req)
	case "createProducerTransport":
		ctl.handleCreateProducerTransport(ctx, sid, c, req)
	case "connectProducerTransport":
		ctl.handleConnectProducerTransport(ctx, sid, c, req)
	case "produce":
		ctl.handleProduce(ctx, sid, c, req)
	case "createConsumerTransport":
		ctl.handleCreateConsumerTransport(ctx, sid, c, req)
	case "connectConsumerTransport":
		ctl.handleConnectConsumerTransport(ctx, sid, c, req)
	case "consume":
		ctl.handleConsume(ctx, sid, c, req)
	case "resume":
		ctl.handleResume(ctx, sid, c, req)
	default:
		log.Warn().Str("module", "signal").Str("type", req.Type).Msg("unknown request")
		ctl.reject(c, req, errors.New("unknown request type"))
	}
}

func (ctl *Controller) respond(c *WsConn, req request, payload any) {
	ctl.sendJSON(c, response{ID: req.ID, Type: "response", Payload: payload})
}

// ack is a response with an empty payload.
func (ctl *Controller) ack(c *WsConn, req request) {
	ctl.respond(c, req, struct{}{})
}

func (ctl *Controller) reject(c *WsConn, req request, err error) {
	metrics.SignalErrors.WithLabelValues(req.Type).Inc()
	log.Warn().Err(err).Str("module", "signal").Str("type", req.Type).Msg("request rejected")
	ctl.sendJSON(c, response{ID: req.ID, Type: "error", Error: err.Error()})
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
