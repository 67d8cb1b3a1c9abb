package app

import (
	"context"
	"fmt"

	"github.com/jiyeyuran/mediasoup-go"
	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

// CreateProducerTransport allocates the room's single producer-side transport.
// Producer-role only. The transport's close cascade (clear producers, clear
// the transport reference) is registered by the room.
func (o *Orchestrator) CreateProducerTransport(ctx context.Context, sid core.SessionID) (core.TransportInfo, error) {
	room, err := o.roomOf(sid, true)
	if err != nil {
		return core.TransportInfo{}, err
	}
	router, err := room.AwaitRouter(ctx)
	if err != nil {
		return core.TransportInfo{}, err
	}
	t, err := router.CreateTransport(ctx)
	if err != nil {
		return core.TransportInfo{}, fmt.Errorf("%w: create transport: %v", core.ErrGatewayFailure, err)
	}
	// The room may have been destroyed during the engine await.
	if err := room.SetProducerTransport(t); err != nil {
		t.Close()
		return core.TransportInfo{}, err
	}
	log.Info().Str("module", "app").Str("sid", string(sid)).Str("transport", t.ID()).Msg("producer transport created")
	return t.Info(), nil
}

// ConnectProducerTransport binds the client's DTLS parameters to the producer
// transport.
func (o *Orchestrator) ConnectProducerTransport(ctx context.Context, sid core.SessionID, dtls mediasoup.DtlsParameters) error {
	room, err := o.roomOf(sid, true)
	if err != nil {
		return err
	}
	t, err := room.ProducerTransport()
	if err != nil {
		return err
	}
	if err := t.Connect(ctx, dtls); err != nil {
		return fmt.Errorf("%w: connect transport: %v", core.ErrGatewayFailure, err)
	}
	return nil
}

// Produce creates the room's producer of the given kind and announces it to
// every other member. A second produce of the same kind replaces the previous
// producer, closing it (which in turn tears down its consumers).
func (o *Orchestrator) Produce(ctx context.Context, sid core.SessionID, kind domain.Kind, rtp mediasoup.RtpParameters) (string, error) {
	room, err := o.roomOf(sid, true)
	if err != nil {
		return "", err
	}
	t, err := room.ProducerTransport()
	if err != nil {
		return "", err
	}
	p, err := t.Produce(ctx, kind, rtp)
	if err != nil {
		return "", fmt.Errorf("%w: produce %s: %v", core.ErrGatewayFailure, kind, err)
	}
	replaced, err := room.SetProducer(kind, p)
	if err != nil {
		p.Close()
		return "", err
	}
	if replaced != nil {
		replaced.Close()
	}

	log.Info().Str("module", "app").Str("sid", string(sid)).Str("kind", string(kind)).Str("producer", p.ID()).Msg("producing")
	o.broadcast(room.Name(), sid, "newProducer", NewProducerPayload{Kind: kind})
	return p.ID(), nil
}
