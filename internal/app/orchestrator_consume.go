package app

import (
	"context"
	"fmt"

	"github.com/jiyeyuran/mediasoup-go"
	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

// CreateConsumerTransport allocates this viewer's transport, keyed by its
// session id. The close cascade dropping the viewer's consumers is registered
// by the room.
func (o *Orchestrator) CreateConsumerTransport(ctx context.Context, sid core.SessionID) (core.TransportInfo, error) {
	room, err := o.roomOf(sid, false)
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
	if err := room.SetConsumerTransport(sid, t); err != nil {
		t.Close()
		return core.TransportInfo{}, err
	}
	log.Info().Str("module", "app").Str("sid", string(sid)).Str("transport", t.ID()).Msg("consumer transport created")
	return t.Info(), nil
}

// ConnectConsumerTransport binds the client's DTLS parameters to this viewer's
// transport.
func (o *Orchestrator) ConnectConsumerTransport(ctx context.Context, sid core.SessionID, dtls mediasoup.DtlsParameters) error {
	room, err := o.roomOf(sid, false)
	if err != nil {
		return err
	}
	t, err := room.ConsumerTransport(sid)
	if err != nil {
		return err
	}
	if err := t.Connect(ctx, dtls); err != nil {
		return fmt.Errorf("%w: connect transport: %v", core.ErrGatewayFailure, err)
	}
	return nil
}

// Consume binds this viewer to the room's producer of the given kind. When the
// producer does not exist yet the result is (nil, nil): the client gets a
// placeholder instead of an error and retries after newProducer. Video
// consumers start paused; the client resumes once it is ready to render.
func (o *Orchestrator) Consume(ctx context.Context, sid core.SessionID, kind domain.Kind, caps mediasoup.RtpCapabilities) (*core.ConsumerInfo, error) {
	room, err := o.roomOf(sid, false)
	if err != nil {
		return nil, err
	}
	t, err := room.ConsumerTransport(sid)
	if err != nil {
		return nil, err
	}
	producer, ok := room.Producer(kind)
	if !ok {
		log.Info().Str("module", "app").Str("sid", string(sid)).Str("kind", string(kind)).Msg("consume before produce, sending placeholder")
		return nil, nil
	}
	router, err := room.AwaitRouter(ctx)
	if err != nil {
		return nil, err
	}
	if !router.CanConsume(producer.ID(), caps) {
		return nil, fmt.Errorf("%w: cannot consume producer %s", core.ErrGatewayFailure, producer.ID())
	}
	c, err := t.Consume(ctx, producer.ID(), caps, kind == domain.KindVideo)
	if err != nil {
		return nil, fmt.Errorf("%w: consume %s: %v", core.ErrGatewayFailure, kind, err)
	}
	if err := room.SetConsumer(sid, kind, c); err != nil {
		c.Close()
		return nil, err
	}

	producerSID := room.ProducerSID()
	c.OnProducerClose(func() {
		room.RemoveConsumerIf(sid, kind, c)
		c.Close()
		o.push(sid, "producerClosed", ProducerClosedPayload{
			LocalID:  sid,
			RemoteID: producerSID,
			Kind:     kind,
		})
	})

	info := c.Info()
	log.Info().Str("module", "app").Str("sid", string(sid)).Str("kind", string(kind)).Str("consumer", c.ID()).Msg("consumer ready")
	return &info, nil
}

// Resume unpauses this viewer's consumer of the given kind. Resuming an
// already-active consumer is idempotent on the engine side.
func (o *Orchestrator) Resume(ctx context.Context, sid core.SessionID, kind domain.Kind) error {
	room, err := o.roomOf(sid, false)
	if err != nil {
		return err
	}
	c, ok := room.Consumer(sid, kind)
	if !ok {
		return core.ErrConsumerNotFound
	}
	if err := c.Resume(ctx); err != nil {
		return fmt.Errorf("%w: resume %s: %v", core.ErrGatewayFailure, kind, err)
	}
	return nil
}
