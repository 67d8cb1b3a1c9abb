package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/jiyeyuran/mediasoup-go"
	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/domain"
)

// Room is one broadcast session: a single producer endpoint feeding any number
// of viewers. It exclusively owns the engine objects it stores; endpoints only
// hold the room name.
//
// The router is created asynchronously after construction. The room starts
// Pending and becomes Ready when initRouter resolves; ready is closed exactly
// once either way. The mutex is never held across a gateway call, so every
// setter re-validates room state before storing an engine object that was
// created while the lock was released.
type Room struct {
	name        domain.RoomName
	producerSID SessionID

	ready chan struct{}

	mu        sync.RWMutex
	router    Router
	routerErr error
	closed    bool

	producerTransport Transport
	audioProducer     Producer
	videoProducer     Producer

	consumerTransports map[SessionID]Transport
	audioConsumers     map[SessionID]Consumer
	videoConsumers     map[SessionID]Consumer
}

func NewRoom(name domain.RoomName, producerSID SessionID) *Room {
	return &Room{
		name:               name,
		producerSID:        producerSID,
		ready:              make(chan struct{}),
		consumerTransports: make(map[SessionID]Transport),
		audioConsumers:     make(map[SessionID]Consumer),
		videoConsumers:     make(map[SessionID]Consumer),
	}
}

func (r *Room) Name() domain.RoomName { return r.name }

func (r *Room) ProducerSID() SessionID { return r.producerSID }

func (r *Room) IsProducer(sid SessionID) bool { return sid == r.producerSID }

// initRouter resolves the Pending state. The room may already be closed by the
// time the router arrives; the fresh router is then closed instead of stored.
func (r *Room) initRouter(ctx context.Context, gw Gateway) {
	router, err := gw.CreateRouter(ctx)

	var orphan Router
	r.mu.Lock()
	switch {
	case err != nil:
		r.routerErr = fmt.Errorf("%w: create router: %v", ErrGatewayFailure, err)
	case r.closed:
		orphan = router
		r.routerErr = ErrRoomClosed
	default:
		r.router = router
	}
	r.mu.Unlock()
	close(r.ready)

	if orphan != nil {
		orphan.Close()
	}
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.name)).Msg("router create failed")
		return
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("router ready")
}

// AwaitRouter blocks until the routing context resolves or ctx is done.
func (r *Room) AwaitRouter(ctx context.Context) (Router, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.ready:
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.routerErr != nil {
		return nil, r.routerErr
	}
	if r.closed {
		return nil, ErrRoomClosed
	}
	return r.router, nil
}

// RouterCapabilities is the non-blocking readiness probe: a capability query
// while the room is still Pending is rejected, not delayed.
func (r *Room) RouterCapabilities() (mediasoup.RtpCapabilities, error) {
	select {
	case <-r.ready:
	default:
		return mediasoup.RtpCapabilities{}, ErrRouterNotReady
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.routerErr != nil {
		return mediasoup.RtpCapabilities{}, r.routerErr
	}
	if r.closed {
		return mediasoup.RtpCapabilities{}, ErrRoomClosed
	}
	return r.router.RtpCapabilities(), nil
}

// SetProducerTransport stores the room's single producer-side transport and
// registers the close cascade: when the transport closes, both producers are
// closed and the transport reference is cleared.
func (r *Room) SetProducerTransport(t Transport) error {
	t.OnClose(func() { r.onProducerTransportClose(t) })

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	old := r.producerTransport
	r.producerTransport = t
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (r *Room) onProducerTransportClose(t Transport) {
	var producers []Producer
	r.mu.Lock()
	if r.producerTransport != t {
		r.mu.Unlock()
		return
	}
	r.producerTransport = nil
	if r.audioProducer != nil {
		producers = append(producers, r.audioProducer)
		r.audioProducer = nil
	}
	if r.videoProducer != nil {
		producers = append(producers, r.videoProducer)
		r.videoProducer = nil
	}
	r.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("producer transport closed")
}

func (r *Room) ProducerTransport() (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.producerTransport == nil {
		return nil, ErrTransportNotFound
	}
	return r.producerTransport, nil
}

// SetProducer stores a freshly produced engine producer, re-validating that the
// room is still open and the producer transport still present. It returns the
// producer of the same kind it replaced, if any; the caller closes it.
func (r *Room) SetProducer(kind domain.Kind, p Producer) (Producer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomClosed
	}
	if r.producerTransport == nil {
		return nil, ErrTransportNotFound
	}
	var replaced Producer
	switch kind {
	case domain.KindAudio:
		replaced, r.audioProducer = r.audioProducer, p
	case domain.KindVideo:
		replaced, r.videoProducer = r.videoProducer, p
	default:
		return nil, domain.ErrBadKind
	}
	return replaced, nil
}

func (r *Room) Producer(kind domain.Kind) (Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var p Producer
	switch kind {
	case domain.KindAudio:
		p = r.audioProducer
	case domain.KindVideo:
		p = r.videoProducer
	}
	return p, p != nil
}

// SetConsumerTransport stores a viewer's transport and registers the close
// cascade that drops that viewer's consumers.
func (r *Room) SetConsumerTransport(sid SessionID, t Transport) error {
	t.OnClose(func() { r.onConsumerTransportClose(sid, t) })

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	old := r.consumerTransports[sid]
	r.consumerTransports[sid] = t
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (r *Room) onConsumerTransportClose(sid SessionID, t Transport) {
	var consumers []Consumer
	r.mu.Lock()
	if r.consumerTransports[sid] != t {
		r.mu.Unlock()
		return
	}
	delete(r.consumerTransports, sid)
	if c, ok := r.audioConsumers[sid]; ok {
		consumers = append(consumers, c)
		delete(r.audioConsumers, sid)
	}
	if c, ok := r.videoConsumers[sid]; ok {
		consumers = append(consumers, c)
		delete(r.videoConsumers, sid)
	}
	r.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
}

func (r *Room) ConsumerTransport(sid SessionID) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.consumerTransports[sid]
	if !ok {
		return nil, ErrTransportNotFound
	}
	return t, nil
}

// SetConsumer stores a viewer's consumer, re-validating room and transport
// state after the engine await. Replaced consumers of the same kind are closed.
func (r *Room) SetConsumer(sid SessionID, kind domain.Kind, c Consumer) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	if _, ok := r.consumerTransports[sid]; !ok {
		r.mu.Unlock()
		return ErrTransportNotFound
	}
	m, err := r.consumersFor(kind)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	old := m[sid]
	m[sid] = c
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (r *Room) Consumer(sid SessionID, kind domain.Kind) (Consumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, err := r.consumersFor(kind)
	if err != nil {
		return nil, false
	}
	c, ok := m[sid]
	return c, ok
}

// RemoveConsumerIf drops the viewer's consumer of the given kind if it is still
// the same instance. Used by the producer-close cascade so a consumer replaced
// in the meantime is left alone.
func (r *Room) RemoveConsumerIf(sid SessionID, kind domain.Kind, c Consumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.consumersFor(kind)
	if err != nil {
		return false
	}
	if m[sid] != c {
		return false
	}
	delete(m, sid)
	return true
}

// consumersFor must be called with the lock held.
func (r *Room) consumersFor(kind domain.Kind) (map[SessionID]Consumer, error) {
	switch kind {
	case domain.KindAudio:
		return r.audioConsumers, nil
	case domain.KindVideo:
		return r.videoConsumers, nil
	}
	return nil, domain.ErrBadKind
}

// RemoveViewer drops exactly one viewer's consumers and transport, leaving the
// producer and every other viewer untouched. Consumers close before the
// transport. Safe on viewers with no entries.
func (r *Room) RemoveViewer(sid SessionID) {
	var consumers []Consumer
	var transport Transport
	r.mu.Lock()
	if c, ok := r.audioConsumers[sid]; ok {
		consumers = append(consumers, c)
		delete(r.audioConsumers, sid)
	}
	if c, ok := r.videoConsumers[sid]; ok {
		consumers = append(consumers, c)
		delete(r.videoConsumers, sid)
	}
	if t, ok := r.consumerTransports[sid]; ok {
		transport = t
		delete(r.consumerTransports, sid)
	}
	r.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	if transport != nil {
		transport.Close()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("viewer removed")
}

// Close tears the whole room down: producers, then the producer transport,
// then per-viewer consumers before their transports, then the router.
// Idempotent; Closed is terminal.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	producers := make([]Producer, 0, 2)
	if r.audioProducer != nil {
		producers = append(producers, r.audioProducer)
		r.audioProducer = nil
	}
	if r.videoProducer != nil {
		producers = append(producers, r.videoProducer)
		r.videoProducer = nil
	}
	producerTransport := r.producerTransport
	r.producerTransport = nil

	consumers := make([]Consumer, 0, len(r.audioConsumers)+len(r.videoConsumers))
	for sid, c := range r.audioConsumers {
		consumers = append(consumers, c)
		delete(r.audioConsumers, sid)
	}
	for sid, c := range r.videoConsumers {
		consumers = append(consumers, c)
		delete(r.videoConsumers, sid)
	}
	viewerTransports := make([]Transport, 0, len(r.consumerTransports))
	for sid, t := range r.consumerTransports {
		viewerTransports = append(viewerTransports, t)
		delete(r.consumerTransports, sid)
	}
	router := r.router
	r.router = nil
	r.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	if producerTransport != nil {
		producerTransport.Close()
	}
	for _, c := range consumers {
		c.Close()
	}
	for _, t := range viewerTransports {
		t.Close()
	}
	if router != nil {
		router.Close()
	}
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("room closed")
}
