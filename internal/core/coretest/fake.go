// Package coretest provides an in-memory media gateway for tests. It mirrors
// the engine behavior the broker depends on: transports hand out ids and
// connection info, closing a producer fires producerclose on its live
// consumers, and closing a transport fires its close observers.
package coretest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jiyeyuran/mediasoup-go"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

type FakeGateway struct {
	// CreateRouterFunc overrides router creation, e.g. to block until a test
	// releases it or to fail.
	CreateRouterFunc func(ctx context.Context) (core.Router, error)

	mu      sync.Mutex
	routers []*FakeRouter
}

func NewFakeGateway() *FakeGateway { return &FakeGateway{} }

func (g *FakeGateway) CreateRouter(ctx context.Context) (core.Router, error) {
	if g.CreateRouterFunc != nil {
		return g.CreateRouterFunc(ctx)
	}
	r := NewFakeRouter()
	g.mu.Lock()
	g.routers = append(g.routers, r)
	g.mu.Unlock()
	return r, nil
}

func (g *FakeGateway) Routers() []*FakeRouter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*FakeRouter(nil), g.routers...)
}

type FakeRouter struct {
	Caps mediasoup.RtpCapabilities

	mu          sync.Mutex
	canConsume  bool
	closed      bool
	nextID      int
	transports  []*FakeTransport
	producers   map[string]*FakeProducer
	consumersOf map[string][]*FakeConsumer
}

func NewFakeRouter() *FakeRouter {
	return &FakeRouter{
		canConsume:  true,
		producers:   make(map[string]*FakeProducer),
		consumersOf: make(map[string][]*FakeConsumer),
	}
}

func (r *FakeRouter) RtpCapabilities() mediasoup.RtpCapabilities { return r.Caps }

// SetCanConsume flips the capability check for every subsequent Consume.
func (r *FakeRouter) SetCanConsume(ok bool) {
	r.mu.Lock()
	r.canConsume = ok
	r.mu.Unlock()
}

func (r *FakeRouter) CanConsume(producerID string, _ mediasoup.RtpCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.canConsume {
		return false
	}
	_, ok := r.producers[producerID]
	return ok
}

func (r *FakeRouter) CreateTransport(context.Context) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := &FakeTransport{router: r, id: fmt.Sprintf("transport-%d", r.nextID)}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *FakeRouter) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *FakeRouter) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *FakeRouter) newID(prefix string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *FakeRouter) registerProducer(p *FakeProducer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *FakeRouter) registerConsumer(c *FakeConsumer) {
	r.mu.Lock()
	r.consumersOf[c.producerID] = append(r.consumersOf[c.producerID], c)
	r.mu.Unlock()
}

func (r *FakeRouter) dropConsumer(c *FakeConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.consumersOf[c.producerID][:0]
	for _, other := range r.consumersOf[c.producerID] {
		if other != c {
			live = append(live, other)
		}
	}
	r.consumersOf[c.producerID] = live
}

// producerClosed fires producerclose on every consumer still bound to the
// producer, as the engine does.
func (r *FakeRouter) producerClosed(p *FakeProducer) {
	r.mu.Lock()
	delete(r.producers, p.id)
	consumers := r.consumersOf[p.id]
	delete(r.consumersOf, p.id)
	r.mu.Unlock()
	for _, c := range consumers {
		c.fireProducerClose()
	}
}

type FakeTransport struct {
	router *FakeRouter
	id     string

	mu        sync.Mutex
	closed    bool
	connected bool
	onClose   []func()

	// Failure injection for the next engine call.
	ConnectErr error
	ProduceErr error
	ConsumeErr error
}

func (t *FakeTransport) ID() string { return t.id }

func (t *FakeTransport) Info() core.TransportInfo {
	return core.TransportInfo{ID: t.id}
}

func (t *FakeTransport) Connect(_ context.Context, _ mediasoup.DtlsParameters) error {
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *FakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *FakeTransport) Produce(_ context.Context, kind domain.Kind, _ mediasoup.RtpParameters) (core.Producer, error) {
	if t.ProduceErr != nil {
		return nil, t.ProduceErr
	}
	p := &FakeProducer{router: t.router, id: t.router.newID("producer"), kind: kind}
	t.router.registerProducer(p)
	return p, nil
}

func (t *FakeTransport) Consume(_ context.Context, producerID string, _ mediasoup.RtpCapabilities, paused bool) (core.Consumer, error) {
	if t.ConsumeErr != nil {
		return nil, t.ConsumeErr
	}
	t.router.mu.Lock()
	p, ok := t.router.producers[producerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}
	c := &FakeConsumer{
		router:     t.router,
		id:         t.router.newID("consumer"),
		producerID: producerID,
		kind:       p.kind,
		paused:     paused,
	}
	t.router.registerConsumer(c)
	return c, nil
}

func (t *FakeTransport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	observers := t.onClose
	t.onClose = nil
	t.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (t *FakeTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *FakeTransport) OnClose(fn func()) {
	t.mu.Lock()
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

type FakeProducer struct {
	router *FakeRouter
	id     string
	kind   domain.Kind

	mu     sync.Mutex
	closed bool
}

func (p *FakeProducer) ID() string        { return p.id }
func (p *FakeProducer) Kind() domain.Kind { return p.kind }

func (p *FakeProducer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.router.producerClosed(p)
}

func (p *FakeProducer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type FakeConsumer struct {
	router     *FakeRouter
	id         string
	producerID string
	kind       domain.Kind
	paused     bool

	mu              sync.Mutex
	closed          bool
	resumed         bool
	onProducerClose []func()
}

func (c *FakeConsumer) ID() string { return c.id }

func (c *FakeConsumer) Info() core.ConsumerInfo {
	return core.ConsumerInfo{
		ProducerID:     c.producerID,
		ID:             c.id,
		Kind:           c.kind,
		Type:           mediasoup.ConsumerType("simple"),
		ProducerPaused: c.paused,
	}
}

func (c *FakeConsumer) Resume(context.Context) error {
	c.mu.Lock()
	c.resumed = true
	c.mu.Unlock()
	return nil
}

func (c *FakeConsumer) IsResumed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumed
}

func (c *FakeConsumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.router.dropConsumer(c)
}

func (c *FakeConsumer) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConsumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	c.onProducerClose = append(c.onProducerClose, fn)
	c.mu.Unlock()
}

func (c *FakeConsumer) fireProducerClose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	observers := c.onProducerClose
	c.onProducerClose = nil
	c.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}
