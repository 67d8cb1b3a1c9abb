package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jiyeyuran/mediasoup-go"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/core/coretest"
	"github.com/nkov/broadcast/internal/domain"
)

func newReadyRoom(t *testing.T) (*core.Room, *coretest.FakeRouter) {
	t.Helper()
	reg, gw := newRegistry()
	room, err := reg.Create("studio", "host", gw)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := room.AwaitRouter(context.Background()); err != nil {
		t.Fatalf("await router: %v", err)
	}
	return room, gw.Routers()[0]
}

func produceBoth(t *testing.T, room *core.Room, router *coretest.FakeRouter) (core.Transport, core.Producer, core.Producer) {
	t.Helper()
	transport, err := router.CreateTransport(context.Background())
	if err != nil {
		t.Fatalf("create transport: %v", err)
	}
	if err := room.SetProducerTransport(transport); err != nil {
		t.Fatalf("set producer transport: %v", err)
	}
	audio, err := transport.Produce(context.Background(), domain.KindAudio, mediasoup.RtpParameters{})
	if err != nil {
		t.Fatalf("produce audio: %v", err)
	}
	if _, err := room.SetProducer(domain.KindAudio, audio); err != nil {
		t.Fatalf("set audio producer: %v", err)
	}
	video, err := transport.Produce(context.Background(), domain.KindVideo, mediasoup.RtpParameters{})
	if err != nil {
		t.Fatalf("produce video: %v", err)
	}
	if _, err := room.SetProducer(domain.KindVideo, video); err != nil {
		t.Fatalf("set video producer: %v", err)
	}
	return transport, audio, video
}

func addViewer(t *testing.T, room *core.Room, router *coretest.FakeRouter, sid core.SessionID, producerID string) (core.Transport, core.Consumer) {
	t.Helper()
	transport, err := router.CreateTransport(context.Background())
	if err != nil {
		t.Fatalf("create viewer transport: %v", err)
	}
	if err := room.SetConsumerTransport(sid, transport); err != nil {
		t.Fatalf("set consumer transport: %v", err)
	}
	consumer, err := transport.Consume(context.Background(), producerID, mediasoup.RtpCapabilities{}, true)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := room.SetConsumer(sid, domain.KindVideo, consumer); err != nil {
		t.Fatalf("set consumer: %v", err)
	}
	return transport, consumer
}

func TestRoomPendingRejectsCapabilityQuery(t *testing.T) {
	reg := core.NewRegistry(context.Background())
	gw := coretest.NewFakeGateway()

	release := make(chan struct{})
	gw.CreateRouterFunc = func(ctx context.Context) (core.Router, error) {
		<-release
		return coretest.NewFakeRouter(), nil
	}

	room, err := reg.Create("studio", "host", gw)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := room.RouterCapabilities(); !errors.Is(err, core.ErrRouterNotReady) {
		t.Fatalf("pending capability query err = %v, want ErrRouterNotReady", err)
	}

	close(release)
	if _, err := room.AwaitRouter(context.Background()); err != nil {
		t.Fatalf("await router: %v", err)
	}
	if _, err := room.RouterCapabilities(); err != nil {
		t.Fatalf("ready capability query: %v", err)
	}
}

func TestRoomRouterCreateFailure(t *testing.T) {
	reg := core.NewRegistry(context.Background())
	gw := coretest.NewFakeGateway()
	gw.CreateRouterFunc = func(ctx context.Context) (core.Router, error) {
		return nil, fmt.Errorf("worker died")
	}

	room, err := reg.Create("studio", "host", gw)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := room.AwaitRouter(context.Background()); !errors.Is(err, core.ErrGatewayFailure) {
		t.Fatalf("await err = %v, want ErrGatewayFailure", err)
	}
	if _, err := room.RouterCapabilities(); !errors.Is(err, core.ErrGatewayFailure) {
		t.Fatalf("capability err = %v, want ErrGatewayFailure", err)
	}
}

func TestRoomProducerTransportCloseClosesProducers(t *testing.T) {
	room, router := newReadyRoom(t)
	transport, audio, video := produceBoth(t, room, router)

	transport.Close()

	if _, ok := room.Producer(domain.KindAudio); ok {
		t.Error("audio producer still registered after transport close")
	}
	if _, ok := room.Producer(domain.KindVideo); ok {
		t.Error("video producer still registered after transport close")
	}
	if !audio.(*coretest.FakeProducer).IsClosed() || !video.(*coretest.FakeProducer).IsClosed() {
		t.Error("producers not closed by transport cascade")
	}
	if _, err := room.ProducerTransport(); !errors.Is(err, core.ErrTransportNotFound) {
		t.Errorf("producer transport err = %v, want ErrTransportNotFound", err)
	}
}

func TestRoomConsumerTransportCloseDropsViewer(t *testing.T) {
	room, router := newReadyRoom(t)
	_, _, video := produceBoth(t, room, router)
	transport, consumer := addViewer(t, room, router, "viewer-1", video.ID())

	transport.Close()

	if _, ok := room.Consumer("viewer-1", domain.KindVideo); ok {
		t.Error("consumer still registered after transport close")
	}
	if !consumer.(*coretest.FakeConsumer).IsClosed() {
		t.Error("consumer not closed by transport cascade")
	}
	if _, err := room.ConsumerTransport("viewer-1"); !errors.Is(err, core.ErrTransportNotFound) {
		t.Errorf("consumer transport err = %v, want ErrTransportNotFound", err)
	}
}

func TestRoomRemoveViewerLeavesOthers(t *testing.T) {
	room, router := newReadyRoom(t)
	_, _, video := produceBoth(t, room, router)
	t1, c1 := addViewer(t, room, router, "viewer-1", video.ID())
	_, c2 := addViewer(t, room, router, "viewer-2", video.ID())

	room.RemoveViewer("viewer-1")

	if !c1.(*coretest.FakeConsumer).IsClosed() || !t1.(*coretest.FakeTransport).IsClosed() {
		t.Error("removed viewer's engine objects not closed")
	}
	if c2.(*coretest.FakeConsumer).IsClosed() {
		t.Error("other viewer's consumer closed")
	}
	if _, ok := room.Consumer("viewer-2", domain.KindVideo); !ok {
		t.Error("other viewer's consumer dropped")
	}
	if _, ok := room.Producer(domain.KindVideo); !ok {
		t.Error("producer dropped by viewer removal")
	}

	// Removing a viewer twice, or one that never joined, is harmless.
	room.RemoveViewer("viewer-1")
	room.RemoveViewer("never-joined")
}

func TestRoomSetProducerWithoutTransport(t *testing.T) {
	room, router := newReadyRoom(t)
	transport, err := router.CreateTransport(context.Background())
	if err != nil {
		t.Fatalf("create transport: %v", err)
	}
	producer, err := transport.Produce(context.Background(), domain.KindAudio, mediasoup.RtpParameters{})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	if _, err := room.SetProducer(domain.KindAudio, producer); !errors.Is(err, core.ErrTransportNotFound) {
		t.Fatalf("set producer err = %v, want ErrTransportNotFound", err)
	}
}

func TestRoomSetProducerReplacesSameKind(t *testing.T) {
	room, router := newReadyRoom(t)
	transport, _, _ := produceBoth(t, room, router)

	fresh, err := transport.Produce(context.Background(), domain.KindVideo, mediasoup.RtpParameters{})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}
	replaced, err := room.SetProducer(domain.KindVideo, fresh)
	if err != nil {
		t.Fatalf("set producer: %v", err)
	}
	if replaced == nil {
		t.Fatal("expected the previous video producer back")
	}
	current, ok := room.Producer(domain.KindVideo)
	if !ok || current != fresh {
		t.Error("replacement producer not stored")
	}
}

func TestRoomCloseCascade(t *testing.T) {
	room, router := newReadyRoom(t)
	transport, audio, video := produceBoth(t, room, router)
	vt, vc := addViewer(t, room, router, "viewer-1", video.ID())

	room.Close()
	room.Close() // idempotent

	for name, closed := range map[string]bool{
		"audio producer":   audio.(*coretest.FakeProducer).IsClosed(),
		"video producer":   video.(*coretest.FakeProducer).IsClosed(),
		"producer trans":   transport.(*coretest.FakeTransport).IsClosed(),
		"viewer consumer":  vc.(*coretest.FakeConsumer).IsClosed(),
		"viewer transport": vt.(*coretest.FakeTransport).IsClosed(),
		"router":           router.IsClosed(),
	} {
		if !closed {
			t.Errorf("%s not closed", name)
		}
	}

	if _, err := room.RouterCapabilities(); !errors.Is(err, core.ErrRoomClosed) {
		t.Errorf("capability err after close = %v, want ErrRoomClosed", err)
	}
	if err := room.SetProducerTransport(transport); !errors.Is(err, core.ErrRoomClosed) {
		t.Errorf("set transport err after close = %v, want ErrRoomClosed", err)
	}
	if err := room.SetConsumerTransport("viewer-2", vt); !errors.Is(err, core.ErrRoomClosed) {
		t.Errorf("set consumer transport err after close = %v, want ErrRoomClosed", err)
	}
	if err := room.SetConsumer("viewer-1", domain.KindVideo, vc); !errors.Is(err, core.ErrRoomClosed) {
		t.Errorf("set consumer err after close = %v, want ErrRoomClosed", err)
	}
}
