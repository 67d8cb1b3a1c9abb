package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/core/coretest"
)

func newRegistry() (*core.Registry, *coretest.FakeGateway) {
	return core.NewRegistry(context.Background()), coretest.NewFakeGateway()
}

func TestRegistryCreateDuplicate(t *testing.T) {
	reg, gw := newRegistry()

	room, err := reg.Create("r1", "producer-a", gw)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := reg.Create("r1", "producer-b", gw); !errors.Is(err, core.ErrRoomExists) {
		t.Fatalf("second create err = %v, want ErrRoomExists", err)
	}
	if room.ProducerSID() != "producer-a" {
		t.Errorf("producer sid = %q, want producer-a", room.ProducerSID())
	}
	if !room.IsProducer("producer-a") || room.IsProducer("producer-b") {
		t.Error("producer identity changed by rejected create")
	}
}

func TestRegistryGetHasNoSideEffects(t *testing.T) {
	reg, gw := newRegistry()

	if _, ok := reg.Get("missing"); ok {
		t.Fatal("expected absent room")
	}
	if reg.Len() != 0 {
		t.Fatalf("lookup mutated registry, len = %d", reg.Len())
	}
	if _, err := reg.Create("r1", "p", gw); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := reg.Get("r1"); !ok {
		t.Fatal("expected room after create")
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d, want 1", reg.Len())
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	reg, gw := newRegistry()

	room, err := reg.Create("r1", "p", gw)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := room.AwaitRouter(context.Background()); err != nil {
		t.Fatalf("await router: %v", err)
	}

	if !reg.Remove("r1") {
		t.Fatal("first remove reported no-op")
	}
	if reg.Remove("r1") {
		t.Fatal("second remove reported a removal")
	}
	if reg.Remove("never-existed") {
		t.Fatal("removing absent name reported a removal")
	}
	if router := gw.Routers()[0]; !router.IsClosed() {
		t.Error("router not closed by remove")
	}
}

func TestRegistryRemoveBeforeRouterReady(t *testing.T) {
	reg := core.NewRegistry(context.Background())
	gw := coretest.NewFakeGateway()

	release := make(chan struct{})
	routerDone := make(chan *coretest.FakeRouter, 1)
	gw.CreateRouterFunc = func(ctx context.Context) (core.Router, error) {
		<-release
		r := coretest.NewFakeRouter()
		routerDone <- r
		return r, nil
	}

	room, err := reg.Create("r1", "p", gw)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reg.Remove("r1")
	close(release)

	// The router resolved after the room was torn down; it must not leak.
	if _, err := room.AwaitRouter(context.Background()); !errors.Is(err, core.ErrRoomClosed) {
		t.Fatalf("await on removed room err = %v, want ErrRoomClosed", err)
	}
	if router := <-routerDone; !router.IsClosed() {
		t.Error("late router not closed")
	}
}
