package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/domain"
)

// Registry is the process-wide room directory. It is an explicit instance
// handed to the protocol handler, not a package-level singleton.
type Registry struct {
	ctx   context.Context
	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room
}

func NewRegistry(ctx context.Context) *Registry {
	return &Registry{
		ctx:   ctx,
		rooms: make(map[domain.RoomName]*Room),
	}
}

// Create constructs a room in the Pending state and kicks off its router
// creation. Fails with ErrRoomExists on a taken name without side effects.
func (g *Registry) Create(name domain.RoomName, producerSID SessionID, gw Gateway) (*Room, error) {
	g.mu.RLock()
	_, ok := g.rooms[name]
	g.mu.RUnlock()
	if ok {
		return nil, ErrRoomExists
	}

	g.mu.Lock()
	if _, ok = g.rooms[name]; ok {
		g.mu.Unlock()
		return nil, ErrRoomExists
	}
	room := NewRoom(name, producerSID)
	g.rooms[name] = room
	g.mu.Unlock()

	go room.initRouter(g.ctx, gw)
	log.Info().Str("module", "core.registry").Str("room", string(name)).Str("sid", string(producerSID)).Msg("room created")
	return room, nil
}

// Get is a read-only lookup with no side effects.
func (g *Registry) Get(name domain.RoomName) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[name]
	return room, ok
}

// Remove deletes the entry and tears the room down. Removing an absent name is
// a no-op; it reports whether a room was actually removed.
func (g *Registry) Remove(name domain.RoomName) bool {
	g.mu.Lock()
	room, ok := g.rooms[name]
	if ok {
		delete(g.rooms, name)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	room.Close()
	log.Info().Str("module", "core.registry").Str("room", string(name)).Msg("room removed")
	return true
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
