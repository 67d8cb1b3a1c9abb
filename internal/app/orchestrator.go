// Package app drives room and media-engine state transitions for validated
// signaling requests. The signal adapter owns the wire format; everything past
// payload decoding happens here.
package app

import (
	"github.com/jiyeyuran/mediasoup-go"
	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
	"github.com/nkov/broadcast/internal/metrics"
)

type Orchestrator struct {
	Registry *Registry
	Rooms    *core.Registry
	Gateway  core.Gateway
}

// roomOf resolves the requester's room and applies the role predicate. All
// three failure modes (no room reference, room destroyed concurrently, not the
// recorded producer) reject identically: the caller is not in a usable room.
func (o *Orchestrator) roomOf(sid core.SessionID, producerRole bool) (*core.Room, error) {
	name, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil, core.ErrNotInRoom
	}
	room, ok := o.Rooms.Get(name)
	if !ok {
		return nil, core.ErrNotInRoom
	}
	if producerRole && !room.IsProducer(sid) {
		return nil, core.ErrNotInRoom
	}
	return room, nil
}

// CreateRoom constructs a room owned by sid and joins sid to it.
func (o *Orchestrator) CreateRoom(sid core.SessionID, name domain.RoomName) error {
	if _, err := o.Rooms.Create(name, sid, o.Gateway); err != nil {
		return err
	}
	if !o.Registry.SetRoom(sid, name) {
		// The session disconnected while the room was being registered;
		// do not leave an ownerless room behind.
		o.Rooms.Remove(name)
		return core.ErrNotInRoom
	}
	metrics.RoomsActive.Inc()
	return nil
}

// ConnectRoom joins sid to an existing room as a viewer.
func (o *Orchestrator) ConnectRoom(sid core.SessionID, name domain.RoomName) error {
	if _, ok := o.Rooms.Get(name); !ok {
		return core.ErrRoomNotFound
	}
	if !o.Registry.SetRoom(sid, name) {
		return core.ErrNotInRoom
	}
	return nil
}

// RouterCapabilities returns the room's RTP capability descriptor; rejected
// while the routing context is still pending.
func (o *Orchestrator) RouterCapabilities(sid core.SessionID) (mediasoup.RtpCapabilities, error) {
	room, err := o.roomOf(sid, false)
	if err != nil {
		return mediasoup.RtpCapabilities{}, err
	}
	return room.RouterCapabilities()
}

// Disconnect runs the endpoint cleanup: the producer's disconnect destroys the
// whole room, a viewer's disconnect removes only its own entries. Safe to call
// twice and safe against a room already removed concurrently.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	if name, ok := o.Registry.RoomOf(sid); ok {
		if room, ok := o.Rooms.Get(name); ok {
			if room.IsProducer(sid) {
				if o.Rooms.Remove(name) {
					metrics.RoomsActive.Dec()
				}
				log.Info().Str("module", "app").Str("sid", string(sid)).Str("room", string(name)).Msg("producer left, room destroyed")
			} else {
				room.RemoveViewer(sid)
			}
		}
	}
	o.Registry.Unbind(sid)
}
