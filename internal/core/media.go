package core

import (
	"context"

	"github.com/jiyeyuran/mediasoup-go"

	"github.com/nkov/broadcast/internal/domain"
)

// Gateway is the capability interface to the media engine. The broker never
// touches RTP; it only creates and wires engine objects through this surface.
// Implemented by adapters/media and by test fakes.
type Gateway interface {
	// CreateRouter allocates a routing context for one room.
	CreateRouter(ctx context.Context) (Router, error)
}

// Router matches producers to compatible consumers within a room.
type Router interface {
	RtpCapabilities() mediasoup.RtpCapabilities
	CreateTransport(ctx context.Context) (Transport, error)
	CanConsume(producerID string, rtpCapabilities mediasoup.RtpCapabilities) bool
	Close()
}

// TransportInfo is what a client needs to establish the ICE/DTLS path.
type TransportInfo struct {
	ID             string                   `json:"id"`
	IceParameters  mediasoup.IceParameters  `json:"iceParameters"`
	IceCandidates  []mediasoup.IceCandidate `json:"iceCandidates"`
	DtlsParameters mediasoup.DtlsParameters `json:"dtlsParameters"`
}

// Transport is a negotiated network path over which RTP flows.
type Transport interface {
	ID() string
	Info() TransportInfo
	Connect(ctx context.Context, dtlsParameters mediasoup.DtlsParameters) error
	Produce(ctx context.Context, kind domain.Kind, rtpParameters mediasoup.RtpParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, rtpCapabilities mediasoup.RtpCapabilities, paused bool) (Consumer, error)
	Close()
	// OnClose registers fn to run once when the transport closes, regardless
	// of which party initiated it.
	OnClose(fn func())
}

// Producer is a room-scoped media source of one kind.
type Producer interface {
	ID() string
	Kind() domain.Kind
	Close()
}

// ConsumerInfo is what a client needs to start receiving one producer's media.
type ConsumerInfo struct {
	ProducerID     string                  `json:"producerId"`
	ID             string                  `json:"id"`
	Kind           domain.Kind             `json:"kind"`
	RtpParameters  mediasoup.RtpParameters `json:"rtpParameters"`
	Type           mediasoup.ConsumerType  `json:"type"`
	ProducerPaused bool                    `json:"producerPaused"`
}

// Consumer is a viewer-scoped receiver of one producer's media.
type Consumer interface {
	ID() string
	Info() ConsumerInfo
	Resume(ctx context.Context) error
	Close()
	// OnProducerClose registers fn to run once when the consumed producer
	// closes on the engine side.
	OnProducerClose(fn func())
}
