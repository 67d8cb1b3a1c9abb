// Package media binds the core gateway interface to a mediasoup worker.
package media

import (
	"context"

	"github.com/jiyeyuran/mediasoup-go"
	"github.com/rs/zerolog/log"

	"github.com/nkov/broadcast/internal/config"
	"github.com/nkov/broadcast/internal/core"
	"github.com/nkov/broadcast/internal/domain"
)

// Engine owns the mediasoup worker process. Construction failure is fatal for
// the server; nothing works without the worker.
type Engine struct {
	worker *mediasoup.Worker
	cfg    *config.Config
}

func NewEngine(cfg *config.Config) (*Engine, error) {
	worker, err := mediasoup.NewWorker()
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "media").Msg("mediasoup worker started")
	return &Engine{worker: worker, cfg: cfg}, nil
}

func (e *Engine) Close() {
	e.worker.Close()
}

func (e *Engine) CreateRouter(_ context.Context) (core.Router, error) {
	router, err := e.worker.CreateRouter(mediasoup.RouterOptions{
		MediaCodecs: mediaCodecs(),
	})
	if err != nil {
		return nil, err
	}
	return &engineRouter{router: router, cfg: e.cfg}, nil
}

// mediaCodecs is the broadcast codec table: Opus for audio, VP8 for video with
// a starting-bitrate hint for the client-side estimator.
func mediaCodecs() []*mediasoup.RtpCodecCapability {
	return []*mediasoup.RtpCodecCapability{
		{
			Kind:      mediasoup.MediaKind(domain.KindAudio),
			MimeType:  "audio/opus",
			ClockRate: 48000,
			Channels:  2,
		},
		{
			Kind:      mediasoup.MediaKind(domain.KindVideo),
			MimeType:  "video/VP8",
			ClockRate: 90000,
			Parameters: mediasoup.RtpCodecSpecificParameters{
				XGoogleStartBitrate: 1000,
			},
		},
	}
}

type engineRouter struct {
	router *mediasoup.Router
	cfg    *config.Config
}

func (r *engineRouter) RtpCapabilities() mediasoup.RtpCapabilities {
	return r.router.RtpCapabilities()
}

func (r *engineRouter) CanConsume(producerID string, rtpCapabilities mediasoup.RtpCapabilities) bool {
	return r.router.CanConsume(producerID, rtpCapabilities)
}

func (r *engineRouter) CreateTransport(_ context.Context) (core.Transport, error) {
	wc := r.cfg.WebRTC
	t, err := r.router.CreateWebRtcTransport(mediasoup.WebRtcTransportOptions{
		ListenIps: []mediasoup.TransportListenIp{
			{Ip: wc.ListenIP, AnnouncedIp: wc.AnnouncedIP},
		},
		EnableUdp:                       &wc.EnableUDP,
		EnableTcp:                       wc.EnableTCP,
		PreferUdp:                       wc.PreferUDP,
		InitialAvailableOutgoingBitrate: int(wc.InitialAvailableOutgoingBitrate),
	})
	if err != nil {
		return nil, err
	}
	if wc.MaxIncomingBitrate > 0 {
		if err := t.SetMaxIncomingBitrate(wc.MaxIncomingBitrate); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("transport", t.Id()).Msg("set max incoming bitrate")
		}
	}
	log.Info().Str("module", "media").Str("transport", t.Id()).Msg("transport created")
	return &engineTransport{t: t}, nil
}

func (r *engineRouter) Close() {
	r.router.Close()
}

type engineTransport struct {
	t *mediasoup.WebRtcTransport
}

func (t *engineTransport) ID() string { return t.t.Id() }

func (t *engineTransport) Info() core.TransportInfo {
	return core.TransportInfo{
		ID:             t.t.Id(),
		IceParameters:  t.t.IceParameters(),
		IceCandidates:  t.t.IceCandidates(),
		DtlsParameters: t.t.DtlsParameters(),
	}
}

func (t *engineTransport) Connect(_ context.Context, dtlsParameters mediasoup.DtlsParameters) error {
	return t.t.Connect(mediasoup.TransportConnectOptions{
		DtlsParameters: &dtlsParameters,
	})
}

func (t *engineTransport) Produce(_ context.Context, kind domain.Kind, rtpParameters mediasoup.RtpParameters) (core.Producer, error) {
	p, err := t.t.Produce(mediasoup.ProducerOptions{
		Kind:          mediasoup.MediaKind(kind),
		RtpParameters: rtpParameters,
	})
	if err != nil {
		return nil, err
	}
	return &engineProducer{p: p}, nil
}

func (t *engineTransport) Consume(_ context.Context, producerID string, rtpCapabilities mediasoup.RtpCapabilities, paused bool) (core.Consumer, error) {
	c, err := t.t.Consume(mediasoup.ConsumerOptions{
		ProducerId:      producerID,
		RtpCapabilities: rtpCapabilities,
		Paused:          paused,
	})
	if err != nil {
		return nil, err
	}
	return &engineConsumer{c: c}, nil
}

func (t *engineTransport) Close() {
	t.t.Close()
}

func (t *engineTransport) OnClose(fn func()) {
	t.t.Observer().On("close", fn)
}

type engineProducer struct {
	p *mediasoup.Producer
}

func (p *engineProducer) ID() string { return p.p.Id() }

func (p *engineProducer) Kind() domain.Kind { return domain.Kind(p.p.Kind()) }

func (p *engineProducer) Close() { p.p.Close() }

type engineConsumer struct {
	c *mediasoup.Consumer
}

func (c *engineConsumer) ID() string { return c.c.Id() }

func (c *engineConsumer) Info() core.ConsumerInfo {
	return core.ConsumerInfo{
		ProducerID:     c.c.ProducerId(),
		ID:             c.c.Id(),
		Kind:           domain.Kind(c.c.Kind()),
		RtpParameters:  c.c.RtpParameters(),
		Type:           c.c.Type(),
		ProducerPaused: c.c.ProducerPaused(),
	}
}

func (c *engineConsumer) Resume(_ context.Context) error {
	return c.c.Resume()
}

func (c *engineConsumer) Close() { c.c.Close() }

func (c *engineConsumer) OnProducerClose(fn func()) {
	c.c.On("producerclose", fn)
}
