// Package media is the media-plane WebSocket adapter: one relay server
// accepting per-channel connections, driving the data handshake and
// fanning media frames out to matching subscribers.
package media

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/app"
	"github.com/meshwire/rtms/internal/config"
	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/feed"
	"github.com/meshwire/rtms/internal/protocol"
)

type Relay struct {
	Registry  *app.Registry
	Lifecycle *app.Lifecycle
	Feeder    *feed.Feeder

	// Roster is the set of participants replayed to subscribers of
	// PARTICIPANT_JOIN events. Set before Ensure, immutable afterwards.
	Roster []domain.Participant

	host              string
	port              int
	keepAliveInterval time.Duration
	keepAliveMisses   int
	handshakeTimeout  time.Duration
	readLimit         int64

	ctx    context.Context
	engine *gin.Engine

	mu      sync.Mutex
	srv     *http.Server
	started bool
	ready   atomic.Bool

	clientsMu sync.RWMutex
	clients   map[*mediaConn]struct{}

	// seq numbers DATA_HAND_SHAKE_RESP messages, monotonically across
	// the whole relay.
	seq atomic.Uint64
}

func NewRelay(ctx context.Context, reg *app.Registry, feeder *feed.Feeder, cfg *config.Config) *Relay {
	r := &Relay{
		Registry:          reg,
		Lifecycle:         &app.Lifecycle{Registry: reg},
		Feeder:            feeder,
		host:              cfg.Host,
		port:              cfg.MediaPort,
		keepAliveInterval: cfg.MediaKeepAlive,
		keepAliveMisses:   cfg.KeepAliveMisses,
		handshakeTimeout:  cfg.HandshakeTimeout,
		readLimit:         cfg.ReadLimit,
		ctx:               ctx,
		clients:           make(map[*mediaConn]struct{}),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	for _, ch := range []domain.Channel{
		domain.ChannelAudio, domain.ChannelVideo, domain.ChannelTranscript, domain.ChannelAll,
	} {
		channel := ch
		engine.GET("/"+string(channel), func(c *gin.Context) {
			r.handleChannel(channel, c)
		})
	}
	r.engine = engine
	return r
}

// Handler exposes the relay's routes; used by Ensure and by tests that
// mount the relay on an httptest server.
func (r *Relay) Handler() http.Handler {
	return r.engine
}

// Ensure starts the relay listener if it is not already serving.
// Calling it on a running relay is a no-op, so the signaling handshake
// may invoke it unconditionally. Bind errors surface synchronously.
func (r *Relay) Ensure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", r.host, r.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("media relay listen: %w", err)
	}
	r.srv = &http.Server{Handler: r.engine}
	go func() {
		if err := r.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("module", "media").Msg("relay server error")
		}
	}()
	r.started = true
	r.ready.Store(true)
	log.Info().Str("module", "media").Str("addr", addr).Msg("media relay started")
	return nil
}

// Ready reports whether the relay listener is serving.
func (r *Relay) Ready() bool {
	return r.ready.Load()
}

func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srv == nil {
		return nil
	}
	r.ready.Store(false)
	return r.srv.Shutdown(ctx)
}

// URLs returns the per-channel connection URLs handed out at signaling
// handshake time.
func (r *Relay) URLs() protocol.ServerURLs {
	base := fmt.Sprintf("ws://%s:%d", r.host, r.port)
	return protocol.ServerURLs{
		Audio:      base + "/audio",
		Video:      base + "/video",
		Transcript: base + "/transcript",
		All:        base + "/all",
	}
}

func (r *Relay) addClient(mc *mediaConn) {
	r.clientsMu.Lock()
	r.clients[mc] = struct{}{}
	r.clientsMu.Unlock()
}

func (r *Relay) removeClient(mc *mediaConn) {
	r.clientsMu.Lock()
	delete(r.clients, mc)
	r.clientsMu.Unlock()
}

// broadcast fans a media frame out to every other handshaken connection
// whose channel subscription matches the message type. Delivery is best
// effort; slow subscribers drop frames.
func (r *Relay) broadcast(from *mediaConn, msgType string, raw []byte) {
	r.clientsMu.RLock()
	targets := make([]*mediaConn, 0, len(r.clients))
	for mc := range r.clients {
		if mc == from {
			continue
		}
		if mc.handshaken() && channelMatches(mc.channel, msgType) {
			targets = append(targets, mc)
		}
	}
	r.clientsMu.RUnlock()

	for _, mc := range targets {
		if err := mc.TrySend(raw); err != nil {
			log.Warn().Err(err).Str("module", "media").
				Str("channel", string(mc.channel)).Msg("broadcast drop")
		}
	}
}

func channelMatches(ch domain.Channel, msgType string) bool {
	switch ch {
	case domain.ChannelAll:
		return true
	case domain.ChannelAudio:
		return msgType == protocol.TypeMediaDataAudio
	case domain.ChannelVideo:
		return msgType == protocol.TypeMediaDataVideo
	case domain.ChannelTranscript:
		return msgType == protocol.TypeMediaDataTranscript
	}
	return false
}
