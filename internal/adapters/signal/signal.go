// Package signal is the signaling-plane WebSocket adapter. It drives
// the authenticated handshake, keeps the connection alive and relays
// session state updates into the lifecycle coordinator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/app"
	"github.com/meshwire/rtms/internal/auth"
	"github.com/meshwire/rtms/internal/config"
	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

// Relay is the media-plane server as seen from the handshake: started
// on demand (idempotently) and asked for its connection URLs.
type Relay interface {
	Ensure() error
	URLs() protocol.ServerURLs
}

type Controller struct {
	Registry  *app.Registry
	Lifecycle *app.Lifecycle
	Store     *auth.Store
	Relay     Relay

	KeepAliveInterval time.Duration
	KeepAliveMisses   int
	HandshakeTimeout  time.Duration
	ReadLimit         int64

	kaSeq atomic.Uint64
}

func NewController(reg *app.Registry, store *auth.Store, relay Relay, cfg *config.Config) *Controller {
	return &Controller{
		Registry:          reg,
		Lifecycle:         &app.Lifecycle{Registry: reg},
		Store:             store,
		Relay:             relay,
		KeepAliveInterval: cfg.SignalingKeepAlive,
		KeepAliveMisses:   cfg.KeepAliveMisses,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		ReadLimit:         cfg.ReadLimit,
	}
}

// SetupRouter builds the signaling listener; both the root path and
// /signaling accept connections.
func SetupRouter(ctx context.Context, ctl *Controller) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	handler := func(c *gin.Context) { ctl.HandleSignaling(ctx, c) }
	r.GET("/", handler)
	r.GET("/signaling", handler)
	return r
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// connState tracks one signaling connection through
// AWAITING_HANDSHAKE -> AUTHENTICATED -> CLOSED.
type connState struct {
	conn *wsConn

	mu            sync.Mutex
	authenticated bool
	key           domain.StreamKey
	ka            *app.KeepAlive
}

func (st *connState) isAuthenticated() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.authenticated
}

func (st *connState) session() (domain.StreamKey, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.key, st.authenticated
}

func (st *connState) monitor() *app.KeepAlive {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ka
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignaling(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("remote", ws.RemoteAddr().String()).Msg("new signaling connection")

	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	st := &connState{conn: conn}

	// Unauthenticated idle sockets get dropped; a handshake must arrive
	// within the timeout. Close is idempotent, so a late fire is a no-op.
	if ctl.HandshakeTimeout > 0 {
		time.AfterFunc(ctl.HandshakeTimeout, func() {
			if !st.isAuthenticated() {
				log.Warn().Str("module", "signal").Msg("handshake timeout, closing connection")
				conn.Close()
			}
		})
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, st)
}
