package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/app"
	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

// mediaConn is one media-channel WebSocket. The path it connected on
// fixes its broadcast subscription; the data handshake binds it to a
// session.
type mediaConn struct {
	conn    *websocket.Conn
	send    chan []byte
	channel domain.Channel

	mu     sync.RWMutex
	closed bool

	stMu      sync.Mutex
	completed bool
	key       domain.StreamKey
	encrypted bool
	ka        *app.KeepAlive
	events    map[string]bool
	stopFeed  context.CancelFunc
}

func (c *mediaConn) TrySend(data []byte) error {
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

func (c *mediaConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()

	c.stMu.Lock()
	if c.stopFeed != nil {
		c.stopFeed()
	}
	c.stMu.Unlock()
}

func (c *mediaConn) handshaken() bool {
	c.stMu.Lock()
	defer c.stMu.Unlock()
	return c.completed
}

func (c *mediaConn) session() (domain.StreamKey, bool) {
	c.stMu.Lock()
	defer c.stMu.Unlock()
	return c.key, c.completed
}

func (c *mediaConn) monitor() *app.KeepAlive {
	c.stMu.Lock()
	defer c.stMu.Unlock()
	return c.ka
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (r *Relay) handleChannel(ch domain.Channel, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "media").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "media").Str("channel", string(ch)).
		Str("remote", ws.RemoteAddr().String()).Msg("new media connection")

	if r.readLimit > 0 {
		ws.SetReadLimit(r.readLimit)
	}
	mc := &mediaConn{
		conn:    ws,
		send:    make(chan []byte, 64),
		channel: ch,
		events:  make(map[string]bool),
	}
	r.addClient(mc)

	if r.handshakeTimeout > 0 {
		time.AfterFunc(r.handshakeTimeout, func() {
			if !mc.handshaken() {
				log.Warn().Str("module", "media").Str("channel", string(ch)).
					Msg("handshake timeout, closing connection")
				mc.Close()
			}
		})
	}

	go r.writePump(mc)
	go r.readPump(mc)
}

func (r *Relay) writePump(mc *mediaConn) {
	for {
		select {
		case <-r.ctx.Done():
			return
		case data, ok := <-mc.send:
			if !ok {
				return
			}
			if err := mc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := mc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("writePump write error")
				return
			}
		}
	}
}

func (r *Relay) readPump(mc *mediaConn) {
	defer func() {
		if ka := mc.monitor(); ka != nil {
			ka.Stop()
		}
		r.removeClient(mc)
		if key, ok := mc.session(); ok {
			r.Registry.RemoveMedia(key, mc)
		}
		mc.Close()
		log.Info().Str("module", "media").Str("channel", string(mc.channel)).Msg("media connection closed")
	}()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			_, data, err := mc.conn.ReadMessage()
			if err != nil {
				return
			}
			r.handleMessage(mc, data)
		}
	}
}

func (r *Relay) handleMessage(mc *mediaConn, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("bad json")
		return
	}

	if ka := mc.monitor(); ka != nil {
		ka.MarkAlive()
	}

	switch env.MsgType {
	case protocol.TypeDataHandshakeReq:
		r.handleDataHandshake(mc, data)
	case protocol.TypeKeepAliveResp:
		// liveness already refreshed above
	case protocol.TypeKeepAliveReq:
		r.handleKeepAliveReq(mc, data)
	case protocol.TypeEventSubscription:
		r.handleEventSubscription(mc, data)
	case protocol.TypeSessionStateUpdate:
		r.handleSessionState(mc, data)
	case protocol.TypeMediaDataAudio, protocol.TypeMediaDataVideo, protocol.TypeMediaDataTranscript:
		if mc.handshaken() {
			r.broadcast(mc, env.MsgType, data)
		}
	default:
		log.Warn().Str("module", "media").Str("type", env.MsgType).Msg("unknown message")
	}
}

func (r *Relay) handleKeepAliveReq(mc *mediaConn, data []byte) {
	var req protocol.KeepAlive
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	r.sendJSON(mc, protocol.KeepAlive{
		MsgType:   protocol.TypeKeepAliveResp,
		Sequence:  req.Sequence,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleEventSubscription records the subscribed event types. No
// response is required. A fresh PARTICIPANT_JOIN subscription replays
// the current roster so late subscribers see who is already present.
func (r *Relay) handleEventSubscription(mc *mediaConn, data []byte) {
	var sub protocol.EventSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("bad event subscription payload")
		return
	}
	joined := false
	mc.stMu.Lock()
	for _, e := range sub.Events {
		if e.Subscribe {
			if e.EventType == protocol.EventParticipantJoin && !mc.events[e.EventType] {
				joined = true
			}
			mc.events[e.EventType] = true
		} else {
			delete(mc.events, e.EventType)
		}
	}
	mc.stMu.Unlock()
	log.Info().Str("module", "media").Int("events", len(sub.Events)).Msg("event subscription recorded")

	if joined {
		r.replayRoster(mc)
	}
}

func (r *Relay) replayRoster(mc *mediaConn) {
	for _, p := range r.Roster {
		r.sendJSON(mc, protocol.EventUpdate{
			MsgType: protocol.TypeEventUpdate,
			Event: map[string]any{
				"event_type":       protocol.EventParticipantJoin,
				"participant_id":   p.ID,
				"participant_name": p.Name,
				"timestamp":        time.Now().UnixMilli(),
			},
		})
	}
}

// handleSessionState forwards a media-plane state change into the
// lifecycle, which relays it to the signaling connection and, for
// STOPPED, terminates every connection under the session.
func (r *Relay) handleSessionState(mc *mediaConn, data []byte) {
	key, ok := mc.session()
	if !ok {
		log.Warn().Str("module", "media").Msg("session state update before handshake")
		return
	}
	var upd protocol.SessionStateUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("bad session state payload")
		return
	}
	if err := r.Lifecycle.ApplyState(key, upd.State); err != nil {
		log.Warn().Err(err).Str("module", "media").
			Str("state", string(upd.State)).Msg("session state rejected")
	}
}

func (r *Relay) sendJSON(mc *mediaConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "media").Msg("sendJSON marshal")
		return
	}
	_ = mc.TrySend(b)
}
