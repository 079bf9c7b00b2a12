package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, st *connState) {
	defer func() {
		if ka := st.monitor(); ka != nil {
			ka.Stop()
		}
		if key, ok := st.session(); ok {
			ctl.Registry.ClearSignaling(key, st.conn)
		}
		st.conn.Close()
		log.Info().Str("module", "signal").Msg("readPump closing")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := st.conn.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			ctl.handleMessage(st, data)
		}
	}
}

func (ctl *Controller) handleMessage(st *connState, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Malformed frames are ignored; the connection stays open.
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	// Any inbound frame counts as proof of life.
	if ka := st.monitor(); ka != nil {
		ka.MarkAlive()
	}

	switch env.MsgType {
	case protocol.TypeSignalingHandshakeReq:
		ctl.handleHandshake(st, data)
	case protocol.TypeKeepAliveResp:
		// liveness already refreshed above
	case protocol.TypeKeepAliveReq:
		ctl.handleKeepAliveReq(st, data)
	case protocol.TypeSessionStateUpdate:
		ctl.handleSessionState(st, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.MsgType).Msg("unknown message")
	}
}

func (ctl *Controller) handleKeepAliveReq(st *connState, data []byte) {
	var req protocol.KeepAlive
	if err := json.Unmarshal(data, &req); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad keep-alive payload")
		return
	}
	ctl.sendJSON(st.conn, protocol.KeepAlive{
		MsgType:   protocol.TypeKeepAliveResp,
		Sequence:  req.Sequence,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleSessionState applies a client-driven session transition.
// Transitions are processed in arrival order on this connection, which
// makes it the single writer for its key.
func (ctl *Controller) handleSessionState(st *connState, data []byte) {
	key, ok := st.session()
	if !ok {
		log.Warn().Str("module", "signal").Msg("session state update before handshake")
		return
	}
	var upd protocol.SessionStateUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad session state payload")
		return
	}
	if err := ctl.Lifecycle.ApplyState(key, upd.State); err != nil {
		log.Warn().Err(err).Str("module", "signal").
			Str("state", string(upd.State)).Msg("session state rejected")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
