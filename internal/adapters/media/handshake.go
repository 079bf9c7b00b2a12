package media

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/app"
	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

func (r *Relay) handleDataHandshake(mc *mediaConn, data []byte) {
	var req protocol.DataHandshakeReq
	if err := json.Unmarshal(data, &req); err != nil {
		r.reject(mc, protocol.StatusInvalidMessage, "Malformed handshake request")
		return
	}

	if req.ProtocolVersion != protocol.Version {
		r.reject(mc, protocol.StatusInvalidVersion, "Unsupported protocol version")
		return
	}

	key := domain.StreamKey{MeetingUUID: req.MeetingUUID, StreamID: req.RTMSStreamID}
	sess, ok := r.Registry.Session(key)
	if !ok || !sess.Completed() {
		r.reject(mc, protocol.StatusUnauthorized, "No valid session found")
		return
	}

	// A connection already bound to a session may re-handshake, but not
	// switch to a different session.
	if bound, done := mc.session(); done && bound != key {
		r.reject(mc, protocol.StatusUnauthorized, "Credentials do not match session")
		return
	}

	if err := req.MediaParams.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "media").Msg("media params rejected")
		r.reject(mc, protocol.StatusInvalidMediaParams, "Invalid media parameters")
		return
	}

	if !r.Registry.AddMedia(key, mc, mc.channel) {
		r.reject(mc, protocol.StatusUnauthorized, "No valid session found")
		return
	}

	first := !mc.handshaken()
	mc.stMu.Lock()
	mc.completed = true
	mc.key = key
	mc.encrypted = req.PayloadEncryption
	mc.stMu.Unlock()

	r.sendJSON(mc, protocol.DataHandshakeResp{
		MsgType:          protocol.TypeDataHandshakeResp,
		ProtocolVersion:  protocol.Version,
		StatusCode:       protocol.StatusOK,
		Sequence:         r.seq.Add(1),
		PayloadEncrypted: req.PayloadEncryption,
	})
	log.Info().Str("module", "media").
		Str("meeting", key.MeetingUUID).Str("stream", key.StreamID).
		Str("channel", string(mc.channel)).
		Msg("data handshake completed")

	if first {
		r.startKeepAlive(mc)
		r.startFeed(mc, sess)
	}
}

func (r *Relay) startKeepAlive(mc *mediaConn) {
	ka := app.NewKeepAlive(r.keepAliveInterval, r.keepAliveMisses,
		func() {
			r.sendJSON(mc, protocol.KeepAlive{
				MsgType:   protocol.TypeKeepAliveReq,
				Sequence:  r.seq.Add(1),
				Timestamp: time.Now().UnixMilli(),
			})
		},
		func() {
			log.Warn().Str("module", "media").Str("channel", string(mc.channel)).
				Msg("keep-alive misses exceeded, terminating connection")
			mc.Close()
		})
	mc.stMu.Lock()
	mc.ka = ka
	mc.stMu.Unlock()
	ka.Start()
}

// startFeed announces the stream as active and begins replaying the
// pre-recorded source toward this connection.
func (r *Relay) startFeed(mc *mediaConn, sess *app.Session) {
	if r.Feeder == nil {
		return
	}
	sess.MarkStreamActive()
	r.sendJSON(mc, protocol.StreamStateUpdate{
		MsgType:      protocol.TypeStreamStateUpdate,
		RTMSStreamID: mc.key.StreamID,
		State:        protocol.StreamActive,
		Timestamp:    time.Now().UnixMilli(),
	})

	ctx, cancel := context.WithCancel(r.ctx)
	mc.stMu.Lock()
	mc.stopFeed = cancel
	mc.stMu.Unlock()

	r.Feeder.Run(ctx, mc.channel, func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return mc.TrySend(b)
	})
}

func (r *Relay) reject(mc *mediaConn, status, reason string) {
	r.sendJSON(mc, protocol.DataHandshakeResp{
		MsgType:         protocol.TypeDataHandshakeResp,
		ProtocolVersion: protocol.Version,
		StatusCode:      status,
		Reason:          reason,
	})
}
