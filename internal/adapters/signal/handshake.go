package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/app"
	"github.com/meshwire/rtms/internal/auth"
	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

func (ctl *Controller) handleHandshake(st *connState, data []byte) {
	var req protocol.SignalingHandshakeReq
	if err := json.Unmarshal(data, &req); err != nil {
		ctl.reject(st, protocol.StatusInvalidMessage, "Malformed handshake request")
		return
	}

	if req.ProtocolVersion != protocol.Version {
		ctl.reject(st, protocol.StatusInvalidVersion, "Unsupported protocol version")
		return
	}
	if req.MeetingUUID == "" || req.RTMSStreamID == "" || req.Signature == "" {
		ctl.reject(st, protocol.StatusInvalidMessage, "Missing required fields")
		return
	}

	key := domain.StreamKey{MeetingUUID: req.MeetingUUID, StreamID: req.RTMSStreamID}
	if !ctl.Store.HasBinding(key) {
		ctl.reject(st, protocol.StatusUnauthorized, "Invalid meeting or stream ID")
		return
	}
	if !ctl.Store.MatchSignature(req.Signature, key) {
		ctl.reject(st, protocol.StatusUnauthorized, "Invalid signature")
		return
	}

	// The media relay must be up before we hand out its URLs. Failure
	// leaves the connection awaiting a retried handshake.
	if err := ctl.Relay.Ensure(); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("media relay init failed")
		ctl.reject(st, protocol.StatusError, "Failed to initialize media server")
		return
	}

	sess := app.NewSession(key)
	stale := ctl.Registry.BindSignaling(sess, st.conn)
	for _, c := range stale {
		c.Close()
	}

	ctl.sendJSON(st.conn, protocol.SignalingHandshakeResp{
		MsgType:         protocol.TypeSignalingHandshakeResp,
		ProtocolVersion: protocol.Version,
		StatusCode:      protocol.StatusOK,
		MediaServer: &protocol.MediaServerInfo{
			ServerURLs: ctl.Relay.URLs(),
			SRTPKeys:   auth.GenerateSRTPKeys(),
		},
	})

	ka := app.NewKeepAlive(ctl.KeepAliveInterval, ctl.KeepAliveMisses,
		func() { ctl.probe(st.conn) },
		func() {
			log.Warn().Str("module", "signal").
				Str("meeting", key.MeetingUUID).Str("stream", key.StreamID).
				Msg("keep-alive misses exceeded, terminating connection")
			st.conn.Close()
		})

	st.mu.Lock()
	st.authenticated = true
	st.key = key
	st.ka = ka
	st.mu.Unlock()

	ka.Start()
	log.Info().Str("module", "signal").
		Str("meeting", key.MeetingUUID).Str("stream", key.StreamID).
		Str("session", sess.ID).
		Msg("handshake authenticated")
}

func (ctl *Controller) probe(c *wsConn) {
	ctl.sendJSON(c, protocol.KeepAlive{
		MsgType:   protocol.TypeKeepAliveReq,
		Sequence:  ctl.kaSeq.Add(1),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (ctl *Controller) reject(st *connState, status, reason string) {
	ctl.sendJSON(st.conn, protocol.SignalingHandshakeResp{
		MsgType:         protocol.TypeSignalingHandshakeResp,
		ProtocolVersion: protocol.Version,
		StatusCode:      status,
		Reason:          reason,
	})
}
