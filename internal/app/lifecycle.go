package app

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

var ErrNoSession = errors.New("no session for stream key")

// Lifecycle drives session state transitions and the fan-out they
// cause. Both plane adapters funnel SESSION_STATE_UPDATE messages
// through here so the cascade logic lives in one place.
type Lifecycle struct {
	Registry *Registry
}

// ApplyState advances the session for key and notifies the signaling
// connection. Entering STOPPED additionally terminates every media
// connection and closes the signaling connection.
func (l *Lifecycle) ApplyState(key domain.StreamKey, next protocol.SessionState) error {
	sess, ok := l.Registry.Session(key)
	if !ok {
		return ErrNoSession
	}
	reason, err := sess.Apply(next)
	if err != nil {
		return err
	}

	upd := protocol.SessionStateUpdate{
		MsgType:    protocol.TypeSessionStateUpdate,
		SessionID:  sess.ID,
		State:      next,
		StopReason: reason,
		Timestamp:  time.Now().UnixMilli(),
	}
	if sig, ok := l.Registry.SignalConn(key); ok {
		sendJSON(sig, upd)
	}
	log.Info().Str("module", "app.lifecycle").
		Str("session", sess.ID).Str("state", string(next)).
		Msg("session state applied")

	if next == protocol.SessionStopped {
		l.Terminate(key, reason)
	}
	return nil
}

// Terminate tears one session down: STREAM_STATE_UPDATE{TERMINATED} to
// every media connection, then close them, then close the signaling
// connection and drop the registry entry.
func (l *Lifecycle) Terminate(key domain.StreamKey, reason protocol.StopReason) {
	sig, media := l.Registry.Remove(key)

	note, _ := json.Marshal(protocol.StreamStateUpdate{
		MsgType:      protocol.TypeStreamStateUpdate,
		RTMSStreamID: key.StreamID,
		State:        protocol.StreamTerminated,
		Reason:       reason,
		Timestamp:    time.Now().UnixMilli(),
	})
	for _, mc := range media {
		_ = mc.TrySend(note)
		mc.Close()
	}
	if sig != nil {
		sig.Close()
	}
	log.Info().Str("module", "app.lifecycle").
		Str("meeting", key.MeetingUUID).Str("stream", key.StreamID).
		Str("reason", string(reason)).
		Msg("session terminated")
}

func sendJSON(c Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.lifecycle").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
