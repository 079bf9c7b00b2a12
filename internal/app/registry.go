package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/domain"
)

// Conn is the registry's view of a plane connection. Adapters own the
// underlying socket; the registry only fans out and closes.
type Conn interface {
	TrySend([]byte) error
	Close()
}

type entry struct {
	session *Session
	signal  Conn
	media   map[Conn]domain.Channel
}

// Registry is the process-wide table binding signaling connections,
// sessions and media connections per stream key. It is the only shared
// mutable structure between connection handlers.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.StreamKey]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.StreamKey]*entry)}
}

// BindSignaling installs a fresh session with its signaling connection,
// superseding any prior session for the same key. Connections belonging
// to the superseded session are returned so the caller can close them
// outside the registry lock.
func (r *Registry) BindSignaling(sess *Session, conn Conn) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []Conn
	if prev, ok := r.entries[sess.Key]; ok {
		if prev.signal != nil {
			stale = append(stale, prev.signal)
		}
		for mc := range prev.media {
			stale = append(stale, mc)
		}
		log.Info().Str("module", "app.registry").
			Str("meeting", sess.Key.MeetingUUID).Str("stream", sess.Key.StreamID).
			Msg("superseding prior session")
	}
	r.entries[sess.Key] = &entry{
		session: sess,
		signal:  conn,
		media:   make(map[Conn]domain.Channel),
	}
	log.Info().Str("module", "app.registry").
		Str("meeting", sess.Key.MeetingUUID).Str("stream", sess.Key.StreamID).
		Str("session", sess.ID).
		Msg("bound signaling connection")
	return stale
}

func (r *Registry) Session(key domain.StreamKey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[key]; ok {
		return e.session, true
	}
	return nil, false
}

func (r *Registry) SignalConn(key domain.StreamKey) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[key]; ok && e.signal != nil {
		return e.signal, true
	}
	return nil, false
}

// ClearSignaling drops the signaling binding, but only when conn is
// still the current one for the key. The session and any media
// connections stay so a reconnecting client can pick them back up.
func (r *Registry) ClearSignaling(key domain.StreamKey, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.signal != conn {
		return false
	}
	e.signal = nil
	log.Info().Str("module", "app.registry").
		Str("meeting", key.MeetingUUID).Str("stream", key.StreamID).
		Msg("cleared signaling binding")
	return true
}

// AddMedia attaches a media connection to its session. It fails when no
// completed session exists for the key.
func (r *Registry) AddMedia(key domain.StreamKey, conn Conn, ch domain.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || !e.session.Completed() {
		return false
	}
	e.media[conn] = ch
	log.Info().Str("module", "app.registry").
		Str("meeting", key.MeetingUUID).Str("stream", key.StreamID).
		Str("channel", string(ch)).
		Msg("attached media connection")
	return true
}

func (r *Registry) RemoveMedia(key domain.StreamKey, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		delete(e.media, conn)
	}
}

// MediaConns snapshots the media connections of one session.
func (r *Registry) MediaConns(key domain.StreamKey) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(e.media))
	for mc := range e.media {
		out = append(out, mc)
	}
	return out
}

// Remove drops the whole entry and returns its connections for the
// caller to close.
func (r *Registry) Remove(key domain.StreamKey) (Conn, []Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	delete(r.entries, key)
	media := make([]Conn, 0, len(e.media))
	for mc := range e.media {
		media = append(media, mc)
	}
	log.Info().Str("module", "app.registry").
		Str("meeting", key.MeetingUUID).Str("stream", key.StreamID).
		Int("media_conns", len(media)).
		Msg("removed session")
	return e.signal, media
}
