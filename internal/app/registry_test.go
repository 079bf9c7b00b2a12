package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshwire/rtms/internal/domain"
)

// fakeConn records sends and closes for registry assertions.
type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeConn) TrySend(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestBindSignalingSupersedes(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{}
	firstMedia := &fakeConn{}

	stale := r.BindSignaling(NewSession(testKey), first)
	require.Empty(t, stale)
	require.True(t, r.AddMedia(testKey, firstMedia, domain.ChannelAudio))

	second := &fakeConn{}
	stale = r.BindSignaling(NewSession(testKey), second)
	require.ElementsMatch(t, []Conn{first, firstMedia}, stale)

	// the new binding is current, not duplicated
	conn, ok := r.SignalConn(testKey)
	require.True(t, ok)
	require.Same(t, second, conn.(*fakeConn))
	require.Empty(t, r.MediaConns(testKey))
}

func TestClearSignalingOnlyWhenCurrent(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{}
	r.BindSignaling(NewSession(testKey), first)

	second := &fakeConn{}
	r.BindSignaling(NewSession(testKey), second)

	// the superseded connection must not clear the new binding
	require.False(t, r.ClearSignaling(testKey, first))
	_, ok := r.SignalConn(testKey)
	require.True(t, ok)

	require.True(t, r.ClearSignaling(testKey, second))
	_, ok = r.SignalConn(testKey)
	require.False(t, ok)

	// session survives the signaling drop
	_, ok = r.Session(testKey)
	require.True(t, ok)
}

func TestAddMediaRequiresSession(t *testing.T) {
	r := NewRegistry()
	mc := &fakeConn{}
	require.False(t, r.AddMedia(testKey, mc, domain.ChannelAudio))

	r.BindSignaling(NewSession(testKey), &fakeConn{})
	require.True(t, r.AddMedia(testKey, mc, domain.ChannelAudio))
	require.Len(t, r.MediaConns(testKey), 1)

	r.RemoveMedia(testKey, mc)
	require.Empty(t, r.MediaConns(testKey))
}

func TestRemoveReturnsAllConns(t *testing.T) {
	r := NewRegistry()
	sig := &fakeConn{}
	m1 := &fakeConn{}
	m2 := &fakeConn{}
	r.BindSignaling(NewSession(testKey), sig)
	r.AddMedia(testKey, m1, domain.ChannelAudio)
	r.AddMedia(testKey, m2, domain.ChannelAll)

	gotSig, gotMedia := r.Remove(testKey)
	require.Same(t, sig, gotSig.(*fakeConn))
	require.ElementsMatch(t, []Conn{m1, m2}, gotMedia)

	_, ok := r.Session(testKey)
	require.False(t, ok)

	gotSig, gotMedia = r.Remove(testKey)
	require.Nil(t, gotSig)
	require.Nil(t, gotMedia)
}
