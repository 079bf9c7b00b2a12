package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

func TestParseTranscript(t *testing.T) {
	items := ParseTranscript("Hello there. Second sentence.   Third one.")
	require.Len(t, items, 3)
	require.Equal(t, "Hello there.", items[0].Text)
	require.Equal(t, int64(0), items[0].Timestamp)
	require.Equal(t, "Second sentence.", items[1].Text)
	require.Equal(t, int64(2000), items[1].Timestamp)
	require.Equal(t, "Third one.", items[2].Text)
	require.Equal(t, int64(4000), items[2].Timestamp)
}

func TestParseTranscriptEmpty(t *testing.T) {
	require.Empty(t, ParseTranscript(""))
	require.Empty(t, ParseTranscript(" . . "))
}

type collector struct {
	mu   sync.Mutex
	msgs []protocol.MediaData
}

func (c *collector) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, v.(protocol.MediaData))
	return nil
}

func (c *collector) snapshot() []protocol.MediaData {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.MediaData, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestAudioChunking(t *testing.T) {
	// just over two chunks of source material
	src := &Source{Audio: make([]byte, audioChunkSize*2+100)}
	f := NewFeeder(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	f.Run(ctx, domain.ChannelAudio, c.send)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 3 },
		2*time.Second, 20*time.Millisecond)

	msgs := c.snapshot()
	for i, m := range msgs {
		require.Equal(t, protocol.TypeMediaData, m.MsgType)
		require.Equal(t, "AUDIO", m.Content.MediaType)
		require.Equal(t, uint64(i), m.Content.Sequence)
	}
}

func TestVideoLastChunkFlagged(t *testing.T) {
	src := &Source{Video: make([]byte, videoChunkSize+1)}
	f := NewFeeder(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	f.Run(ctx, domain.ChannelVideo, c.send)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 },
		2*time.Second, 10*time.Millisecond)

	msgs := c.snapshot()
	require.False(t, msgs[0].Content.IsLast)
	require.True(t, msgs[1].Content.IsLast)
}

func TestTranscriptDrainsAgainstClock(t *testing.T) {
	src := &Source{Transcript: []Item{
		{Text: "First.", Timestamp: 0},
		{Text: "Way later.", Timestamp: 60_000},
	}}
	f := NewFeeder(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	f.Run(ctx, domain.ChannelTranscript, c.send)

	// the item at t=0 is due immediately, the far-future one is not
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 },
		2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Len(t, c.snapshot(), 1)
	require.Equal(t, "First.", c.snapshot()[0].Content.Data)
}

func TestChannelAllRunsEverything(t *testing.T) {
	src := &Source{
		Audio:      make([]byte, 10),
		Video:      make([]byte, 10),
		Transcript: []Item{{Text: "Hi.", Timestamp: 0}},
	}
	f := NewFeeder(src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	f.Run(ctx, domain.ChannelAll, c.send)

	require.Eventually(t, func() bool {
		kinds := map[string]bool{}
		for _, m := range c.snapshot() {
			if m.MsgType == protocol.TypeMediaDataTranscript {
				kinds["transcript"] = true
			} else {
				kinds[m.Content.MediaType] = true
			}
		}
		return kinds["AUDIO"] && kinds["VIDEO"] && kinds["transcript"]
	}, 2*time.Second, 20*time.Millisecond)
}
