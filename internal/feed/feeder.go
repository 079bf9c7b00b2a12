package feed

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshwire/rtms/internal/domain"
	"github.com/meshwire/rtms/internal/protocol"
)

// Emission cadence, matched to 16-bit stereo PCM at 16kHz for audio and
// ~30fps for video.
const (
	audioChunkSize = 3200
	audioInterval  = 100 * time.Millisecond
	videoChunkSize = 8192
	videoInterval  = 33 * time.Millisecond
	transcriptTick = 100 * time.Millisecond
)

// SendFunc delivers one outbound message; returning an error stops the
// stream that called it.
type SendFunc func(v any) error

// Feeder emits the loaded source toward one media connection according
// to its negotiated channel.
type Feeder struct {
	Source *Source
	Clock  *Clock
}

func NewFeeder(src *Source) *Feeder {
	return &Feeder{Source: src, Clock: &Clock{}}
}

// Run starts the emission goroutines for the channel. It returns
// immediately; ctx cancellation stops all of them.
func (f *Feeder) Run(ctx context.Context, ch domain.Channel, send SendFunc) {
	f.Clock.StartOnce()

	if ch == domain.ChannelAudio || ch == domain.ChannelAll {
		go f.streamAudio(ctx, send)
	}
	if ch == domain.ChannelVideo || ch == domain.ChannelAll {
		go f.streamVideo(ctx, send)
	}
	if ch == domain.ChannelTranscript || ch == domain.ChannelAll {
		go f.streamTranscript(ctx, send)
	}
}

func (f *Feeder) streamAudio(ctx context.Context, send SendFunc) {
	data := f.Source.Audio
	if len(data) == 0 {
		return
	}
	total := (len(data) + audioChunkSize - 1) / audioChunkSize
	log.Info().Str("module", "feed").Int("chunks", total).Msg("starting audio stream")

	ticker := time.NewTicker(audioInterval)
	defer ticker.Stop()

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		end := min((i+1)*audioChunkSize, len(data))
		msg := protocol.MediaData{
			MsgType: protocol.TypeMediaData,
			Content: protocol.MediaContent{
				UserID:    0,
				MediaType: "AUDIO",
				Data:      base64.StdEncoding.EncodeToString(data[i*audioChunkSize : end]),
				Timestamp: time.Now().UnixMilli(),
				Sequence:  uint64(i),
			},
		}
		if err := send(msg); err != nil {
			return
		}
	}
}

func (f *Feeder) streamVideo(ctx context.Context, send SendFunc) {
	data := f.Source.Video
	if len(data) == 0 {
		return
	}
	total := (len(data) + videoChunkSize - 1) / videoChunkSize
	log.Info().Str("module", "feed").Int("chunks", total).Msg("starting video stream")

	ticker := time.NewTicker(videoInterval)
	defer ticker.Stop()

	for i := 0; i < total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		end := min((i+1)*videoChunkSize, len(data))
		msg := protocol.MediaData{
			MsgType: protocol.TypeMediaData,
			Content: protocol.MediaContent{
				UserID:    0,
				MediaType: "VIDEO",
				Data:      base64.StdEncoding.EncodeToString(data[i*videoChunkSize : end]),
				Timestamp: time.Now().UnixMilli(),
				Sequence:  uint64(i),
				IsLast:    i == total-1,
			},
		}
		if err := send(msg); err != nil {
			return
		}
	}
}

// streamTranscript drains sentence items once their timestamp has
// elapsed on the shared playback clock.
func (f *Feeder) streamTranscript(ctx context.Context, send SendFunc) {
	items := f.Source.Transcript
	if len(items) == 0 {
		return
	}
	ticker := time.NewTicker(transcriptTick)
	defer ticker.Stop()

	idx := 0
	for idx < len(items) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := f.Clock.ElapsedMillis()
		for idx < len(items) && items[idx].Timestamp <= now {
			msg := protocol.MediaData{
				MsgType: protocol.TypeMediaDataTranscript,
				Content: protocol.MediaContent{
					UserID:    0,
					Data:      items[idx].Text,
					Timestamp: items[idx].Timestamp,
				},
			}
			if err := send(msg); err != nil {
				return
			}
			idx++
		}
	}
}
