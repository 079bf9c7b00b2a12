// Package feed replays pre-recorded media as framed chunks. It stands
// in for live producer frames: audio in 100ms PCM slices, video in
// fixed-size chunks at ~30fps, transcripts as sentence items drained
// against a shared playback clock.
package feed

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Conventional file names inside the data directory.
const (
	audioFile      = "audio.pcm"
	videoFile      = "video.raw"
	transcriptFile = "transcript.txt"
)

// sentenceGapMillis spaces transcript sentences on a synthetic
// timeline, roughly two seconds apart.
const sentenceGapMillis = 2000

// Item is one transcript sentence with its synthetic timestamp.
type Item struct {
	Text      string
	Timestamp int64
}

// Source holds the raw media loaded from disk. Any of the fields may be
// empty when the corresponding file is absent.
type Source struct {
	Audio      []byte
	Video      []byte
	Transcript []Item
}

// LoadSource reads the data directory. Missing files are logged and
// skipped; the feeder simply emits nothing for those media types.
func LoadSource(dir string) *Source {
	src := &Source{}

	if data, err := os.ReadFile(filepath.Join(dir, audioFile)); err == nil {
		src.Audio = data
	} else {
		log.Warn().Str("module", "feed").Str("file", audioFile).Msg("audio source not found")
	}
	if data, err := os.ReadFile(filepath.Join(dir, videoFile)); err == nil {
		src.Video = data
	} else {
		log.Warn().Str("module", "feed").Str("file", videoFile).Msg("video source not found")
	}
	if data, err := os.ReadFile(filepath.Join(dir, transcriptFile)); err == nil {
		src.Transcript = ParseTranscript(string(data))
	} else {
		log.Warn().Str("module", "feed").Str("file", transcriptFile).Msg("transcript source not found")
	}

	log.Info().Str("module", "feed").Str("dir", dir).
		Int("audio_bytes", len(src.Audio)).
		Int("video_bytes", len(src.Video)).
		Int("transcript_items", len(src.Transcript)).
		Msg("loaded media source")
	return src
}

// ParseTranscript splits text into sentence items on full stops and
// assigns each a timestamp on the synthetic timeline.
func ParseTranscript(text string) []Item {
	parts := strings.Split(text, ".")
	items := make([]Item, 0, len(parts))
	for _, part := range parts {
		sentence := strings.TrimSpace(part)
		if sentence == "" {
			continue
		}
		items = append(items, Item{
			Text:      sentence + ".",
			Timestamp: int64(len(items)) * sentenceGapMillis,
		})
	}
	return items
}
