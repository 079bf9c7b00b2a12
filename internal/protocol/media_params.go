package protocol

import "errors"

// Media parameter constants negotiated in DATA_HAND_SHAKE_REQ.
const (
	ContentTypeRawAudio = "RAW_AUDIO"
	ContentTypeRawVideo = "RAW_VIDEO"
)

var (
	ErrNoMediaNegotiated = errors.New("media params: neither audio nor video present")
	ErrBadAudioParams    = errors.New("media params: invalid audio block")
	ErrBadVideoParams    = errors.New("media params: invalid video block")
)

type MediaParams struct {
	Audio *AudioParams `json:"audio,omitempty"`
	Video *VideoParams `json:"video,omitempty"`
}

type AudioParams struct {
	ContentType  string `json:"content_type"`
	SampleRate   string `json:"sample_rate"`
	Channel      string `json:"channel"`
	Codec        string `json:"codec"`
	DataOpt      string `json:"data_opt"`
	SendInterval int    `json:"send_interval,omitempty"`
}

type VideoParams struct {
	ContentType string  `json:"content_type"`
	Codec       string  `json:"codec"`
	Resolution  string  `json:"resolution"`
	FPS         float64 `json:"fps"`
}

var (
	audioSampleRates = map[string]bool{"SR_16K": true, "SR_32K": true, "SR_48K": true}
	audioChannels    = map[string]bool{"MONO": true, "STEREO": true}
	audioCodecs      = map[string]bool{"L16": true, "PCMA": true, "PCMU": true, "G722": true, "OPUS": true}
	audioDataOpts    = map[string]bool{"AUDIO_MIXED_STREAM": true, "AUDIO_MULTI_STREAMS": true}
	videoResolutions = map[string]bool{"SD": true, "HD": true, "FHD": true, "QHD": true}
)

// Validate checks the negotiated parameters. At least one of the audio
// or video blocks must be present and each present block must pass its
// full rule set.
func (p *MediaParams) Validate() error {
	if p == nil || (p.Audio == nil && p.Video == nil) {
		return ErrNoMediaNegotiated
	}
	if p.Audio != nil {
		if err := p.Audio.validate(); err != nil {
			return err
		}
	}
	if p.Video != nil {
		if err := p.Video.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (a *AudioParams) validate() error {
	if a.ContentType != ContentTypeRawAudio {
		return ErrBadAudioParams
	}
	if !audioSampleRates[a.SampleRate] {
		return ErrBadAudioParams
	}
	if !audioChannels[a.Channel] {
		return ErrBadAudioParams
	}
	if !audioCodecs[a.Codec] {
		return ErrBadAudioParams
	}
	if !audioDataOpts[a.DataOpt] {
		return ErrBadAudioParams
	}
	// send_interval is optional; when given it must land on a 20ms grid.
	if a.SendInterval != 0 && a.SendInterval%20 != 0 {
		return ErrBadAudioParams
	}
	return nil
}

func (v *VideoParams) validate() error {
	if v.ContentType != ContentTypeRawVideo {
		return ErrBadVideoParams
	}
	if !videoResolutions[v.Resolution] {
		return ErrBadVideoParams
	}
	if v.FPS < 1 || v.FPS > 30 {
		return ErrBadVideoParams
	}
	// Low frame rates ship stills, higher rates require a real codec.
	if v.FPS <= 5 && v.Codec != "JPG" {
		return ErrBadVideoParams
	}
	if v.FPS > 5 && v.Codec != "H264" {
		return ErrBadVideoParams
	}
	return nil
}
