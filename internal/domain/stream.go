// Package domain contains entity without logic, just meta-data
package domain

// StreamKey identifies one streaming session slot. It keys every
// registry lookup across both planes.
type StreamKey struct {
	MeetingUUID string
	StreamID    string
}

// Credential identifies an authorized application. Loaded at startup,
// immutable afterwards.
type Credential struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// StreamBinding is an authorized (meeting, stream) pair a handshake may
// reference. Loaded at startup, immutable afterwards.
type StreamBinding struct {
	MeetingUUID  string `json:"meeting_uuid"`
	RTMSStreamID string `json:"rtms_stream_id"`
}

func (b StreamBinding) Key() StreamKey {
	return StreamKey{MeetingUUID: b.MeetingUUID, StreamID: b.RTMSStreamID}
}

// Channel selects which broadcast subset a media connection receives.
type Channel string

const (
	ChannelAudio      Channel = "audio"
	ChannelVideo      Channel = "video"
	ChannelTranscript Channel = "transcript"
	ChannelAll        Channel = "all"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelAudio, ChannelVideo, ChannelTranscript, ChannelAll:
		return true
	}
	return false
}
