// Package protocol defines the RTMS wire envelopes exchanged on the
// signaling and media planes. All messages are JSON over text WebSocket
// frames with a msg_type discriminator.
package protocol

// Version is the only protocol version this server speaks.
const Version = 1

// Message types.
const (
	TypeSignalingHandshakeReq  = "SIGNALING_HAND_SHAKE_REQ"
	TypeSignalingHandshakeResp = "SIGNALING_HAND_SHAKE_RESP"
	TypeDataHandshakeReq       = "DATA_HAND_SHAKE_REQ"
	TypeDataHandshakeResp      = "DATA_HAND_SHAKE_RESP"
	TypeKeepAliveReq           = "KEEP_ALIVE_REQ"
	TypeKeepAliveResp          = "KEEP_ALIVE_RESP"
	TypeEventSubscription      = "EVENT_SUBSCRIPTION"
	TypeEventUpdate            = "EVENT_UPDATE"
	TypeSessionStateUpdate     = "SESSION_STATE_UPDATE"
	TypeStreamStateUpdate      = "STREAM_STATE_UPDATE"
	TypeMediaData              = "MEDIA_DATA"
	TypeMediaDataAudio         = "MEDIA_DATA_AUDIO"
	TypeMediaDataVideo         = "MEDIA_DATA_VIDEO"
	TypeMediaDataTranscript    = "MEDIA_DATA_TRANSCRIPT"
)

// Status codes carried in handshake responses.
const (
	StatusOK                 = "STATUS_OK"
	StatusInvalidVersion     = "STATUS_INVALID_VERSION"
	StatusInvalidMessage     = "STATUS_INVALID_MESSAGE"
	StatusUnauthorized       = "STATUS_UNAUTHORIZED"
	StatusInvalidMediaParams = "STATUS_INVALID_MEDIA_PARAMS"
	StatusError              = "STATUS_ERROR"
)

// Event types delivered in EVENT_UPDATE.
const (
	EventActiveSpeakerChange  = "ACTIVE_SPEAKER_CHANGE"
	EventParticipantJoin      = "PARTICIPANT_JOIN"
	EventParticipantLeave     = "PARTICIPANT_LEAVE"
	EventFirstPacketTimestamp = "FIRST_PACKET_TIMESTAMP"
)

// Envelope carries only the discriminator; handlers decode the full
// message once the type is known.
type Envelope struct {
	MsgType string `json:"msg_type"`
}

type SignalingHandshakeReq struct {
	MsgType         string `json:"msg_type"`
	ProtocolVersion int    `json:"protocol_version"`
	MeetingUUID     string `json:"meeting_uuid"`
	RTMSStreamID    string `json:"rtms_stream_id"`
	Signature       string `json:"signature"`
}

type SignalingHandshakeResp struct {
	MsgType         string           `json:"msg_type"`
	ProtocolVersion int              `json:"protocol_version"`
	StatusCode      string           `json:"status_code"`
	Reason          string           `json:"reason,omitempty"`
	MediaServer     *MediaServerInfo `json:"media_server,omitempty"`
}

type MediaServerInfo struct {
	ServerURLs ServerURLs `json:"server_urls"`
	SRTPKeys   SRTPKeys   `json:"srtp_keys"`
}

type ServerURLs struct {
	Audio      string `json:"audio"`
	Video      string `json:"video"`
	Transcript string `json:"transcript"`
	All        string `json:"all"`
}

// SRTPKeys is handshake key material, 32 random bytes hex-encoded per
// entry. The relay hands them out but does not encrypt payloads itself.
type SRTPKeys struct {
	Audio string `json:"audio"`
	Video string `json:"video"`
	Share string `json:"share"`
}

type DataHandshakeReq struct {
	MsgType           string       `json:"msg_type"`
	ProtocolVersion   int          `json:"protocol_version"`
	MeetingUUID       string       `json:"meeting_uuid"`
	RTMSStreamID      string       `json:"rtms_stream_id"`
	PayloadEncryption bool         `json:"payload_encryption"`
	MediaParams       *MediaParams `json:"media_params,omitempty"`
}

type DataHandshakeResp struct {
	MsgType          string `json:"msg_type"`
	ProtocolVersion  int    `json:"protocol_version"`
	StatusCode       string `json:"status_code"`
	Reason           string `json:"reason,omitempty"`
	Sequence         uint64 `json:"sequence,omitempty"`
	PayloadEncrypted bool   `json:"payload_encrypted"`
}

type KeepAlive struct {
	MsgType   string `json:"msg_type"`
	Sequence  uint64 `json:"sequence,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type EventSubscription struct {
	MsgType string       `json:"msg_type"`
	Events  []EventEntry `json:"events"`
}

type EventEntry struct {
	EventType string `json:"event_type"`
	Subscribe bool   `json:"subscribe"`
}

type EventUpdate struct {
	MsgType string         `json:"msg_type"`
	Event   map[string]any `json:"event"`
}

type SessionStateUpdate struct {
	MsgType    string       `json:"msg_type"`
	SessionID  string       `json:"rtms_session_id"`
	State      SessionState `json:"state"`
	StopReason StopReason   `json:"stop_reason,omitempty"`
	UIState    string       `json:"ui_state,omitempty"`
	Timestamp  int64        `json:"timestamp"`
}

type StreamStateUpdate struct {
	MsgType      string      `json:"msg_type"`
	RTMSStreamID string      `json:"rtms_stream_id,omitempty"`
	State        StreamState `json:"state"`
	Reason       StopReason  `json:"reason,omitempty"`
	Timestamp    int64       `json:"timestamp"`
}

type MediaData struct {
	MsgType string       `json:"msg_type"`
	Content MediaContent `json:"content"`
}

type MediaContent struct {
	UserID    int    `json:"user_id"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Sequence  uint64 `json:"sequence,omitempty"`
	IsLast    bool   `json:"is_last,omitempty"`
}

// IsMediaData reports whether t is one of the channel-scoped media
// payload types that fan out to subscribers.
func IsMediaData(t string) bool {
	switch t {
	case TypeMediaDataAudio, TypeMediaDataVideo, TypeMediaDataTranscript:
		return true
	}
	return false
}
