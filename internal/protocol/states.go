package protocol

import "math/rand"

// SessionState is the lifecycle of one streaming session as driven by
// SESSION_STATE_UPDATE messages.
type SessionState string

const (
	SessionInactive SessionState = "INACTIVE"
	SessionStarted  SessionState = "STARTED"
	SessionPaused   SessionState = "PAUSED"
	SessionResumed  SessionState = "RESUMED"
	SessionStopped  SessionState = "STOPPED"
)

// StreamState is the transport-level state reported in
// STREAM_STATE_UPDATE messages.
type StreamState string

const (
	StreamInactive    StreamState = "INACTIVE"
	StreamActive      StreamState = "ACTIVE"
	StreamInterrupted StreamState = "INTERRUPTED"
	StreamTerminated  StreamState = "TERMINATED"
)

// StopReason accompanies a TERMINATED stream or STOPPED session.
type StopReason string

const (
	StopReasonUnknown          StopReason = "UNKNOWN"
	StopHostTriggered          StopReason = "STOP_BC_HOST_TRIGGERED"
	StopUserTriggered          StopReason = "STOP_BC_USER_TRIGGERED"
	StopUserLeft               StopReason = "STOP_BC_USER_LEFT"
	StopUserEjected            StopReason = "STOP_BC_USER_EJECTED"
	StopAppDisabledByHost      StopReason = "STOP_BC_APP_DISABLED_BY_HOST"
	StopMeetingEnded           StopReason = "STOP_BC_MEETING_ENDED"
	StopStreamCanceled         StopReason = "STOP_BC_STREAM_CANCELED"
	StopStreamRevoked          StopReason = "STOP_BC_STREAM_REVOKED"
	StopAllAppsDisabled        StopReason = "STOP_BC_ALL_APPS_DISABLED"
	StopInternalException      StopReason = "STOP_BC_INTERNAL_EXCEPTION"
	StopConnectionTimeout      StopReason = "STOP_BC_CONNECTION_TIMEOUT"
	StopConnectionInterrupted  StopReason = "STOP_BC_CONNECTION_INTERRUPTED"
	StopConnectionClosedByUser StopReason = "STOP_BC_CONNECTION_CLOSED_BY_CLIENT"
	StopExitSignal             StopReason = "STOP_BC_EXIT_SIGNAL"
)

// stopReasons are the codes a STOPPED session may report. The random
// draw exists so clients exercise every reason code; a live deployment
// would report the actual cause instead.
var stopReasons = []StopReason{
	StopHostTriggered,
	StopUserTriggered,
	StopUserLeft,
	StopUserEjected,
	StopAppDisabledByHost,
	StopStreamCanceled,
	StopStreamRevoked,
	StopAllAppsDisabled,
}

// RandomStopReason picks one of the reportable stop reasons.
func RandomStopReason() StopReason {
	return stopReasons[rand.Intn(len(stopReasons))]
}

// IsStopReason reports whether r is one of the codes RandomStopReason
// can return.
func IsStopReason(r StopReason) bool {
	for _, s := range stopReasons {
		if s == r {
			return true
		}
	}
	return false
}
