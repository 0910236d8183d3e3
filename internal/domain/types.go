package domain

import (
	"fmt"
	"time"
)

// RecordingMode selects how activation events drive capture.
type RecordingMode string

const (
	ModePressToToggle       RecordingMode = "press_to_toggle"
	ModeHoldToRecord        RecordingMode = "hold_to_record"
	ModeContinuous          RecordingMode = "continuous"
	ModeAutoVoiceActivation RecordingMode = "auto_voice_activation"
)

// ParseRecordingMode validates a configured mode name.
func ParseRecordingMode(value string) (RecordingMode, error) {
	switch mode := RecordingMode(value); mode {
	case ModePressToToggle, ModeHoldToRecord, ModeContinuous, ModeAutoVoiceActivation:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown recording mode %q", value)
	}
}

// Loops reports whether the mode re-arms on its own after a transcript.
func (m RecordingMode) Loops() bool {
	return m == ModeContinuous || m == ModeAutoVoiceActivation
}

// SessionState models the orchestrator lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateListening    SessionState = "listening"
	SessionStateRecording    SessionState = "recording"
	SessionStateTranscribing SessionState = "transcribing"
	SessionStateError        SessionState = "error"
	SessionStateCancelled    SessionState = "cancelled"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonMicCold             SessionStateReason = "mic_cold"
	SessionReasonListeningArmed      SessionStateReason = "listening_armed"
	SessionReasonListeningDisarmed   SessionStateReason = "listening_disarmed"
	SessionReasonVoiceDetected       SessionStateReason = "voice_detected"
	SessionReasonRecordingStarted    SessionStateReason = "recording_started"
	SessionReasonRecordingRestarted  SessionStateReason = "recording_restarted"
	SessionReasonTranscribing        SessionStateReason = "transcribing"
	SessionReasonLoopStopped         SessionStateReason = "loop_stopped"
	SessionReasonTranscriptDelivered SessionStateReason = "transcript_delivered"
	SessionReasonNoTranscript        SessionStateReason = "no_transcript"
	SessionReasonRecordingDiscarded  SessionStateReason = "recording_discarded"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
	SessionReasonDeviceUnavailable   SessionStateReason = "device_unavailable"
	SessionReasonDeviceLost          SessionStateReason = "device_lost"
	SessionReasonInternal            SessionStateReason = "internal_error"
	SessionReasonShutdown            SessionStateReason = "shutdown"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeDevice        ErrorCode = "device"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeOutput        ErrorCode = "output"
	ErrorCodeInternal      ErrorCode = "internal"
)

// AudioFrame is a fixed-length block of mono signed 16-bit samples.
type AudioFrame struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// OutputResult is the outcome of delivering one transcript to one sink.
type OutputResult struct {
	SinkName string `json:"sinkName"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// DispatchResult collects the per-sink outcomes of one transcript.
type DispatchResult struct {
	Success bool           `json:"success"`
	Results []OutputResult `json:"results"`
}

// StateChange is a timestamped coarse state notification.
type StateChange struct {
	State  SessionState       `json:"state"`
	Reason SessionStateReason `json:"reason"`
	At     time.Time          `json:"at"`
}

// OutputStatus is a timestamped output-result notification.
type OutputStatus struct {
	Message string    `json:"message"`
	Success bool      `json:"success"`
	At      time.Time `json:"at"`
}

// Status summarizes the current runtime status.
type Status struct {
	State  SessionState  `json:"state"`
	Mode   RecordingMode `json:"mode"`
	Active bool          `json:"active"`
}
