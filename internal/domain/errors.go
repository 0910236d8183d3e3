package domain

import "errors"

var (
	ErrDeviceUnavailable   = errors.New("audio device unavailable")
	ErrInvalidFrameShape   = errors.New("invalid audio frame shape")
	ErrAlreadyActive       = errors.New("capture session already active")
	ErrNotActive           = errors.New("capture session not active")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSinkWriteFailed     = errors.New("output sink write failed")

	// ErrMicrophoneBusy means a second owner tried to take the microphone.
	ErrMicrophoneBusy = errors.New("microphone already leased")
	ErrBufferSealed   = errors.New("capture buffer is sealed")
	ErrClosed         = errors.New("orchestrator is closed")
)
