package ports

import (
	"context"
	"io"

	"voxscribe/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing s16le mono PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture opens the microphone.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// Transcriber turns a sealed capture buffer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, buf *domain.CaptureBuffer) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// OutputDispatcher fans a transcript out to the configured sinks.
type OutputDispatcher interface {
	Process(ctx context.Context, text string) domain.DispatchResult
}

// Chime plays the completion sound.
type Chime interface {
	Play() error
}

// EventSink receives status notifications. Implementations must not block.
type EventSink interface {
	SessionStateChanged(change domain.StateChange)
	SessionError(code domain.ErrorCode, detail string)
	OutputStatus(status domain.OutputStatus)
}
