package vad

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"voxscribe/internal/audio"
	"voxscribe/internal/domain"
)

const DefaultOnsetFrames = 3

var ErrAlreadyListening = errors.New("voice listener already running")

// ListenerHooks receive the outcome of one listening run. They are called
// from the listener goroutine and must not block.
type ListenerHooks struct {
	OnOnset   func()
	OnFailure func(error)
}

// Listener watches the microphone until it hears a debounced speech onset,
// then releases the device and stops itself.
type Listener struct {
	detector  Classifier
	threshold int
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(detector Classifier, threshold int, logger *slog.Logger) *Listener {
	if threshold <= 0 {
		threshold = DefaultOnsetFrames
	}
	return &Listener{detector: detector, threshold: threshold, logger: logger}
}

// Start begins one listening run. The listener owns lease until the run ends
// and releases it before returning from Stop.
func (l *Listener) Start(lease *audio.Lease, hooks ListenerHooks) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != nil {
		select {
		case <-l.done:
		default:
			return ErrAlreadyListening
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go l.run(ctx, lease, hooks, done)
	return nil
}

// Stop requests shutdown and blocks until the device is released. It is
// safe to call at any time, any number of times.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a listening run is in progress.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *Listener) run(ctx context.Context, lease *audio.Lease, hooks ListenerHooks, done chan struct{}) {
	defer close(done)

	src, err := lease.Open(ctx)
	if err != nil {
		lease.Release()
		l.logger.Error("voice listener could not open microphone", slog.String("error", err.Error()))
		if ctx.Err() == nil && hooks.OnFailure != nil {
			hooks.OnFailure(err)
		}
		return
	}
	l.logger.Info("voice listener started", slog.Int("onset_frames", l.threshold))

	heard, err := l.awaitOnset(ctx, src)

	if closeErr := src.Close(); closeErr != nil {
		l.logger.Warn("voice listener device stop", slog.String("error", closeErr.Error()))
	}
	lease.Release()

	switch {
	case heard:
		l.logger.Info("voice detected")
		if hooks.OnOnset != nil {
			hooks.OnOnset()
		}
	case err != nil:
		l.logger.Error("voice listener terminated", slog.String("error", err.Error()))
		if hooks.OnFailure != nil {
			hooks.OnFailure(err)
		}
	default:
		l.logger.Info("voice listener stopped")
	}
}

func (l *Listener) awaitOnset(ctx context.Context, src *audio.FrameSource) (bool, error) {
	counter := newOnsetCounter(l.threshold)
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case frame, ok := <-src.Frames():
			if !ok {
				if err := src.Err(); err != nil {
					return false, err
				}
				return false, domain.ErrDeviceUnavailable
			}
			speech, err := l.detector.Classify(frame)
			if err != nil {
				return false, err
			}
			if counter.observe(speech) {
				return true, nil
			}
		}
	}
}

// onsetCounter counts consecutive speech frames; any non-speech frame resets it.
type onsetCounter struct {
	threshold   int
	consecutive int
}

func newOnsetCounter(threshold int) *onsetCounter {
	return &onsetCounter{threshold: threshold}
}

func (c *onsetCounter) observe(speech bool) bool {
	if !speech {
		c.consecutive = 0
		return false
	}
	c.consecutive++
	return c.consecutive >= c.threshold
}
