package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"voxscribe/internal/audio"
	"voxscribe/internal/domain"
	"voxscribe/internal/ports"
)

func TestSessionStopTwiceReturnsNotActive(t *testing.T) {
	t.Parallel()

	mic, recorder := newTestRecorder(&streamingCapture{})
	lease, _ := mic.Acquire("capture")

	session, err := recorder.Start(context.Background(), lease, 16000, Hooks{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForFrames(t, session, 2)

	buf, err := session.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !buf.Sealed() || buf.FrameCount() < 2 {
		t.Fatalf("expected sealed buffer with frames, got sealed=%t frames=%d", buf.Sealed(), buf.FrameCount())
	}

	again, err := session.Stop()
	if !errors.Is(err, domain.ErrNotActive) || again != nil {
		t.Fatalf("expected ErrNotActive and no buffer, got %v %v", again, err)
	}
	if err := session.Cancel(); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected ErrNotActive on cancel after stop, got %v", err)
	}
	if mic.Holder() != "" {
		t.Fatalf("expected microphone released")
	}
	if recorder.Active() != nil {
		t.Fatalf("expected no active session")
	}
}

func TestRecorderRejectsSecondActiveSession(t *testing.T) {
	t.Parallel()

	capture := &streamingCapture{}
	mic, recorder := newTestRecorder(capture)
	lease, _ := mic.Acquire("capture")

	session, err := recorder.Start(context.Background(), lease, 16000, Hooks{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Cancel()

	if _, err := recorder.Start(context.Background(), lease, 16000, Hooks{}); !errors.Is(err, domain.ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if capture.opens() != 1 {
		t.Fatalf("expected a single device open, got %d", capture.opens())
	}
}

func TestSessionCancelDiscardsAndReleases(t *testing.T) {
	t.Parallel()

	capture := &streamingCapture{}
	mic, recorder := newTestRecorder(capture)
	lease, _ := mic.Acquire("capture")

	var frames int
	var mu sync.Mutex
	session, err := recorder.Start(context.Background(), lease, 16000, Hooks{
		OnFrame: func(domain.AudioFrame) {
			mu.Lock()
			frames++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForFrames(t, session, 1)

	if err := session.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if capture.live() != 0 {
		t.Fatalf("expected device closed after cancel")
	}
	if mic.Holder() != "" {
		t.Fatalf("expected microphone released")
	}
	mu.Lock()
	defer mu.Unlock()
	if frames == 0 {
		t.Fatalf("expected frame hook to observe frames")
	}
}

func TestSessionReportsDeviceLoss(t *testing.T) {
	t.Parallel()

	mic, recorder := newTestRecorder(&streamingCapture{limit: 3})
	lease, _ := mic.Acquire("capture")

	failed := make(chan error, 1)
	session, err := recorder.Start(context.Background(), lease, 16000, Hooks{
		OnFailure: func(err error) { failed <- err },
	})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case err := <-failed:
		if !errors.Is(err, domain.ErrDeviceUnavailable) {
			t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for device loss")
	}
	if err := session.Cancel(); err != nil {
		t.Fatalf("cancel after loss failed: %v", err)
	}
}

func TestRecorderStartPropagatesDeviceUnavailable(t *testing.T) {
	t.Parallel()

	mic, recorder := newTestRecorder(&streamingCapture{err: errors.New("unplugged")})
	lease, _ := mic.Acquire("capture")
	defer lease.Release()

	if _, err := recorder.Start(context.Background(), lease, 16000, Hooks{}); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if recorder.Active() != nil {
		t.Fatalf("expected no active session after failed start")
	}
}

func newTestRecorder(capture ports.AudioCapture) (*audio.Microphone, *Recorder) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mic := audio.NewMicrophone(capture, ports.AudioConfig{SampleRate: 16000}, 30*time.Millisecond)
	return mic, NewRecorder(logger)
}

func waitForFrames(t *testing.T, s *Session, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.buf.FrameCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d frames", n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// streamingCapture yields zeroed PCM until stopped, or until limit frames
// when limit is set.
type streamingCapture struct {
	limit int
	err   error

	mu     sync.Mutex
	opened int
	active int
}

func (c *streamingCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.mu.Lock()
	c.opened++
	c.active++
	c.mu.Unlock()
	return &streamingSession{owner: c, limit: c.limit * 960, stopped: make(chan struct{})}, nil
}

func (c *streamingCapture) opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *streamingCapture) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

type streamingSession struct {
	owner   *streamingCapture
	limit   int
	read    int
	stopped chan struct{}
	once    sync.Once
}

func (s *streamingSession) Read(p []byte) (int, error) {
	select {
	case <-s.stopped:
		return 0, io.EOF
	case <-time.After(time.Millisecond):
	}
	if s.limit > 0 && s.read >= s.limit {
		return 0, io.EOF
	}
	n := len(p)
	if s.limit > 0 && s.read+n > s.limit {
		n = s.limit - s.read
	}
	for i := 0; i < n; i++ {
		p[i] = 0
	}
	s.read += n
	return n, nil
}

func (s *streamingSession) Close() error { return s.Stop() }

func (s *streamingSession) Stop() error {
	s.once.Do(func() {
		close(s.stopped)
		s.owner.mu.Lock()
		s.owner.active--
		s.owner.mu.Unlock()
	})
	return nil
}
