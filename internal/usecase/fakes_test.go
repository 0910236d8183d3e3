package usecase

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"voxscribe/internal/audio"
	"voxscribe/internal/capture"
	"voxscribe/internal/domain"
	"voxscribe/internal/ports"
	"voxscribe/internal/vad"
)

type harnessConfig struct {
	mode        domain.RecordingMode
	maxDuration time.Duration
	silence     time.Duration
	captureErr  error
	silent      bool
	text        string
	transcribe  error
	gate        chan struct{}
	chime       *fakeChime
}

type harness struct {
	orch        *Orchestrator
	mic         *audio.Microphone
	capture     *toneCapture
	transcriber *fakeTranscriber
	output      *fakeDispatcher
	events      *fakeEventSink
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	detector, err := vad.NewDetector(vad.AggressivenessDefault)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}

	h := &harness{
		capture:     &toneCapture{err: cfg.captureErr, silent: cfg.silent},
		transcriber: &fakeTranscriber{text: cfg.text, err: cfg.transcribe, gate: cfg.gate},
		output:      &fakeDispatcher{},
		events:      &fakeEventSink{},
	}
	h.mic = audio.NewMicrophone(h.capture, ports.AudioConfig{SampleRate: 16000}, 30*time.Millisecond)

	deps := Deps{
		Microphone:  h.mic,
		Listener:    vad.NewListener(detector, vad.DefaultOnsetFrames, logger),
		Recorder:    capture.NewRecorder(logger),
		Detector:    detector,
		Transcriber: h.transcriber,
		Output:      h.output,
		Events:      h.events,
		Logger:      logger,
	}
	if cfg.chime != nil {
		deps.Chime = cfg.chime
	}
	h.orch = NewOrchestrator(deps, Config{
		Mode:                 cfg.mode,
		MaxDuration:          cfg.maxDuration,
		SilenceDuration:      cfg.silence,
		TranscriptionTimeout: 5 * time.Second,
	})

	runDone := make(chan error, 1)
	go func() { runDone <- h.orch.Run(context.Background()) }()
	t.Cleanup(func() {
		h.orch.Shutdown()
		select {
		case <-runDone:
		case <-time.After(5 * time.Second):
			t.Errorf("orchestrator did not stop")
		}
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitForState(t *testing.T, state domain.SessionState, count int) {
	t.Helper()
	waitFor(t, "state "+string(state), func() bool {
		return h.events.countState(state) >= count
	})
}

// toneCapture streams a 220 Hz tone (or silence) until stopped and tracks
// how many devices are open at once.
type toneCapture struct {
	err    error
	silent bool

	mu      sync.Mutex
	starts  int
	open    int
	maxOpen int
}

func (c *toneCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.mu.Lock()
	c.starts++
	c.open++
	if c.open > c.maxOpen {
		c.maxOpen = c.open
	}
	c.mu.Unlock()
	return &toneSession{owner: c, rate: cfg.SampleRate, silent: c.silent, stopped: make(chan struct{})}, nil
}

func (c *toneCapture) snapshot() (starts, open, maxOpen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.open, c.maxOpen
}

type toneSession struct {
	owner   *toneCapture
	rate    int
	silent  bool
	index   int
	stopped chan struct{}
	once    sync.Once
}

func (s *toneSession) Read(p []byte) (int, error) {
	select {
	case <-s.stopped:
		return 0, io.EOF
	case <-time.After(time.Millisecond):
	}
	n := len(p) / 2
	for i := 0; i < n; i++ {
		var v int16
		if !s.silent {
			v = int16(8000 * math.Sin(2*math.Pi*220*float64(s.index)/float64(s.rate)))
		}
		binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
		s.index++
	}
	return n * 2, nil
}

func (s *toneSession) Close() error { return s.Stop() }

func (s *toneSession) Stop() error {
	s.once.Do(func() {
		close(s.stopped)
		s.owner.mu.Lock()
		s.owner.open--
		s.owner.mu.Unlock()
	})
	return nil
}

type fakeTranscriber struct {
	text string
	err  error
	gate chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, buf *domain.CaptureBuffer) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if !buf.Sealed() {
		return "", errors.New("buffer not sealed")
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDispatcher struct {
	mu     sync.Mutex
	texts  []string
	result *domain.DispatchResult
}

func (f *fakeDispatcher) Process(_ context.Context, text string) domain.DispatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.result != nil {
		return *f.result
	}
	return domain.DispatchResult{
		Success: true,
		Results: []domain.OutputResult{{SinkName: "file", Success: true, Message: "Text saved"}},
	}
}

func (f *fakeDispatcher) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

type fakeChime struct {
	mu    sync.Mutex
	plays int
}

func (f *fakeChime) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return nil
}

func (f *fakeChime) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays
}

type fakeEventSink struct {
	mu sync.Mutex

	states  []domain.StateChange
	errors  []errEvent
	outputs []domain.OutputStatus
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(change domain.StateChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, change)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) OutputStatus(status domain.OutputStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, status)
}

func (f *fakeEventSink) snapshotStates() []domain.StateChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StateChange, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotOutputs() []domain.OutputStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OutputStatus, len(f.outputs))
	copy(out, f.outputs)
	return out
}

func (f *fakeEventSink) countState(state domain.SessionState) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.states {
		if s.State == state {
			n++
		}
	}
	return n
}

func stateSequence(changes []domain.StateChange) []domain.SessionState {
	out := make([]domain.SessionState, len(changes))
	for i, c := range changes {
		out[i] = c.State
	}
	return out
}
