package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxscribe/internal/audio"
	"voxscribe/internal/domain"
)

// Hooks observe a running session. They are called from the session's pump
// goroutine and must not block.
type Hooks struct {
	OnFrame   func(frame domain.AudioFrame)
	OnFailure func(err error)
}

// Recorder creates capture sessions and enforces that at most one is active.
type Recorder struct {
	logger *slog.Logger

	mu     sync.Mutex
	active *Session
}

func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Start opens the microphone through lease and begins recording. The
// session owns lease from here on and releases it on Stop or Cancel.
func (r *Recorder) Start(ctx context.Context, lease *audio.Lease, sampleRate int, hooks Hooks) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, domain.ErrAlreadyActive
	}

	src, err := lease.Open(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        uuid.New(),
		recorder:  r,
		lease:     lease,
		src:       src,
		buf:       domain.NewCaptureBuffer(sampleRate),
		hooks:     hooks,
		startedAt: time.Now(),
		pumpDone:  make(chan struct{}),
		logger:    r.logger,
	}
	r.active = s

	go s.pump()

	r.logger.Info("capture started", slog.String("session_id", s.id.String()))
	return s, nil
}

// Active returns the active session, if any.
func (r *Recorder) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) detach(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

// Session owns the microphone while recording into its buffer.
type Session struct {
	id        uuid.UUID
	recorder  *Recorder
	lease     *audio.Lease
	src       *audio.FrameSource
	buf       *domain.CaptureBuffer
	hooks     Hooks
	startedAt time.Time
	logger    *slog.Logger

	pumpDone chan struct{}

	mu       sync.Mutex
	stopping bool
	finished bool
}

func (s *Session) ID() string { return s.id.String() }

// Stop seals the buffer, releases the device and hands the buffer to the caller.
func (s *Session) Stop() (*domain.CaptureBuffer, error) {
	if err := s.finish(); err != nil {
		return nil, err
	}
	s.logger.Info("capture stopped",
		slog.String("session_id", s.ID()),
		slog.Int("frames", s.buf.FrameCount()),
		slog.Duration("audio", s.buf.Duration()),
	)
	buf := s.buf
	s.buf = nil
	return buf, nil
}

// Cancel is Stop without handing over the buffer.
func (s *Session) Cancel() error {
	if err := s.finish(); err != nil {
		return err
	}
	s.logger.Info("capture cancelled", slog.String("session_id", s.ID()))
	s.buf = nil
	return nil
}

func (s *Session) finish() error {
	s.mu.Lock()
	if s.finished || s.stopping {
		s.mu.Unlock()
		return domain.ErrNotActive
	}
	s.stopping = true
	s.mu.Unlock()

	if err := s.src.Close(); err != nil {
		s.logger.Warn("capture device stop", slog.String("session_id", s.ID()), slog.String("error", err.Error()))
	}
	<-s.pumpDone
	s.buf.Seal()
	s.lease.Release()
	s.recorder.detach(s)

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	return nil
}

func (s *Session) pump() {
	defer close(s.pumpDone)

	for frame := range s.src.Frames() {
		if err := s.buf.Append(frame); err != nil {
			return
		}
		if s.hooks.OnFrame != nil {
			s.hooks.OnFrame(frame)
		}
	}

	s.mu.Lock()
	stopping := s.stopping
	s.mu.Unlock()
	if err := s.src.Err(); err != nil && !stopping {
		s.logger.Error("capture stream lost", slog.String("session_id", s.ID()), slog.String("error", err.Error()))
		if s.hooks.OnFailure != nil {
			s.hooks.OnFailure(err)
		}
	}
}
