package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voxscribe/internal/domain"
	"voxscribe/internal/ports"
)

// Microphone hands out at most one lease on the capture device at a time.
// Only a lease holder can open a FrameSource.
type Microphone struct {
	capture       ports.AudioCapture
	cfg           ports.AudioConfig
	frameDuration time.Duration

	token chan struct{}

	mu     sync.Mutex
	holder string
}

func NewMicrophone(capture ports.AudioCapture, cfg ports.AudioConfig, frameDuration time.Duration) *Microphone {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if frameDuration <= 0 {
		frameDuration = 30 * time.Millisecond
	}
	m := &Microphone{
		capture:       capture,
		cfg:           cfg,
		frameDuration: frameDuration,
		token:         make(chan struct{}, 1),
	}
	m.token <- struct{}{}
	return m
}

// Acquire takes the lease without waiting.
func (m *Microphone) Acquire(owner string) (*Lease, error) {
	select {
	case <-m.token:
	default:
		return nil, fmt.Errorf("%w: held by %s", domain.ErrMicrophoneBusy, m.Holder())
	}

	m.mu.Lock()
	m.holder = owner
	m.mu.Unlock()
	return &Lease{mic: m, owner: owner}, nil
}

// Holder names the current lease owner, or "" when the microphone is free.
func (m *Microphone) Holder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

func (m *Microphone) SampleRate() int              { return m.cfg.SampleRate }
func (m *Microphone) FrameDuration() time.Duration { return m.frameDuration }

// Lease is the capability to open the microphone.
type Lease struct {
	mic   *Microphone
	owner string

	mu       sync.Mutex
	released bool
}

func (l *Lease) Owner() string { return l.owner }

// Open starts the device and returns a frame stream.
func (l *Lease) Open(ctx context.Context) (*FrameSource, error) {
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if released {
		return nil, fmt.Errorf("%w: lease for %s already released", domain.ErrMicrophoneBusy, l.owner)
	}
	return openFrameSource(ctx, l.mic.capture, l.mic.cfg, l.mic.frameDuration)
}

// Release returns the microphone. Callers must close any FrameSource first.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true

	l.mic.mu.Lock()
	l.mic.holder = ""
	l.mic.mu.Unlock()
	l.mic.token <- struct{}{}
}
