// Package miniaudio captures the microphone in-process through malgo.
package miniaudio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"voxscribe/internal/domain"
	"voxscribe/internal/ports"
)

const chunkQueue = 64

// Capture implements ports.AudioCapture on top of miniaudio.
type Capture struct {
	logger *slog.Logger
}

func NewCapture(logger *slog.Logger) *Capture {
	return &Capture{logger: logger}
}

func (c *Capture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		c.logger.Debug("miniaudio", slog.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init miniaudio context: %v", domain.ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)

	if name := strings.TrimSpace(cfg.InputDevice); name != "" && name != "default" {
		id, err := findCaptureDevice(mctx, name)
		if err != nil {
			releaseContext(mctx)
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	session := &session{
		chunks: make(chan []byte, chunkQueue),
		closed: make(chan struct{}),
		mctx:   mctx,
		logger: c.logger,
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			session.push(input)
		},
	})
	if err != nil {
		releaseContext(mctx)
		return nil, fmt.Errorf("%w: init capture device: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		releaseContext(mctx)
		return nil, fmt.Errorf("%w: start capture device: %v", domain.ErrDeviceUnavailable, err)
	}
	session.device = device

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Stop()
		case <-session.closed:
		}
	}()

	return session, nil
}

func findCaptureDevice(mctx *malgo.AllocatedContext, name string) (malgo.DeviceID, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("%w: list capture devices: %v", domain.ErrDeviceUnavailable, err)
	}
	for _, info := range infos {
		if strings.EqualFold(info.Name(), name) {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("%w: capture device %q not found", domain.ErrDeviceUnavailable, name)
}

func releaseContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

type session struct {
	device *malgo.Device
	mctx   *malgo.AllocatedContext
	logger *slog.Logger

	chunks  chan []byte
	pending []byte

	mu       sync.Mutex
	closed   chan struct{}
	stopped  bool
	dropped  int
	stopOnce sync.Once
}

// push runs on the audio thread and never blocks.
func (s *session) push(input []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.chunks <- append([]byte(nil), input...):
	default:
		s.dropped++
	}
}

func (s *session) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		select {
		case chunk := <-s.chunks:
			s.pending = chunk
		case <-s.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *session) Close() error {
	return s.Stop()
}

func (s *session) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		dropped := s.dropped
		close(s.closed)
		s.mu.Unlock()

		if s.device != nil {
			_ = s.device.Stop()
			s.device.Uninit()
		}
		releaseContext(s.mctx)

		if dropped > 0 {
			s.logger.Warn("capture chunks dropped", slog.Int("dropped", dropped))
		}
	})
	return nil
}
