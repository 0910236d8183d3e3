package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"voxscribe/internal/domain"
	"voxscribe/internal/ports"
)

// FrameSource slices a live PCM stream into fixed-size frames.
type FrameSource struct {
	session ports.AudioSession
	frames  chan domain.AudioFrame

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopErr  error

	errMu sync.Mutex
	err   error
}

func openFrameSource(ctx context.Context, capture ports.AudioCapture, cfg ports.AudioConfig, frameDuration time.Duration) (*FrameSource, error) {
	samples := int(int64(cfg.SampleRate) * int64(frameDuration) / int64(time.Second))
	if samples <= 0 {
		return nil, fmt.Errorf("%w: %d Hz / %s", domain.ErrInvalidFrameShape, cfg.SampleRate, frameDuration)
	}

	session, err := capture.Start(ctx, cfg)
	if err != nil {
		if !errors.Is(err, domain.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		return nil, err
	}

	src := &FrameSource{
		session: session,
		frames:  make(chan domain.AudioFrame, 8),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go src.readLoop(samples, cfg.SampleRate)
	return src, nil
}

// Frames is closed when the stream ends or the source is closed.
func (s *FrameSource) Frames() <-chan domain.AudioFrame {
	return s.frames
}

// Err reports why the stream ended on its own; nil after a requested Close.
func (s *FrameSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close stops the device and blocks until the reader goroutine has exited.
func (s *FrameSource) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.stopErr = s.session.Stop()
	})
	<-s.done
	return s.stopErr
}

func (s *FrameSource) readLoop(samplesPerFrame int, sampleRate int) {
	defer close(s.done)
	defer close(s.frames)

	raw := make([]byte, samplesPerFrame*2)
	for {
		if _, err := io.ReadFull(s.session, raw); err != nil {
			select {
			case <-s.stop:
			default:
				switch {
				case errors.Is(err, domain.ErrDeviceUnavailable):
				case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
					err = fmt.Errorf("%w: audio stream ended", domain.ErrDeviceUnavailable)
				default:
					err = fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
				}
				s.setErr(err)
			}
			return
		}

		frame := domain.AudioFrame{Samples: decodeS16LE(raw), SampleRate: sampleRate}
		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		}
	}
}

func (s *FrameSource) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func decodeS16LE(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out
}
