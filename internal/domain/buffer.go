package domain

import (
	"encoding/binary"
	"sync"
	"time"
)

// CaptureBuffer accumulates frames while a capture session is recording.
// Once sealed it is read-only and safe to hand to another goroutine.
type CaptureBuffer struct {
	mu         sync.Mutex
	sampleRate int
	frames     []AudioFrame
	sealed     bool
}

func NewCaptureBuffer(sampleRate int) *CaptureBuffer {
	return &CaptureBuffer{sampleRate: sampleRate}
}

// Append adds a frame. It fails once the buffer is sealed.
func (b *CaptureBuffer) Append(frame AudioFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return ErrBufferSealed
	}
	b.frames = append(b.frames, frame)
	return nil
}

// Seal makes the buffer immutable. Sealing twice is a no-op.
func (b *CaptureBuffer) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
}

func (b *CaptureBuffer) Sealed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealed
}

func (b *CaptureBuffer) SampleRate() int {
	return b.sampleRate
}

func (b *CaptureBuffer) FrameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Samples returns all captured samples in order.
func (b *CaptureBuffer) Samples() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, frame := range b.frames {
		total += len(frame.Samples)
	}
	out := make([]int16, 0, total)
	for _, frame := range b.frames {
		out = append(out, frame.Samples...)
	}
	return out
}

// PCM returns the samples as little-endian s16 bytes.
func (b *CaptureBuffer) PCM() []byte {
	samples := b.Samples()
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

func (b *CaptureBuffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total time.Duration
	for _, frame := range b.frames {
		total += frame.Duration()
	}
	return total
}
