package vad

import (
	"fmt"
	"math"

	"voxscribe/internal/domain"
)

// Aggressiveness tunes how hard non-speech is filtered, 0 (permissive) to 3.
type Aggressiveness int

const (
	AggressivenessPermissive Aggressiveness = 0
	AggressivenessLow        Aggressiveness = 1
	AggressivenessDefault    Aggressiveness = 2
	AggressivenessHigh       Aggressiveness = 3
)

// Classifier decides whether a single frame contains speech.
type Classifier interface {
	Classify(frame domain.AudioFrame) (bool, error)
}

type profile struct {
	// minimum frame energy, dBFS
	energyFloor float64
	// maximum zero-crossing rate; hiss and clicks cross far more often than voiced speech
	maxCrossingRate float64
}

var profiles = [...]profile{
	{energyFloor: -50, maxCrossingRate: 1.0},
	{energyFloor: -45, maxCrossingRate: 0.5},
	{energyFloor: -40, maxCrossingRate: 0.4},
	{energyFloor: -35, maxCrossingRate: 0.3},
}

var (
	supportedRates     = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}
	supportedDurations = []int{10, 20, 30}
)

// Detector is an energy and zero-crossing speech classifier. It keeps no
// state between calls.
type Detector struct {
	level   Aggressiveness
	profile profile
}

func NewDetector(level Aggressiveness) (*Detector, error) {
	if level < AggressivenessPermissive || level > AggressivenessHigh {
		return nil, fmt.Errorf("vad aggressiveness must be between 0 and 3, got %d", level)
	}
	return &Detector{level: level, profile: profiles[level]}, nil
}

func (d *Detector) Aggressiveness() Aggressiveness {
	return d.level
}

// Classify reports whether frame contains speech.
func (d *Detector) Classify(frame domain.AudioFrame) (bool, error) {
	if err := ValidateFrame(frame); err != nil {
		return false, err
	}

	energy := energyDBFS(frame.Samples)
	if energy < d.profile.energyFloor {
		return false, nil
	}
	return crossingRate(frame.Samples) <= d.profile.maxCrossingRate, nil
}

// ValidateFrame checks the frame is 10, 20 or 30 ms at 8/16/32/48 kHz.
func ValidateFrame(frame domain.AudioFrame) error {
	if !supportedRates[frame.SampleRate] {
		return fmt.Errorf("%w: unsupported sample rate %d", domain.ErrInvalidFrameShape, frame.SampleRate)
	}
	for _, ms := range supportedDurations {
		if len(frame.Samples) == frame.SampleRate*ms/1000 {
			return nil
		}
	}
	return fmt.Errorf("%w: %d samples at %d Hz is not a 10/20/30 ms frame", domain.ErrInvalidFrameShape, len(frame.Samples), frame.SampleRate)
}

// ValidFrameDuration reports whether ms is an accepted frame length.
func ValidFrameDuration(ms int) bool {
	for _, d := range supportedDurations {
		if d == ms {
			return true
		}
	}
	return false
}

func ValidSampleRate(rate int) bool {
	return supportedRates[rate]
}

func energyDBFS(samples []int16) float64 {
	var sum float64
	for _, sample := range samples {
		v := float64(sample) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

func crossingRate(samples []int16) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
