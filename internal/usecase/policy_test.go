package usecase

import (
	"testing"

	"voxscribe/internal/domain"
)

func TestDecideModeTable(t *testing.T) {
	t.Parallel()

	const (
		toggle = domain.ModePressToToggle
		hold   = domain.ModeHoldToRecord
		loop   = domain.ModeContinuous
		auto   = domain.ModeAutoVoiceActivation

		idle         = domain.SessionStateIdle
		listening    = domain.SessionStateListening
		recording    = domain.SessionStateRecording
		transcribing = domain.SessionStateTranscribing
		cancelled    = domain.SessionStateCancelled
	)

	tests := []struct {
		mode    domain.RecordingMode
		state   domain.SessionState
		trigger trigger
		want    action
	}{
		{toggle, idle, triggerActivate, actionStartRecording},
		{hold, idle, triggerActivate, actionStartRecording},
		{loop, idle, triggerActivate, actionStartRecording},
		{auto, idle, triggerActivate, actionArmListener},
		{hold, idle, triggerDeactivate, actionIgnore},
		{toggle, idle, triggerCancel, actionIgnore},

		{auto, listening, triggerOnset, actionRecordOnset},
		{auto, listening, triggerActivate, actionDisarmListener},
		{auto, listening, triggerCancel, actionDisarmListener},
		{auto, listening, triggerDeactivate, actionIgnore},
		{auto, listening, triggerDeviceFailed, actionFail},

		{toggle, recording, triggerActivate, actionFinishRecording},
		{toggle, recording, triggerDeactivate, actionIgnore},
		{hold, recording, triggerActivate, actionIgnore},
		{hold, recording, triggerDeactivate, actionFinishRecording},
		{loop, recording, triggerActivate, actionFinishAndDisarm},
		{auto, recording, triggerActivate, actionFinishAndDisarm},
		{loop, recording, triggerStop, actionFinishAndDisarm},
		{loop, recording, triggerUtteranceEnd, actionFinishRecording},
		{toggle, recording, triggerUtteranceEnd, actionIgnore},
		{hold, recording, triggerMaxDuration, actionFinishRecording},
		{toggle, recording, triggerCancel, actionDiscardRecording},
		{hold, recording, triggerDeviceFailed, actionFail},
		{toggle, recording, triggerOnset, actionIgnore},

		{toggle, transcribing, triggerActivate, actionIgnore},
		{hold, transcribing, triggerActivate, actionIgnore},
		{loop, transcribing, triggerActivate, actionDisarmLoop},
		{auto, transcribing, triggerStop, actionDisarmLoop},
		{toggle, transcribing, triggerTranscript, actionDeliver},
		{loop, transcribing, triggerTranscriptionFailed, actionFail},
		{hold, transcribing, triggerCancel, actionDropTranscription},

		{toggle, recording, triggerShutdown, actionShutdown},
		{auto, idle, triggerShutdown, actionShutdown},
		{auto, cancelled, triggerShutdown, actionIgnore},
		{toggle, cancelled, triggerActivate, actionIgnore},
	}

	for _, tt := range tests {
		if got := decide(tt.mode, tt.state, tt.trigger); got != tt.want {
			t.Fatalf("decide(%s, %s, %s) = %s, want %s", tt.mode, tt.state, tt.trigger, got, tt.want)
		}
	}
}

func TestUtteranceTrackerFiresOnceAfterTrailingSilence(t *testing.T) {
	t.Parallel()

	tracker := newUtteranceTracker(stubClassifier{}, 2)
	speech := domain.AudioFrame{Samples: []int16{1}, SampleRate: 16000}
	quiet := domain.AudioFrame{Samples: []int16{0}, SampleRate: 16000}

	sequence := []struct {
		frame domain.AudioFrame
		want  bool
	}{
		{quiet, false},
		{quiet, false},
		{quiet, false},
		{speech, false},
		{quiet, false},
		{speech, false},
		{quiet, false},
		{quiet, true},
		{quiet, false},
		{speech, false},
		{quiet, false},
		{quiet, false},
	}
	for i, step := range sequence {
		if got := tracker.observe(step.frame); got != step.want {
			t.Fatalf("frame %d: expected %t, got %t", i, step.want, got)
		}
	}
}

func TestUtteranceTrackerDisabled(t *testing.T) {
	t.Parallel()

	tracker := newUtteranceTracker(stubClassifier{}, 0)
	if tracker.observe(domain.AudioFrame{Samples: []int16{0}}) {
		t.Fatalf("disabled tracker must never fire")
	}
}

// stubClassifier treats any non-zero first sample as speech.
type stubClassifier struct{}

func (stubClassifier) Classify(frame domain.AudioFrame) (bool, error) {
	return len(frame.Samples) > 0 && frame.Samples[0] != 0, nil
}
