package usecase

import "voxscribe/internal/domain"

// trigger is anything that can move the orchestrator.
type trigger int

const (
	triggerActivate trigger = iota
	triggerDeactivate
	triggerStop
	triggerCancel
	triggerShutdown
	triggerOnset
	triggerUtteranceEnd
	triggerMaxDuration
	triggerTranscript
	triggerTranscriptionFailed
	triggerDeviceFailed
)

var triggerNames = map[trigger]string{
	triggerActivate:            "activate",
	triggerDeactivate:          "deactivate",
	triggerStop:                "stop",
	triggerCancel:              "cancel",
	triggerShutdown:            "shutdown",
	triggerOnset:               "onset",
	triggerUtteranceEnd:        "utterance_end",
	triggerMaxDuration:         "max_duration",
	triggerTranscript:          "transcript",
	triggerTranscriptionFailed: "transcription_failed",
	triggerDeviceFailed:        "device_failed",
}

func (t trigger) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return "unknown"
}

// internal triggers come from a listener, capture or transcription run and
// carry the generation of that run.
func (t trigger) internal() bool {
	return t >= triggerOnset
}

type action int

const (
	actionIgnore action = iota
	actionArmListener
	actionDisarmListener
	actionRecordOnset
	actionStartRecording
	actionFinishRecording
	actionFinishAndDisarm
	actionDiscardRecording
	actionDisarmLoop
	actionDropTranscription
	actionDeliver
	actionFail
	actionShutdown
)

var actionNames = map[action]string{
	actionIgnore:            "ignore",
	actionArmListener:       "arm_listener",
	actionDisarmListener:    "disarm_listener",
	actionRecordOnset:       "record_onset",
	actionStartRecording:    "start_recording",
	actionFinishRecording:   "finish_recording",
	actionFinishAndDisarm:   "finish_and_disarm",
	actionDiscardRecording:  "discard_recording",
	actionDisarmLoop:        "disarm_loop",
	actionDropTranscription: "drop_transcription",
	actionDeliver:           "deliver",
	actionFail:              "fail",
	actionShutdown:          "shutdown",
}

func (a action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// decide is the mode table. It has no side effects.
func decide(mode domain.RecordingMode, state domain.SessionState, t trigger) action {
	if t == triggerShutdown {
		if state == domain.SessionStateCancelled {
			return actionIgnore
		}
		return actionShutdown
	}

	switch state {
	case domain.SessionStateIdle:
		if t == triggerActivate {
			if mode == domain.ModeAutoVoiceActivation {
				return actionArmListener
			}
			return actionStartRecording
		}

	case domain.SessionStateListening:
		switch t {
		case triggerOnset:
			return actionRecordOnset
		case triggerActivate, triggerStop, triggerCancel:
			return actionDisarmListener
		case triggerDeviceFailed:
			return actionFail
		}

	case domain.SessionStateRecording:
		switch t {
		case triggerActivate:
			switch mode {
			case domain.ModePressToToggle:
				return actionFinishRecording
			case domain.ModeHoldToRecord:
				return actionIgnore
			default:
				return actionFinishAndDisarm
			}
		case triggerDeactivate:
			if mode == domain.ModeHoldToRecord {
				return actionFinishRecording
			}
		case triggerStop:
			return actionFinishAndDisarm
		case triggerUtteranceEnd:
			if mode.Loops() {
				return actionFinishRecording
			}
		case triggerMaxDuration:
			return actionFinishRecording
		case triggerCancel:
			return actionDiscardRecording
		case triggerDeviceFailed:
			return actionFail
		}

	case domain.SessionStateTranscribing:
		switch t {
		case triggerTranscript:
			return actionDeliver
		case triggerTranscriptionFailed:
			return actionFail
		case triggerActivate, triggerStop:
			if mode.Loops() {
				return actionDisarmLoop
			}
		case triggerCancel:
			return actionDropTranscription
		}
	}

	return actionIgnore
}
