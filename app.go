package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gen2brain/beeep"

	"voxscribe/internal/bootstrap"
	"voxscribe/internal/config"
	"voxscribe/internal/domain"
	"voxscribe/internal/ports"
	"voxscribe/internal/usecase"
)

const notifyTitle = "voxscribe"

// notifier shows a desktop notification.
type notifier func(title, message string) error

func desktopNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// App is the runtime root. It drives the orchestrator and is its status sink.
type App struct {
	logger     *slog.Logger
	notify     notifier
	hideStatus bool

	orchestrator *usecase.Orchestrator
	services     bootstrap.Services
	bootErr      error
}

func NewApp(logger *slog.Logger, notify notifier, hideStatus bool) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger, notify: notify, hideStatus: hideStatus}
}

func (a *App) startup(cfg config.Config, clipboard ports.Clipboard) error {
	services, err := bootstrap.Build(cfg, a, clipboard, beepChime{}, a.logger)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return err
	}

	a.services = services
	a.orchestrator = services.Orchestrator
	a.SessionStateChanged(domain.StateChange{State: domain.SessionStateIdle, Reason: domain.SessionReasonMicCold})
	return nil
}

// Activate forwards an activation press.
func (a *App) Activate() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.Activate()
}

// Deactivate forwards an activation release.
func (a *App) Deactivate() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.Deactivate()
}

// Stop ends a loop or an in-progress recording.
func (a *App) Stop() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.Stop()
}

// Cancel discards whatever is in progress.
func (a *App) Cancel() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.orchestrator.Cancel()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.orchestrator == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError}
		}
		return domain.Status{State: domain.SessionStateIdle}
	}
	return a.orchestrator.Status()
}

// GetRuntimeInfo returns non-sensitive config for status output.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	cfg := a.services.Config
	model := cfg.Deepgram.Model
	if cfg.Transcription.Provider == "whisper" {
		model = cfg.Whisper.Model
	}
	return map[string]string{
		"mode":        string(cfg.Recording.Mode),
		"provider":    cfg.Transcription.Provider,
		"model":       model,
		"backend":     cfg.Recording.Backend,
		"audioInput":  cfg.Recording.Device,
		"outputFile":  cfg.Output.FilePath,
		"sampleRate":  fmt.Sprint(cfg.Recording.SampleRate),
		"metricsAddr": cfg.Metrics.Address,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.orchestrator == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

// SessionStateChanged logs lifecycle updates and mirrors the interesting
// ones to the desktop.
func (a *App) SessionStateChanged(change domain.StateChange) {
	message := sessionReasonMessage(change.Reason)
	a.logger.Info("session.state", "state", string(change.State), "reason", string(change.Reason))
	if message != "" {
		a.desktop(message)
	}
}

// SessionError logs backend errors and surfaces them on the desktop.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.logger.Error("session.error", "code", string(code), "detail", detail)
	a.desktop(errorMessage(code, detail))
}

// OutputStatus reports per-sink delivery outcomes.
func (a *App) OutputStatus(status domain.OutputStatus) {
	if status.Success {
		a.logger.Info("output.status", "message", status.Message)
		return
	}
	a.logger.Warn("output.status", "message", status.Message)
	a.desktop(status.Message)
}

func (a *App) desktop(message string) {
	if a.hideStatus || a.notify == nil || message == "" {
		return
	}
	// EventSink callbacks must not block.
	go func() {
		if err := a.notify(notifyTitle, message); err != nil {
			a.logger.Debug("notify failed", "error", err)
		}
	}()
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonMicCold:
		return "Mic cold"
	case domain.SessionReasonListeningArmed:
		return "Listening for speech"
	case domain.SessionReasonListeningDisarmed:
		return "Stopped listening"
	case domain.SessionReasonVoiceDetected:
		return "Voice detected. Recording..."
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecordingRestarted:
		return "Recording next utterance"
	case domain.SessionReasonTranscribing:
		return "Recording stopped. Transcribing..."
	case domain.SessionReasonLoopStopped:
		return "Dictation loop stopped"
	case domain.SessionReasonTranscriptDelivered:
		return "Transcript delivered"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonNoTranscript:
		return "No transcript captured"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonDeviceUnavailable:
		return "Microphone unavailable"
	case domain.SessionReasonDeviceLost:
		return "Microphone lost"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDevice:
		return "Microphone error"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeOutput:
		return "Output delivery failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// beepChime is the completion sound.
type beepChime struct{}

func (beepChime) Play() error {
	return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}
