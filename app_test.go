package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"voxscribe/internal/config"
	"voxscribe/internal/domain"
)

func TestSessionReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.SessionStateReason]string{
		domain.SessionReasonMicCold:             "Mic cold",
		domain.SessionReasonListeningArmed:      "Listening for speech",
		domain.SessionReasonVoiceDetected:       "Voice detected. Recording...",
		domain.SessionReasonRecordingStarted:    "Recording started",
		domain.SessionReasonRecordingRestarted:  "Recording next utterance",
		domain.SessionReasonTranscribing:        "Recording stopped. Transcribing...",
		domain.SessionReasonLoopStopped:         "Dictation loop stopped",
		domain.SessionReasonRecordingDiscarded:  "Recording discarded",
		domain.SessionReasonNoTranscript:        "No transcript captured",
		domain.SessionReasonTranscriptionFailed: "Transcription failed",
		domain.SessionReasonDeviceLost:          "Microphone lost",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := sessionReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := sessionReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:       "Startup failed",
		domain.ErrorCodeDevice:        "Microphone error",
		domain.ErrorCodeAudioStop:     "Audio stop issue",
		domain.ErrorCodeTranscription: "Transcription error",
		domain.ErrorCodeOutput:        "Output delivery failed",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := NewApp(discardLogger(), nil, true)
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}
	if err := app.Activate(); err == nil {
		t.Fatalf("expected activate to fail before startup")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := NewApp(discardLogger(), nil, true)
	status := app.GetStatus()
	if status.State != domain.SessionStateIdle || status.Active {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.SessionStateError || status.Active {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

func TestStartupFailureNotifiesAndReportsError(t *testing.T) {
	t.Parallel()

	notes := &recordingNotifier{}
	app := NewApp(discardLogger(), notes.notify, false)

	err := app.startup(config.Config{}, nil)
	if err == nil {
		t.Fatalf("expected startup error for zero config")
	}
	waitForNotes(t, notes, 1)
	if got := notes.snapshot(); got[0] != "Startup failed" {
		t.Fatalf("unexpected notification %q", got[0])
	}
}

func TestHideStatusSuppressesNotificationsButLogs(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	notes := &recordingNotifier{}
	app := NewApp(slog.New(slog.NewTextHandler(&logs, nil)), notes.notify, true)

	app.SessionStateChanged(domain.StateChange{State: domain.SessionStateRecording, Reason: domain.SessionReasonRecordingStarted})
	app.SessionError(domain.ErrorCodeDevice, "no mic")
	app.OutputStatus(domain.OutputStatus{Message: "Failed to save to file: denied"})

	time.Sleep(20 * time.Millisecond)
	if got := notes.snapshot(); len(got) != 0 {
		t.Fatalf("expected no notifications, got %v", got)
	}
	for _, want := range []string{"reason=recording_started", "code=device", "Failed to save to file"} {
		if !strings.Contains(logs.String(), want) {
			t.Fatalf("expected %q in logs: %s", want, logs.String())
		}
	}
}

func TestOutputStatusNotifiesOnlyFailures(t *testing.T) {
	t.Parallel()

	notes := &recordingNotifier{}
	app := NewApp(discardLogger(), notes.notify, false)

	app.OutputStatus(domain.OutputStatus{Message: "Text copied to clipboard", Success: true})
	app.OutputStatus(domain.OutputStatus{Message: "Failed to copy to clipboard: no display"})

	waitForNotes(t, notes, 1)
	time.Sleep(20 * time.Millisecond)
	if got := notes.snapshot(); len(got) != 1 || got[0] != "Failed to copy to clipboard: no display" {
		t.Fatalf("unexpected notifications %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger := newLogger(&out, config.LoggingConfig{Level: "info", Format: "json"})
	logger.Info("hello", "key", "value")
	if !strings.Contains(out.String(), `"msg":"hello"`) || !strings.Contains(out.String(), `"key":"value"`) {
		t.Fatalf("unexpected json log: %s", out.String())
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) notify(_, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingNotifier) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

func waitForNotes(t *testing.T, r *recordingNotifier, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(r.snapshot()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d notifications", n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
