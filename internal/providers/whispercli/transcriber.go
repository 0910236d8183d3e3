package whispercli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"voxscribe/internal/audio"
	"voxscribe/internal/domain"
)

// Config controls the local whisper.cpp CLI.
type Config struct {
	Command  string
	Model    string
	Language string
	Threads  int
	TempDir  string
}

// Transcriber implements ports.Transcriber by writing the buffer to a
// temporary WAV file and running the whisper.cpp CLI on it.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Transcriber {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = "whisper-cli"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{cfg: cfg, logger: logger}
}

func (t *Transcriber) Transcribe(ctx context.Context, buf *domain.CaptureBuffer) (string, error) {
	if strings.TrimSpace(t.cfg.Model) == "" {
		return "", fmt.Errorf("%w: whisper model path is not configured", domain.ErrTranscriptionFailed)
	}
	if buf == nil || !buf.Sealed() {
		return "", fmt.Errorf("%w: capture buffer is not sealed", domain.ErrTranscriptionFailed)
	}

	tmp, err := os.CreateTemp(t.cfg.TempDir, "voxscribe-*.wav")
	if err != nil {
		return "", fmt.Errorf("%w: create temp wav: %v", domain.ErrTranscriptionFailed, err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)

	if err := audio.WriteWAVFile(path, buf.Samples(), buf.SampleRate()); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.cfg.Command, commandArgs(t.cfg, path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, ctxErr)
		}
		if msg := trimOutput(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s: %v (%s)", domain.ErrTranscriptionFailed, t.cfg.Command, err, msg)
		}
		return "", fmt.Errorf("%w: %s: %v", domain.ErrTranscriptionFailed, t.cfg.Command, err)
	}

	text := collectText(stdout.String())
	t.logger.Debug("whisper finished", slog.Duration("elapsed", time.Since(started)), slog.Int("chars", len(text)))
	return text, nil
}

func commandArgs(cfg Config, wavPath string) []string {
	args := []string{"-m", cfg.Model, "-f", wavPath, "-nt", "-np"}
	if cfg.Language != "" {
		args = append(args, "-l", cfg.Language)
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", cfg.Threads))
	}
	return args
}

// collectText joins the non-empty output lines into one transcript.
func collectText(out string) string {
	var parts []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 400 {
		return s[len(s)-400:]
	}
	return s
}
