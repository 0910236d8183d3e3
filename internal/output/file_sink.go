package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voxscribe/internal/domain"
)

const timestampLayout = "2006-01-02 15:04:05"

// FileMode selects how the transcription log is written.
type FileMode string

const (
	FileModeAppend    FileMode = "append"
	FileModeOverwrite FileMode = "overwrite"
)

// FileConfig controls the file sink.
type FileConfig struct {
	Path            string
	Mode            FileMode
	Timestamp       bool
	CreateDirectory bool
}

// FileSink writes transcripts to a plain-text log.
type FileSink struct {
	cfg FileConfig
	now func() time.Time

	mu sync.Mutex
}

func NewFileSink(cfg FileConfig) *FileSink {
	if cfg.Mode == "" {
		cfg.Mode = FileModeAppend
	}
	return &FileSink{cfg: cfg, now: time.Now}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Deliver(_ context.Context, text string) domain.OutputResult {
	if err := s.write(text); err != nil {
		return domain.OutputResult{
			SinkName: s.Name(),
			Success:  false,
			Message:  fmt.Sprintf("Failed to save to file: %v", err),
		}
	}
	return domain.OutputResult{
		SinkName: s.Name(),
		Success:  true,
		Message:  fmt.Sprintf("Text saved to %s (mode: %s)", s.cfg.Path, s.cfg.Mode),
	}
}

func (s *FileSink) write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Path == "" {
		return fmt.Errorf("%w: no file path configured", domain.ErrSinkWriteFailed)
	}
	if s.cfg.CreateDirectory {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSinkWriteFailed, err)
		}
	}

	entry := text
	if s.cfg.Timestamp {
		entry = "[" + s.now().Format(timestampLayout) + "] " + text
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if s.cfg.Mode == FileModeOverwrite {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(s.cfg.Path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSinkWriteFailed, err)
	}
	defer f.Close()

	if s.cfg.Mode == FileModeAppend {
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSinkWriteFailed, err)
		}
		if info.Size() > 0 {
			entry = "\n" + entry
		}
	}

	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSinkWriteFailed, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSinkWriteFailed, err)
	}
	return nil
}
