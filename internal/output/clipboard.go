package output

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"

	"voxscribe/internal/domain"
	"voxscribe/internal/ports"
)

// SystemClipboard writes to the desktop clipboard.
type SystemClipboard struct{}

func (SystemClipboard) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}

// ClipboardSink copies transcripts to a clipboard.
type ClipboardSink struct {
	clipboard ports.Clipboard
}

func NewClipboardSink(cb ports.Clipboard) *ClipboardSink {
	if cb == nil {
		cb = SystemClipboard{}
	}
	return &ClipboardSink{clipboard: cb}
}

func (s *ClipboardSink) Name() string { return "clipboard" }

func (s *ClipboardSink) Deliver(ctx context.Context, text string) domain.OutputResult {
	if err := s.clipboard.SetText(ctx, text); err != nil {
		return domain.OutputResult{
			SinkName: s.Name(),
			Success:  false,
			Message:  fmt.Sprintf("Failed to copy to clipboard: %v", err),
		}
	}
	return domain.OutputResult{SinkName: s.Name(), Success: true, Message: "Text copied to clipboard"}
}
