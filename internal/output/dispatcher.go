package output

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voxscribe/internal/domain"
)

// Sink delivers a transcript to one destination. Deliver reports failures in
// the returned result instead of returning them.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, text string) domain.OutputResult
}

// Channel is a configured sink with its enable flag.
type Channel struct {
	Sink    Sink
	Enabled bool
}

// Dispatcher fans a transcript out to every enabled channel concurrently.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channels: channels, logger: logger}
}

// Process delivers text to every enabled sink. Success is the AND of the
// enabled sinks' outcomes; results keep configuration order.
func (d *Dispatcher) Process(ctx context.Context, text string) domain.DispatchResult {
	if strings.TrimSpace(text) == "" {
		d.logger.Warn("empty transcript, nothing dispatched")
		return domain.DispatchResult{Success: false}
	}

	var enabled []Sink
	for _, ch := range d.channels {
		if ch.Enabled && ch.Sink != nil {
			enabled = append(enabled, ch.Sink)
		}
	}

	results := make([]domain.OutputResult, len(enabled))
	var wg sync.WaitGroup
	for i, sink := range enabled {
		wg.Add(1)
		go func(i int, sink Sink) {
			defer wg.Done()
			results[i] = d.deliver(ctx, sink, text)
		}(i, sink)
	}
	wg.Wait()

	success := true
	for _, r := range results {
		if !r.Success {
			success = false
		}
		d.logger.Info("output delivered",
			slog.String("sink", r.SinkName),
			slog.Bool("success", r.Success),
			slog.String("message", r.Message),
		)
	}
	return domain.DispatchResult{Success: success, Results: results}
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, text string) (result domain.OutputResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.OutputResult{
				SinkName: sink.Name(),
				Success:  false,
				Message:  fmt.Sprintf("%s output failed: %v", sink.Name(), r),
			}
		}
	}()
	result = sink.Deliver(ctx, text)
	if result.SinkName == "" {
		result.SinkName = sink.Name()
	}
	return result
}
