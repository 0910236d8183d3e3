package usecase

import (
	"context"
	"log/slog"
	"time"

	"voxscribe/internal/domain"
	"voxscribe/internal/metrics"
	"voxscribe/internal/ports"
)

// transcriptFinalizer hands a transcript to the output sinks and reports each
// sink's outcome on the event sink.
type transcriptFinalizer struct {
	output  ports.OutputDispatcher
	events  ports.EventSink
	chime   ports.Chime
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func (f transcriptFinalizer) Finalize(ctx context.Context, text string) domain.DispatchResult {
	result := f.output.Process(ctx, text)

	for _, r := range result.Results {
		f.metrics.RecordSinkDelivery(r.SinkName, r.Success)
		if !r.Success {
			f.logger.Warn("output sink failed", slog.String("sink", r.SinkName), slog.String("message", r.Message))
		}
		f.events.OutputStatus(domain.OutputStatus{Message: r.Message, Success: r.Success, At: f.now()})
	}

	if result.Success && f.chime != nil {
		if err := f.chime.Play(); err != nil {
			f.logger.Warn("completion sound failed", slog.String("error", err.Error()))
		}
	}
	return result
}
