package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"voxscribe/internal/audio"
	"voxscribe/internal/audio/miniaudio"
	"voxscribe/internal/capture"
	"voxscribe/internal/config"
	"voxscribe/internal/metrics"
	"voxscribe/internal/output"
	"voxscribe/internal/ports"
	"voxscribe/internal/providers/deepgram"
	"voxscribe/internal/providers/whispercli"
	"voxscribe/internal/usecase"
	"voxscribe/internal/vad"
)

// Services is the assembled runtime graph.
type Services struct {
	Orchestrator *usecase.Orchestrator
	Metrics      *metrics.Metrics
	Config       config.Config
}

// Build wires all backend dependencies for the given configuration. chime
// is only attached when the completion sound is enabled.
func Build(cfg config.Config, eventSink ports.EventSink, clipboard ports.Clipboard, chime ports.Chime, logger *slog.Logger) (Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return Services{}, err
	}

	detector, err := vad.NewDetector(vad.Aggressiveness(cfg.VAD.Aggressiveness))
	if err != nil {
		return Services{}, err
	}

	transcriber, err := newTranscriber(cfg, logger)
	if err != nil {
		return Services{}, err
	}

	mic := audio.NewMicrophone(newCapture(cfg, logger), ports.AudioConfig{
		SampleRate:  cfg.Recording.SampleRate,
		InputFormat: cfg.Recording.InputFormat,
		InputDevice: cfg.Recording.Device,
	}, cfg.Recording.FrameDuration)

	dispatcher := output.NewDispatcher(logger.With("component", "output"),
		output.Channel{
			Sink: output.NewFileSink(output.FileConfig{
				Path:            cfg.Output.FilePath,
				Mode:            output.FileMode(cfg.Output.FileMode),
				Timestamp:       cfg.Output.FileTimestamp,
				CreateDirectory: cfg.Output.FileCreateDirectory,
			}),
			Enabled: cfg.Output.FileEnabled,
		},
		output.Channel{
			Sink:    output.NewClipboardSink(clipboard),
			Enabled: cfg.Output.ClipboardEnabled && clipboard != nil,
		},
	)

	m := metrics.New()
	deps := usecase.Deps{
		Microphone:  mic,
		Listener:    vad.NewListener(detector, cfg.VAD.OnsetFrames, logger.With("component", "listener")),
		Recorder:    capture.NewRecorder(logger.With("component", "capture")),
		Detector:    detector,
		Transcriber: transcriber,
		Output:      dispatcher,
		Events:      eventSink,
		Metrics:     m,
		Logger:      logger.With("component", "orchestrator"),
	}
	if cfg.Misc.PlayCompletionSound && chime != nil {
		deps.Chime = chime
	}

	orchestrator := usecase.NewOrchestrator(deps, usecase.Config{
		Mode:                 cfg.Recording.Mode,
		SilenceDuration:      cfg.Recording.SilenceDuration,
		MinDuration:          cfg.Recording.MinDuration,
		MaxDuration:          cfg.Recording.MaxDuration,
		TranscriptionTimeout: cfg.Transcription.Timeout,
	})

	return Services{Orchestrator: orchestrator, Metrics: m, Config: cfg}, nil
}

func newCapture(cfg config.Config, logger *slog.Logger) ports.AudioCapture {
	if cfg.Recording.Backend == "miniaudio" {
		return miniaudio.NewCapture(logger.With("component", "miniaudio"))
	}
	return audio.NewFFMPEGCapture(cfg.Recording.FFmpegCommand)
}

func newTranscriber(cfg config.Config, logger *slog.Logger) (ports.Transcriber, error) {
	switch cfg.Transcription.Provider {
	case "whisper":
		if cfg.Whisper.Model == "" {
			return nil, errors.New("whisper provider requires whisper.model")
		}
		return whispercli.New(whispercli.Config{
			Command:  cfg.Whisper.Command,
			Model:    cfg.Whisper.Model,
			Language: cfg.Whisper.Language,
			Threads:  cfg.Whisper.Threads,
		}, logger.With("component", "whisper")), nil
	case "deepgram":
		return deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}, logger.With("component", "deepgram")), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Transcription.Provider)
	}
}
