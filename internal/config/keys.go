package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	KeyRecordingMode          = "recording.mode"
	KeyRecordingBackend       = "recording.backend"
	KeyRecordingFFmpegCommand = "recording.ffmpeg_command"
	KeyRecordingInputFormat   = "recording.input_format"
	KeyRecordingDevice        = "recording.device"
	KeyRecordingSampleRate    = "recording.sample_rate"
	KeyRecordingFrameMS       = "recording.frame_ms"
	KeyRecordingSilenceMS     = "recording.silence_duration_ms"
	KeyRecordingMinMS         = "recording.min_duration_ms"
	KeyRecordingMaxMS         = "recording.max_duration_ms"

	KeyVADAggressiveness = "vad.aggressiveness"
	KeyVADOnsetFrames    = "vad.onset_frames"

	KeyTranscriptionProvider  = "transcription.provider"
	KeyTranscriptionTimeoutMS = "transcription.timeout_ms"

	KeyDeepgramAPIKey      = "deepgram.api_key"
	KeyDeepgramAPIBase     = "deepgram.api_base"
	KeyDeepgramModel       = "deepgram.model"
	KeyDeepgramLanguage    = "deepgram.language"
	KeyDeepgramSmartFormat = "deepgram.smart_format"

	KeyWhisperCommand  = "whisper.command"
	KeyWhisperModel    = "whisper.model"
	KeyWhisperLanguage = "whisper.language"
	KeyWhisperThreads  = "whisper.threads"

	KeyOutputClipboardEnabled    = "output.clipboard.enabled"
	KeyOutputFileEnabled         = "output.file.enabled"
	KeyOutputFilePath            = "output.file.path"
	KeyOutputFileMode            = "output.file.mode"
	KeyOutputFileTimestamp       = "output.file.timestamp"
	KeyOutputFileCreateDirectory = "output.file.create_directory"

	KeyMiscHideStatus          = "misc.hide_status"
	KeyMiscPlayCompletionSound = "misc.play_completion_sound"

	KeyLoggingLevel  = "logging.level"
	KeyLoggingFormat = "logging.format"

	KeyMetricsAddress = "metrics.address"
)

var defaults = map[string]any{
	KeyRecordingMode:          "press_to_toggle",
	KeyRecordingBackend:       "ffmpeg",
	KeyRecordingFFmpegCommand: "ffmpeg",
	KeyRecordingInputFormat:   "pulse",
	KeyRecordingDevice:        "",
	KeyRecordingSampleRate:    16000,
	KeyRecordingFrameMS:       30,
	KeyRecordingSilenceMS:     900,
	KeyRecordingMinMS:         100,
	KeyRecordingMaxMS:         0,

	KeyVADAggressiveness: 2,
	KeyVADOnsetFrames:    3,

	KeyTranscriptionProvider:  "deepgram",
	KeyTranscriptionTimeoutMS: 60000,

	KeyDeepgramAPIKey:      "",
	KeyDeepgramAPIBase:     "https://api.deepgram.com/v1",
	KeyDeepgramModel:       "nova-2",
	KeyDeepgramLanguage:    "",
	KeyDeepgramSmartFormat: true,

	KeyWhisperCommand:  "whisper-cli",
	KeyWhisperModel:    "",
	KeyWhisperLanguage: "",
	KeyWhisperThreads:  0,

	KeyOutputClipboardEnabled:    true,
	KeyOutputFileEnabled:         true,
	KeyOutputFilePath:            "output/transcriptions.txt",
	KeyOutputFileMode:            "append",
	KeyOutputFileTimestamp:       true,
	KeyOutputFileCreateDirectory: true,

	KeyMiscHideStatus:          false,
	KeyMiscPlayCompletionSound: false,

	KeyLoggingLevel:  "info",
	KeyLoggingFormat: "text",

	KeyMetricsAddress: "",
}

// WriteDefault writes the default key tree as YAML. An existing file is left
// untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	raw, err := yaml.Marshal(nestedDefaults())
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Dump writes the redacted snapshot as YAML.
func Dump(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

func nestedDefaults() map[string]any {
	root := map[string]any{}
	for key, value := range defaults {
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return root
}
