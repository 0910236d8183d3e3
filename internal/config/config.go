package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"voxscribe/internal/domain"
	"voxscribe/internal/vad"
)

const envPrefix = "VOXSCRIBE"

// Store is read-only key/value access to configuration. *viper.Viper
// satisfies it.
type Store interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
}

// Config is the immutable runtime snapshot handed to components.
type Config struct {
	Recording     RecordingConfig     `yaml:"recording"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Deepgram      DeepgramConfig      `yaml:"deepgram"`
	Whisper       WhisperConfig       `yaml:"whisper"`
	Output        OutputConfig        `yaml:"output"`
	Misc          MiscConfig          `yaml:"misc"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

type RecordingConfig struct {
	Mode            domain.RecordingMode `yaml:"mode"`
	Backend         string               `yaml:"backend"`
	FFmpegCommand   string               `yaml:"ffmpeg_command"`
	InputFormat     string               `yaml:"input_format"`
	Device          string               `yaml:"device"`
	SampleRate      int                  `yaml:"sample_rate"`
	FrameDuration   time.Duration        `yaml:"frame_duration"`
	SilenceDuration time.Duration        `yaml:"silence_duration"`
	MinDuration     time.Duration        `yaml:"min_duration"`
	MaxDuration     time.Duration        `yaml:"max_duration"`
}

type VADConfig struct {
	Aggressiveness int `yaml:"aggressiveness"`
	OnsetFrames    int `yaml:"onset_frames"`
}

type TranscriptionConfig struct {
	Provider string        `yaml:"provider"`
	Timeout  time.Duration `yaml:"timeout"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	APIBaseURL  string `yaml:"api_base"`
	Model       string `yaml:"model"`
	Language    string `yaml:"language"`
	SmartFormat bool   `yaml:"smart_format"`
}

type WhisperConfig struct {
	Command  string `yaml:"command"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Threads  int    `yaml:"threads"`
}

type OutputConfig struct {
	ClipboardEnabled    bool   `yaml:"clipboard_enabled"`
	FileEnabled         bool   `yaml:"file_enabled"`
	FilePath            string `yaml:"file_path"`
	FileMode            string `yaml:"file_mode"`
	FileTimestamp       bool   `yaml:"file_timestamp"`
	FileCreateDirectory bool   `yaml:"file_create_directory"`
}

type MiscConfig struct {
	HideStatus          bool `yaml:"hide_status"`
	PlayCompletionSound bool `yaml:"play_completion_sound"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Address string `yaml:"address"`
}

// NewStore builds the layered store: defaults, then the YAML file, then
// VOXSCRIBE_* environment variables. An explicit path must exist; otherwise
// config.yaml is looked up in the working directory and
// $HOME/.config/voxscribe and may be absent.
func NewStore(path string) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "voxscribe"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load resolves and validates the configuration snapshot.
func Load(path string) (Config, error) {
	store, err := NewStore(path)
	if err != nil {
		return Config{}, err
	}
	cfg := FromStore(store)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromStore reads every key once. Non-positive numeric values fall back to
// their defaults.
func FromStore(s Store) Config {
	cfg := Config{
		Recording: RecordingConfig{
			Mode:            domain.RecordingMode(strings.TrimSpace(s.GetString(KeyRecordingMode))),
			Backend:         stringOrDefault(s, KeyRecordingBackend),
			FFmpegCommand:   stringOrDefault(s, KeyRecordingFFmpegCommand),
			InputFormat:     stringOrDefault(s, KeyRecordingInputFormat),
			Device:          firstNonEmpty(s.GetString(KeyRecordingDevice), os.Getenv("PULSE_SOURCE"), "default"),
			SampleRate:      positiveOrDefault(s, KeyRecordingSampleRate),
			FrameDuration:   millis(positiveOrDefault(s, KeyRecordingFrameMS)),
			SilenceDuration: millis(nonNegative(s, KeyRecordingSilenceMS)),
			MinDuration:     millis(nonNegative(s, KeyRecordingMinMS)),
			MaxDuration:     millis(nonNegative(s, KeyRecordingMaxMS)),
		},
		VAD: VADConfig{
			Aggressiveness: s.GetInt(KeyVADAggressiveness),
			OnsetFrames:    positiveOrDefault(s, KeyVADOnsetFrames),
		},
		Transcription: TranscriptionConfig{
			Provider: strings.ToLower(stringOrDefault(s, KeyTranscriptionProvider)),
			Timeout:  millis(positiveOrDefault(s, KeyTranscriptionTimeoutMS)),
		},
		Deepgram: DeepgramConfig{
			APIKey:      firstNonEmpty(s.GetString(KeyDeepgramAPIKey), os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  stringOrDefault(s, KeyDeepgramAPIBase),
			Model:       stringOrDefault(s, KeyDeepgramModel),
			Language:    strings.TrimSpace(s.GetString(KeyDeepgramLanguage)),
			SmartFormat: s.GetBool(KeyDeepgramSmartFormat),
		},
		Whisper: WhisperConfig{
			Command:  stringOrDefault(s, KeyWhisperCommand),
			Model:    strings.TrimSpace(s.GetString(KeyWhisperModel)),
			Language: strings.TrimSpace(s.GetString(KeyWhisperLanguage)),
			Threads:  nonNegative(s, KeyWhisperThreads),
		},
		Output: OutputConfig{
			ClipboardEnabled:    s.GetBool(KeyOutputClipboardEnabled),
			FileEnabled:         s.GetBool(KeyOutputFileEnabled),
			FilePath:            stringOrDefault(s, KeyOutputFilePath),
			FileMode:            strings.ToLower(stringOrDefault(s, KeyOutputFileMode)),
			FileTimestamp:       s.GetBool(KeyOutputFileTimestamp),
			FileCreateDirectory: s.GetBool(KeyOutputFileCreateDirectory),
		},
		Misc: MiscConfig{
			HideStatus:          s.GetBool(KeyMiscHideStatus),
			PlayCompletionSound: s.GetBool(KeyMiscPlayCompletionSound),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(stringOrDefault(s, KeyLoggingLevel)),
			Format: strings.ToLower(stringOrDefault(s, KeyLoggingFormat)),
		},
		Metrics: MetricsConfig{
			Address: strings.TrimSpace(s.GetString(KeyMetricsAddress)),
		},
	}
	if cfg.Recording.Mode == "" {
		cfg.Recording.Mode = domain.RecordingMode(defaults[KeyRecordingMode].(string))
	}
	return cfg
}

// Validate rejects snapshots the runtime cannot honor.
func (c Config) Validate() error {
	var errs []error

	if _, err := domain.ParseRecordingMode(string(c.Recording.Mode)); err != nil {
		errs = append(errs, err)
	}
	switch c.Recording.Backend {
	case "ffmpeg", "miniaudio":
	default:
		errs = append(errs, fmt.Errorf("unknown recording backend %q", c.Recording.Backend))
	}
	if !vad.ValidSampleRate(c.Recording.SampleRate) {
		errs = append(errs, fmt.Errorf("unsupported sample rate %d (want 8000, 16000, 32000 or 48000)", c.Recording.SampleRate))
	}
	if !vad.ValidFrameDuration(int(c.Recording.FrameDuration / time.Millisecond)) {
		errs = append(errs, fmt.Errorf("unsupported frame duration %s (want 10ms, 20ms or 30ms)", c.Recording.FrameDuration))
	}
	if c.VAD.Aggressiveness < 0 || c.VAD.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad aggressiveness %d out of range 0..3", c.VAD.Aggressiveness))
	}
	if c.VAD.OnsetFrames < 1 {
		errs = append(errs, errors.New("vad onset frames must be at least 1"))
	}
	switch c.Transcription.Provider {
	case "deepgram", "whisper":
	default:
		errs = append(errs, fmt.Errorf("unknown transcription provider %q", c.Transcription.Provider))
	}
	switch c.Output.FileMode {
	case "append", "overwrite":
	default:
		errs = append(errs, fmt.Errorf("unknown output file mode %q", c.Output.FileMode))
	}
	if c.Output.FileEnabled && strings.TrimSpace(c.Output.FilePath) == "" {
		errs = append(errs, errors.New("output file path is empty"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Deepgram.APIKey != "" {
		c.Deepgram.APIKey = "<redacted>"
	}
	return c
}

func stringOrDefault(s Store, key string) string {
	if value := strings.TrimSpace(s.GetString(key)); value != "" {
		return value
	}
	if fallback, ok := defaults[key].(string); ok {
		return fallback
	}
	return ""
}

func positiveOrDefault(s Store, key string) int {
	if value := s.GetInt(key); value > 0 {
		return value
	}
	if fallback, ok := defaults[key].(int); ok {
		return fallback
	}
	return 0
}

func nonNegative(s Store, key string) int {
	if value := s.GetInt(key); value > 0 {
		return value
	}
	return 0
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
