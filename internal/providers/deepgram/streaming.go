package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxscribe/internal/domain"
)

const defaultChunkSize = 8192

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	ChunkSize   int
}

// Provider implements ports.Transcriber by streaming a sealed buffer over
// the Deepgram live websocket and collecting the final transcript.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewProvider(cfg Config, logger *slog.Logger) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer, logger: logger}
}

func (p *Provider) Transcribe(ctx context.Context, buf *domain.CaptureBuffer) (string, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return "", fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", domain.ErrTranscriptionFailed)
	}
	if buf == nil || !buf.Sealed() {
		return "", fmt.Errorf("%w: capture buffer is not sealed", domain.ErrTranscriptionFailed)
	}

	wsURL, err := buildListenURL(p.cfg, buf.SampleRate())
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("%w: failed to connect to Deepgram websocket: %v", domain.ErrTranscriptionFailed, err)
	}

	started := time.Now()
	s := newStream(conn)
	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	s.run(buf.PCM(), p.cfg.ChunkSize)

	raw := s.aggregator.Raw()
	streamErr := s.waitErr()
	p.logger.Debug("deepgram stream finished",
		slog.Duration("elapsed", time.Since(started)),
		slog.Int("bytes", len(buf.PCM())),
		slog.Bool("error", streamErr != nil),
	)

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}
	if raw == "" && streamErr != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, streamErr)
	}
	return raw, nil
}

// stream is one websocket exchange: a writer pushing audio followed by
// CloseStream, and a reader collecting transcripts until the server closes.
type stream struct {
	conn       *websocket.Conn
	aggregator *transcriptAggregator

	wg        sync.WaitGroup
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func newStream(conn *websocket.Conn) *stream {
	return &stream{conn: conn, aggregator: newTranscriptAggregator()}
}

// run blocks until both loops have exited.
func (s *stream) run(pcm []byte, chunkSize int) {
	s.wg.Add(2)
	go s.writeLoop(pcm, chunkSize)
	go s.readLoop()
	s.wg.Wait()
	s.Close()
}

func (s *stream) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func (s *stream) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *stream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *stream) writeLoop(pcm []byte, chunkSize int) {
	defer s.wg.Done()

	for start := 0; start < len(pcm); start += chunkSize {
		end := start + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm[start:end]); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			s.Close()
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
		s.Close()
	}
}

func (s *stream) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			s.Close()
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}
		s.aggregator.Add(segment{text: transcript, final: response.IsFinal || response.SpeechFinal})
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(response.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(response.Results.Channels) > 0 && len(response.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(response.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func buildListenURL(cfg Config, sampleRate int) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if sampleRate <= 0 {
		sampleRate = 16000
	}
	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", "1")
	query.Set("interim_results", "false")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
