package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

const defaultChunkSize = 4096

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// ChunkSize is the size of each binary frame sent to the socket.
	ChunkSize int
}

// Provider implements ports.Transcriber by replaying a finished recording
// over Deepgram's live websocket.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

// Transcribe sends the container-encoded buffer and joins the final results.
// Deepgram detects the container itself, so no raw encoding parameters are set.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, encoding string) (string, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return "", domain.NewTranscriptionError(domain.ReasonNotConfigured, 0, "DEEPGRAM_API_KEY is not configured", nil)
	}
	if len(audio) == 0 {
		return "", domain.NewTranscriptionError(domain.ReasonRecordingEmpty, 0, "audio buffer is empty", nil)
	}
	if _, ok := domain.AudioFileFor(encoding); !ok {
		return "", domain.NewTranscriptionError(domain.ReasonUnsupportedEncoding, 0, "unsupported audio encoding: "+encoding, nil)
	}

	session, err := p.open(ctx)
	if err != nil {
		return "", err
	}
	defer session.Close()

	// A stalled server would otherwise block sends past the caller's deadline.
	go func() {
		select {
		case <-ctx.Done():
			_ = session.conn.Close()
		case <-session.done:
		}
	}()

	aggregator := newTranscriptAggregator()
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for event := range session.Events() {
			aggregator.Add(event)
		}
	}()

	for offset := 0; offset < len(audio); offset += p.cfg.ChunkSize {
		end := offset + p.cfg.ChunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := session.SendAudio(ctx, audio[offset:end]); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", domain.NewTranscriptionError(domain.ReasonNetwork, 0, "failed to stream audio to Deepgram", err)
		}
	}
	_ = session.CloseSend()

	waitErr := make(chan error, 1)
	go func() { waitErr <- session.Wait() }()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", ctx.Err()
	case err := <-waitErr:
		<-consumed
		if err != nil {
			if recErr, ok := domain.AsRecorderError(err); ok {
				return "", recErr
			}
			return "", domain.NewTranscriptionError(domain.ReasonNetwork, 0, "Deepgram stream failed", err)
		}
	}

	return aggregator.Raw(), nil
}

func (p *Provider) open(ctx context.Context) (*streamingSession, error) {
	wsURL, err := buildListenURL(p.cfg)
	if err != nil {
		return nil, domain.NewTranscriptionError(domain.ReasonNotConfigured, 0, err.Error(), err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, domain.NewTranscriptionError(domain.ReasonServiceStatus, resp.StatusCode,
				fmt.Sprintf("Deepgram rejected the connection: %s", resp.Status), err)
		}
		return nil, domain.NewTranscriptionError(domain.ReasonNetwork, 0, "failed to connect to Deepgram websocket", err)
	}

	session := &streamingSession{
		conn:   conn,
		events: make(chan domain.TranscriptEvent, 64),
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	return session, nil
}

type streamingSession struct {
	conn *websocket.Conn

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	select {
	case s.audio <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
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

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

// readLoop runs until the server closes the socket, which Deepgram does after
// flushing its last results for a CloseStream.
func (s *streamingSession) readLoop() {
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
			s.setErr(domain.NewTranscriptionError(domain.ReasonServiceStatus, 0, message, nil))
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}

		event := domain.TranscriptEvent{Text: transcript, IsSpeechFinal: response.SpeechFinal}
		if response.IsFinal || response.SpeechFinal {
			event.Kind = domain.TranscriptKindFinal
		} else {
			event.Kind = domain.TranscriptKindPartial
		}
		s.events <- event
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

func buildListenURL(cfg Config) (string, error) {
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

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("interim_results", "false")
	query.Set("smart_format", fmt.Sprintf("%t", cfg.SmartFormat))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
