// Package edgefn uploads finished recordings to the hosted transcribe-audio function.
package edgefn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

const (
	defaultMinAudioBytes = 100
	defaultTimeout       = 60 * time.Second
	maxErrorBody         = 4096
)

// Config holds the endpoint and credentials of the transcription function.
type Config struct {
	URL string
	// APIKey is sent both as the apikey header and as a bearer token.
	APIKey        string
	MinAudioBytes int
	Timeout       time.Duration
}

// Client implements ports.Transcriber against the edge function.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.MinAudioBytes <= 0 {
		cfg.MinAudioBytes = defaultMinAudioBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type transcribeResponse struct {
	Text  *string `json:"text"`
	Error string  `json:"error"`
}

// Transcribe makes exactly one request. Every failure is returned as a
// *domain.RecorderError with a distinct reason.
func (c *Client) Transcribe(ctx context.Context, audio []byte, encoding string) (string, error) {
	if len(audio) == 0 {
		return "", domain.NewTranscriptionError(domain.ReasonRecordingEmpty, 0, "audio buffer is empty", nil)
	}
	if len(audio) < c.cfg.MinAudioBytes {
		return "", domain.NewTranscriptionError(domain.ReasonRecordingTooShort, 0,
			fmt.Sprintf("audio buffer is too short (%d bytes)", len(audio)), nil)
	}
	file, ok := domain.AudioFileFor(encoding)
	if !ok {
		return "", domain.NewTranscriptionError(domain.ReasonUnsupportedEncoding, 0, "unsupported audio encoding: "+encoding, nil)
	}
	if strings.TrimSpace(c.cfg.URL) == "" {
		return "", domain.NewTranscriptionError(domain.ReasonNotConfigured, 0, "transcription endpoint is not configured", nil)
	}

	body, contentType, err := encodeUpload(audio, file)
	if err != nil {
		return "", domain.NewTranscriptionError(domain.ReasonNetwork, 0, "failed to encode upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, body)
	if err != nil {
		return "", domain.NewTranscriptionError(domain.ReasonNotConfigured, 0, "invalid transcription endpoint", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", domain.NewTranscriptionError(domain.ReasonTimeout, 0, "transcription timed out", err)
		}
		return "", domain.NewTranscriptionError(domain.ReasonNetwork, 0, "transcription request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewTranscriptionError(domain.ReasonNetwork, resp.StatusCode, "failed to read transcription response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domain.NewTranscriptionError(domain.ReasonServiceStatus, resp.StatusCode, serviceMessage(resp, raw), nil)
	}

	var payload transcribeResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", domain.NewTranscriptionError(domain.ReasonMalformedResponse, resp.StatusCode, "transcription response is not valid JSON", err)
	}
	if payload.Text == nil {
		return "", domain.NewTranscriptionError(domain.ReasonMalformedResponse, resp.StatusCode, "transcription response has no text field", nil)
	}
	text := strings.TrimSpace(*payload.Text)
	if text == "" {
		return "", domain.NewTranscriptionError(domain.ReasonEmptyTranscript, resp.StatusCode, "No speech detected. Please try speaking more clearly.", nil)
	}
	return text, nil
}

func encodeUpload(audio []byte, file domain.AudioFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, file.UploadName()))
	header.Set("Content-Type", file.ContentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// serviceMessage prefers the function's {error} field, then the raw body,
// then the status text.
func serviceMessage(resp *http.Response, raw []byte) string {
	var payload transcribeResponse
	if err := json.Unmarshal(raw, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return strings.TrimSpace(payload.Error)
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return fmt.Sprintf("transcription service returned %d: %s", resp.StatusCode, text)
	}
	return fmt.Sprintf("transcription service returned %s", resp.Status)
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
