package openaiapi

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

// Whisper implements ports.Transcriber with OpenAI's transcription endpoint.
type Whisper struct {
	cfg    Config
	client *openai.Client
}

func NewWhisper(cfg Config) *Whisper {
	cfg = cfg.withDefaults()
	return &Whisper{cfg: cfg, client: newClient(cfg)}
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, encoding string) (string, error) {
	if strings.TrimSpace(w.cfg.APIKey) == "" {
		return "", errMissingKey
	}
	if len(audio) == 0 {
		return "", domain.NewTranscriptionError(domain.ReasonRecordingEmpty, 0, "Audio file is empty", nil)
	}
	file, ok := domain.AudioFileFor(encoding)
	if !ok {
		return "", domain.NewTranscriptionError(domain.ReasonUnsupportedEncoding, 0, "unsupported audio encoding: "+encoding, nil)
	}

	res, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:     openai.File(bytes.NewReader(audio), file.UploadName(), file.ContentType),
		Model:    openai.AudioModel(w.cfg.WhisperModel),
		Language: openai.String(w.cfg.Language),
	})
	if err != nil {
		return "", transcriptionError(err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", domain.NewTranscriptionError(domain.ReasonEmptyTranscript, 0, "No speech detected. Please try speaking more clearly.", nil)
	}
	return text, nil
}

func transcriptionError(err error) *domain.RecorderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTranscriptionError(domain.ReasonTimeout, 0, "transcription timed out", err)
	}
	if message, status, ok := apiMessage(err); ok {
		return domain.NewTranscriptionError(domain.ReasonServiceStatus, status, message, err)
	}
	return domain.NewTranscriptionError(domain.ReasonNetwork, 0, "transcription request failed", err)
}
