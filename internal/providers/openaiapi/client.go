// Package openaiapi talks to the OpenAI API for speech-to-text, recipe
// generation and recipe OCR.
package openaiapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

const (
	defaultWhisperModel = "whisper-1"
	defaultLanguage     = "en"
	defaultChatModel    = "gpt-4o-mini"
	defaultVisionModel  = "gpt-4o"
)

// Config holds OpenAI credentials and model choices.
type Config struct {
	APIKey       string
	BaseURL      string
	WhisperModel string
	Language     string
	ChatModel    string
	VisionModel  string
}

func (c Config) withDefaults() Config {
	if c.WhisperModel == "" {
		c.WhisperModel = defaultWhisperModel
	}
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.ChatModel == "" {
		c.ChatModel = defaultChatModel
	}
	if c.VisionModel == "" {
		c.VisionModel = defaultVisionModel
	}
	return c
}

// newClient builds an SDK client that makes a single attempt per call.
func newClient(cfg Config) *openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

// apiMessage extracts the service's own error text when the SDK returned one.
func apiMessage(err error) (string, int, bool) {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return "", 0, false
	}
	message := strings.TrimSpace(apiErr.Message)
	if message == "" {
		message = fmt.Sprintf("OpenAI API error: Status %d", apiErr.StatusCode)
	} else {
		message = "OpenAI API error: " + message
	}
	return message, apiErr.StatusCode, true
}

var errMissingKey = domain.NewTranscriptionError(domain.ReasonNotConfigured, 0,
	"OpenAI API key is not configured; set OPENAI_API_KEY or OPEN_API_KEY", nil)
