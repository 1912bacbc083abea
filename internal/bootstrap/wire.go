package bootstrap

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/audio"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/capability"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/config"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/edge"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/logging"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/providers/deepgram"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/providers/edgefn"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/providers/openaiapi"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/recipes"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/rules"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/usecase"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

// Services is the assembled runtime graph.
type Services struct {
	Controller   *usecase.SessionController
	Recipes      ports.RecipeGenerator
	Capabilities domain.Capabilities
	Config       config.Config
	Logger       zerolog.Logger
}

// Build loads configuration and wires the recorder for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(cfg, logging.New(cfg.Log), eventSink)
}

// BuildWithConfig wires the recorder from an already resolved configuration.
func BuildWithConfig(cfg config.Config, logger zerolog.Logger, eventSink ports.EventSink) (Services, error) {
	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, fmt.Errorf("load ingredient rules: %w", err)
	}

	probe := audio.NewFFMPEGProbe(cfg.Audio.RecorderCommand, cfg.Audio.InputFormat)
	caps := capability.Probe(capability.HostEnvironment{
		Endpoint: TranscriberEndpoint(cfg),
		Recorder: probe,
	})
	logger.Info().
		Str("transcriber", cfg.Transcriber).
		Bool("usable", caps.IsUsable).
		Strs("encodings", caps.SupportedEncodings).
		Int("rules", rulesEngine.Len()).
		Msg("capture capabilities probed")

	controller := usecase.NewSessionController(
		caps,
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, logger),
		NewTranscriber(cfg),
		rulesEngine,
		eventSink,
		logger,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
				ChunkSize:   cfg.Audio.ChunkSize,
				Timeslice:   cfg.Audio.Timeslice,
			},
			MinAudioBytes:     cfg.Session.MinAudioBytes,
			TranscribeTimeout: cfg.Session.TranscribeTimeout,
		},
	)

	return Services{
		Controller:   controller,
		Recipes:      recipes.NewClient(recipes.Config{URL: cfg.Edge.RecipeURL, APIKey: cfg.Edge.FunctionsKey}),
		Capabilities: caps,
		Config:       cfg,
		Logger:       logger,
	}, nil
}

// NewTranscriber picks the transcription client named by cfg.Transcriber.
func NewTranscriber(cfg config.Config) ports.Transcriber {
	switch cfg.Transcriber {
	case config.TranscriberWhisper:
		return openaiapi.NewWhisper(openAIConfig(cfg))
	case config.TranscriberDeepgram:
		return newDeepgram(cfg)
	default:
		return edgefn.NewClient(edgefn.Config{
			URL:           cfg.Edge.TranscribeURL,
			APIKey:        cfg.Edge.FunctionsKey,
			MinAudioBytes: cfg.Session.MinAudioBytes,
			Timeout:       cfg.Session.TranscribeTimeout,
		})
	}
}

// TranscriberEndpoint is the URL recordings are shipped to, used for the
// secure-origin check.
func TranscriberEndpoint(cfg config.Config) string {
	switch cfg.Transcriber {
	case config.TranscriberWhisper:
		if cfg.OpenAI.BaseURL != "" {
			return cfg.OpenAI.BaseURL
		}
		return defaultOpenAIBase
	case config.TranscriberDeepgram:
		return cfg.Deepgram.APIBaseURL
	default:
		return cfg.Edge.TranscribeURL
	}
}

// BuildEdgeServer wires the hosted functions. The edge server never uses the
// edge transcriber itself; it transcribes with Deepgram when selected and
// with Whisper otherwise.
func BuildEdgeServer(cfg config.Config, logger zerolog.Logger) *edge.Server {
	var transcriber ports.Transcriber
	if cfg.Transcriber == config.TranscriberDeepgram {
		transcriber = newDeepgram(cfg)
	} else {
		transcriber = openaiapi.NewWhisper(openAIConfig(cfg))
	}
	chef := openaiapi.NewChef(openAIConfig(cfg))

	return edge.NewServer(edge.Config{
		FunctionsKey:  cfg.Edge.FunctionsKey,
		AllowedOrigin: cfg.Edge.AllowedOrigin,
		MinAudioBytes: cfg.Session.MinAudioBytes,
	}, transcriber, chef, chef, logger)
}

func openAIConfig(cfg config.Config) openaiapi.Config {
	return openaiapi.Config{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		WhisperModel: cfg.OpenAI.WhisperModel,
		Language:     cfg.OpenAI.Language,
		ChatModel:    cfg.OpenAI.ChatModel,
		VisionModel:  cfg.OpenAI.VisionModel,
	}
}

func newDeepgram(cfg config.Config) *deepgram.Provider {
	return deepgram.NewProvider(deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
		ChunkSize:   cfg.Audio.ChunkSize,
	})
}
