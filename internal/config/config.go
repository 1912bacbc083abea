package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	TranscriberEdge     = "edge"
	TranscriberWhisper  = "whisper"
	TranscriberDeepgram = "deepgram"
)

// Config stores runtime configuration for the recorder, the providers and the edge server.
type Config struct {
	Transcriber string
	Edge        EdgeConfig
	OpenAI      OpenAIConfig
	Deepgram    DeepgramConfig
	Audio       AudioConfig
	Rules       RulesConfig
	Session     SessionConfig
	Log         LogConfig
}

type EdgeConfig struct {
	TranscribeURL string
	RecipeURL     string
	FunctionsKey  string
	ListenAddr    string
	AllowedOrigin string
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	WhisperModel string
	Language     string
	ChatModel    string
	VisionModel  string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	Timeslice       time.Duration
	ChunkSize       int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type SessionConfig struct {
	MinAudioBytes     int
	TranscribeTimeout time.Duration
	// AutoSubmitDelay is zero when transcripts are not handed off automatically.
	AutoSubmitDelay time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"KITCHEN_TRANSCRIBER":           TranscriberEdge,
	"KITCHEN_TRANSCRIBE_URL":        "http://localhost:8787/functions/v1/transcribe-audio",
	"KITCHEN_RECIPE_URL":            "http://localhost:8787/functions/v1/generate-recipe",
	"KITCHEN_LISTEN_ADDR":           ":8787",
	"KITCHEN_ALLOWED_ORIGIN":        "*",
	"KITCHEN_WHISPER_MODEL":         "whisper-1",
	"KITCHEN_WHISPER_LANGUAGE":      "en",
	"KITCHEN_CHAT_MODEL":            "gpt-4o-mini",
	"KITCHEN_VISION_MODEL":          "gpt-4o",
	"DEEPGRAM_API_BASE":             "https://api.deepgram.com/v1",
	"DEEPGRAM_MODEL":                "nova-2",
	"DEEPGRAM_SMART_FORMAT":         "true",
	"KITCHEN_FFMPEG_COMMAND":        "ffmpeg",
	"KITCHEN_AUDIO_INPUT_FORMAT":    "pulse",
	"KITCHEN_AUDIO_INPUT_DEVICE":    "default",
	"KITCHEN_SAMPLE_RATE":           48000,
	"KITCHEN_CHANNELS":              1,
	"KITCHEN_AUDIO_TIMESLICE_MS":    1000,
	"KITCHEN_AUDIO_CHUNK_SIZE":      4096,
	"KITCHEN_RULE_ITERATION_LIMIT":  30,
	"KITCHEN_MIN_AUDIO_BYTES":       100,
	"KITCHEN_TRANSCRIBE_TIMEOUT_MS": 60000,
	"KITCHEN_AUTO_SUBMIT_MS":        0,
	"KITCHEN_LOG_LEVEL":             "info",
	"KITCHEN_LOG_FORMAT":            "console",
}

// Load resolves configuration from the environment, a .env file in the
// working directory and sensible defaults, in that order of precedence.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(envFile string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := mergeDotenv(v, envFile); err != nil {
		return Config{}, err
	}
	v.AutomaticEnv()

	rulesPath := str(v, "KITCHEN_RULES_FILE")
	if rulesPath == "" {
		rulesPath = filepath.Join(home, ".config", "carnivore-kitchen", "ingredients.rules")
	}

	cfg := Config{
		Transcriber: strings.ToLower(str(v, "KITCHEN_TRANSCRIBER")),
		Edge: EdgeConfig{
			TranscribeURL: str(v, "KITCHEN_TRANSCRIBE_URL"),
			RecipeURL:     str(v, "KITCHEN_RECIPE_URL"),
			FunctionsKey:  str(v, "KITCHEN_FUNCTIONS_KEY"),
			ListenAddr:    str(v, "KITCHEN_LISTEN_ADDR"),
			AllowedOrigin: str(v, "KITCHEN_ALLOWED_ORIGIN"),
		},
		OpenAI: OpenAIConfig{
			APIKey:       firstNonEmpty(str(v, "OPENAI_API_KEY"), str(v, "OPEN_API_KEY")),
			BaseURL:      str(v, "OPENAI_BASE_URL"),
			WhisperModel: str(v, "KITCHEN_WHISPER_MODEL"),
			Language:     str(v, "KITCHEN_WHISPER_LANGUAGE"),
			ChatModel:    str(v, "KITCHEN_CHAT_MODEL"),
			VisionModel:  str(v, "KITCHEN_VISION_MODEL"),
		},
		Deepgram: DeepgramConfig{
			APIKey:      str(v, "DEEPGRAM_API_KEY"),
			APIBaseURL:  str(v, "DEEPGRAM_API_BASE"),
			Model:       str(v, "DEEPGRAM_MODEL"),
			Language:    str(v, "DEEPGRAM_LANGUAGE"),
			SmartFormat: boolOrDefault(v, "DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			RecorderCommand: str(v, "KITCHEN_FFMPEG_COMMAND"),
			InputFormat:     str(v, "KITCHEN_AUDIO_INPUT_FORMAT"),
			InputDevice:     str(v, "KITCHEN_AUDIO_INPUT_DEVICE"),
			SampleRate:      v.GetInt("KITCHEN_SAMPLE_RATE"),
			Channels:        v.GetInt("KITCHEN_CHANNELS"),
			Timeslice:       time.Duration(v.GetInt("KITCHEN_AUDIO_TIMESLICE_MS")) * time.Millisecond,
			ChunkSize:       v.GetInt("KITCHEN_AUDIO_CHUNK_SIZE"),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: v.GetInt("KITCHEN_RULE_ITERATION_LIMIT"),
		},
		Session: SessionConfig{
			MinAudioBytes:     v.GetInt("KITCHEN_MIN_AUDIO_BYTES"),
			TranscribeTimeout: time.Duration(v.GetInt("KITCHEN_TRANSCRIBE_TIMEOUT_MS")) * time.Millisecond,
			AutoSubmitDelay:   time.Duration(v.GetInt("KITCHEN_AUTO_SUBMIT_MS")) * time.Millisecond,
		},
		Log: LogConfig{
			Level:  strings.ToLower(str(v, "KITCHEN_LOG_LEVEL")),
			Format: strings.ToLower(str(v, "KITCHEN_LOG_FORMAT")),
		},
	}

	sanitize(&cfg)
	return cfg, nil
}

// sanitize replaces unparsable or out-of-range values with defaults.
func sanitize(cfg *Config) {
	switch cfg.Transcriber {
	case TranscriberEdge, TranscriberWhisper, TranscriberDeepgram:
	default:
		cfg.Transcriber = TranscriberEdge
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.Timeslice <= 0 {
		cfg.Audio.Timeslice = time.Second
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.MinAudioBytes <= 0 {
		cfg.Session.MinAudioBytes = 100
	}
	if cfg.Session.TranscribeTimeout <= 0 {
		cfg.Session.TranscribeTimeout = 60 * time.Second
	}
	if cfg.Session.AutoSubmitDelay < 0 {
		cfg.Session.AutoSubmitDelay = 0
	}
	if cfg.Log.Format != "json" {
		cfg.Log.Format = "console"
	}
}

// mergeDotenv layers dotenv values over the defaults without touching the
// process environment, so real variables still win.
func mergeDotenv(v *viper.Viper, envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	values, err := godotenv.Read(envFile)
	if err != nil {
		return err
	}
	for key, value := range values {
		v.SetDefault(key, value)
	}
	return nil
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
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

func boolOrDefault(v *viper.Viper, key string, fallback bool) bool {
	switch strings.ToLower(str(v, key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
