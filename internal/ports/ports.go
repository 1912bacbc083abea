package ports

import (
	"context"
	"time"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

// Environment exposes the host facts the capability prober reads.
// Implementations must not trigger permission prompts or open devices.
type Environment interface {
	SecureContext() bool
	HasDeviceAccess() bool
	HasRecorder() bool
	SupportsEncoding(encoding string) bool
}

// AudioConfig describes how the microphone should be captured and encoded.
type AudioConfig struct {
	Encoding    string
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	ChunkSize   int
	// Timeslice is how often buffered encoder output is delivered as a chunk.
	Timeslice time.Duration
}

// AudioStream is an open input device feeding an encoder.
//
// Chunks delivers encoded data in arrival order and is closed once the
// encoder has flushed after Stop, or after the device fails. Stop releases
// the device and is safe to call more than once.
type AudioStream interface {
	Chunks() <-chan []byte
	Stop() error
	Err() error
}

// AudioDevice opens capture streams.
type AudioDevice interface {
	Open(ctx context.Context, cfg AudioConfig) (AudioStream, error)
}

// Transcriber turns a finished recording into text with a single attempt.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, encoding string) (string, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// RecipeGenerator turns an ingredient list into a recipe.
type RecipeGenerator interface {
	Generate(ctx context.Context, ingredients string, diet domain.DietType) (domain.Recipe, error)
}

// EventSink emits session state and resolution events to the UI.
//
// TranscriptionComplete and TranscriptionFailed are invoked exactly once per
// resolved session.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	TranscriptionComplete(result domain.StopResult)
	TranscriptionFailed(err *domain.RecorderError)
	SessionError(code domain.ErrorCode, detail string)
}
