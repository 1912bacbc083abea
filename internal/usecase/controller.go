package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/capability"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/logging"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrSessionActive   = errors.New("a recording session is already active")
	// ErrStartCancelled is returned by Start when Cancel ran while the
	// device was still opening.
	ErrStartCancelled = errors.New("recording was cancelled before the microphone opened")
)

const (
	defaultMinAudioBytes     = 100
	defaultTranscribeTimeout = 60 * time.Second
	defaultFlushTimeout      = 5 * time.Second
)

// Config controls capture and transcription policy.
type Config struct {
	Audio ports.AudioConfig
	// MinAudioBytes is the smallest finalized buffer forwarded to the transcriber.
	MinAudioBytes int
	// TranscribeTimeout bounds the single transcription attempt.
	TranscribeTimeout time.Duration
	// FlushTimeout bounds the wait for the encoder's final chunk after stop.
	FlushTimeout time.Duration
}

// SessionController is the recorder state machine. It owns at most one live
// recording session; overlapping operations are rejected by state guards.
type SessionController struct {
	caps        domain.Capabilities
	device      ports.AudioDevice
	transcriber ports.Transcriber
	events      ports.EventSink
	finalizer   transcriptFinalizer
	logger      zerolog.Logger
	cfg         Config

	mu      sync.Mutex
	current *recordingSession
}

func NewSessionController(
	caps domain.Capabilities,
	device ports.AudioDevice,
	transcriber ports.Transcriber,
	rules ports.RulesEngine,
	events ports.EventSink,
	logger zerolog.Logger,
	cfg Config,
) *SessionController {
	if cfg.MinAudioBytes <= 0 {
		cfg.MinAudioBytes = defaultMinAudioBytes
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = defaultTranscribeTimeout
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	return &SessionController{
		caps:        caps,
		device:      device,
		transcriber: transcriber,
		events:      events,
		finalizer:   newTranscriptFinalizer(rules, events),
		logger:      logging.Component(logger, "recorder"),
		cfg:         cfg,
		current:     newIdleSession(),
	}
}

// Capabilities returns the capability set computed at startup.
func (c *SessionController) Capabilities() domain.Capabilities {
	return c.caps
}

// Start begins a new recording session. It returns ErrSessionActive without
// touching the device when a session is recording or transcribing.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.current.state.Active() {
		c.mu.Unlock()
		return ErrSessionActive
	}

	encoding := capability.SelectEncoding(c.caps)
	session := &recordingSession{
		id:        ulid.MustNew(ulid.Now(), rand.Reader).String(),
		state:     domain.SessionStateRecording,
		reason:    domain.SessionReasonRecordingStarted,
		encoding:  encoding,
		collected: make(chan [][]byte, 1),
	}
	c.current = session
	c.mu.Unlock()

	logger := c.logger.With().Str("session_id", session.id).Logger()

	if !c.caps.IsUsable {
		return c.fail(session, capabilityError(c.caps), domain.SessionReasonCapabilityFailed)
	}

	audioCfg := c.cfg.Audio
	audioCfg.Encoding = encoding

	logger.Info().Str("encoding", encoding).Msg("requesting microphone access")
	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := c.device.Open(sessionCtx, audioCfg)

	c.mu.Lock()
	cancelled := session.state != domain.SessionStateRecording
	if err == nil && !cancelled {
		session.stream = stream
		session.cancel = cancel
	}
	c.mu.Unlock()

	if cancelled {
		if err == nil {
			discardStream(stream, logger)
		}
		cancel()
		logger.Info().Msg("recording cancelled while the microphone was opening")
		return ErrStartCancelled
	}
	if err != nil {
		cancel()
		recErr := classifyDeviceError(err)
		logger.Warn().Err(err).Str("reason", string(recErr.Reason)).Msg("microphone access failed")
		return c.fail(session, recErr, domain.SessionReasonDeviceFailed)
	}

	go collectChunks(session, stream, c.events, logger)

	logger.Info().Msg("recording started")
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

// Stop finalizes the buffer, releases the device and transcribes the result.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	c.mu.Lock()
	session := c.current
	if !session.recording() {
		c.mu.Unlock()
		return domain.StopResult{}, ErrNoActiveSession
	}
	session.state = domain.SessionStateStopping
	session.reason = domain.SessionReasonStopping
	c.mu.Unlock()

	logger := c.logger.With().Str("session_id", session.id).Logger()
	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonStopping)

	chunks, err := c.release(session)
	if err != nil {
		recErr := domain.NewCaptureError(domain.ReasonRecordingEmpty, "no audio was recorded: "+err.Error())
		return domain.StopResult{}, c.fail(session, recErr, domain.SessionReasonCaptureFailed)
	}

	audio := joinChunks(chunks)
	logger.Info().Int("bytes", len(audio)).Int("chunks", len(chunks)).Str("encoding", session.encoding).Msg("recording finalized")

	if recErr := c.checkCaptureSize(len(audio)); recErr != nil {
		return domain.StopResult{}, c.fail(session, recErr, domain.SessionReasonCaptureFailed)
	}

	c.setState(session, domain.SessionStateTranscribing, domain.SessionReasonTranscribing)
	c.events.SessionStateChanged(domain.SessionStateTranscribing, domain.SessionReasonTranscribing)

	transcribeCtx, cancel := context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
	raw, err := c.transcriber.Transcribe(transcribeCtx, audio, session.encoding)
	cancel()
	if err != nil {
		recErr := classifyTranscriptionError(err)
		logger.Warn().Err(err).Str("reason", string(recErr.Reason)).Msg("transcription failed")
		return domain.StopResult{}, c.fail(session, recErr, domain.SessionReasonTranscriptionFailed)
	}
	if strings.TrimSpace(raw) == "" {
		recErr := domain.NewTranscriptionError(domain.ReasonEmptyTranscript, 0, "no transcript returned", nil)
		return domain.StopResult{}, c.fail(session, recErr, domain.SessionReasonTranscriptionFailed)
	}

	final, reason := c.finalizer.Finalize(raw)
	result := domain.StopResult{
		SessionID:       session.id,
		Encoding:        session.encoding,
		AudioBytes:      len(audio),
		RawTranscript:   strings.TrimSpace(raw),
		FinalTranscript: final,
	}

	c.mu.Lock()
	session.state = domain.SessionStateCompleted
	session.reason = reason
	session.transcript = final
	c.mu.Unlock()

	logger.Info().Int("chars", len(final)).Msg("transcription completed")
	c.events.SessionStateChanged(domain.SessionStateCompleted, reason)
	c.events.TranscriptionComplete(result)
	return result, nil
}

// Cancel discards an in-progress recording without transcribing it. A
// session whose device is still opening is cancelled too; Start releases the
// device once it opens.
func (c *SessionController) Cancel() error {
	c.mu.Lock()
	session := c.current
	opening := session.opening()
	if !opening && !session.recording() {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	session.state = domain.SessionStateCancelled
	session.reason = domain.SessionReasonRecordingDiscarded
	c.mu.Unlock()

	if !opening {
		if _, err := c.release(session); err != nil {
			c.logger.Warn().Err(err).Str("session_id", session.id).Msg("discarding recording without encoder flush")
		}
	}
	session.chunkCount.Store(0)
	session.byteCount.Store(0)
	c.events.SessionStateChanged(domain.SessionStateCancelled, domain.SessionReasonRecordingDiscarded)

	c.mu.Lock()
	if c.current == session {
		c.current = newIdleSession()
	}
	c.mu.Unlock()

	c.logger.Info().Str("session_id", session.id).Msg("recording cancelled")
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReset)
	return nil
}

// Reset returns a resolved session to a fresh Idle one. Resetting an idle
// controller is a no-op.
func (c *SessionController) Reset() error {
	c.mu.Lock()
	state := c.current.state
	switch {
	case state.Active():
		c.mu.Unlock()
		return ErrSessionActive
	case !state.Terminal():
		c.mu.Unlock()
		return nil
	}
	c.current = newIdleSession()
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReset)
	return nil
}

// Status returns a snapshot of the live session.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.status()
}

// release stops the device on every exit from Recording and waits for the
// collector to hand the buffer back.
func (c *SessionController) release(session *recordingSession) ([][]byte, error) {
	c.mu.Lock()
	stream, cancel := session.stream, session.cancel
	c.mu.Unlock()

	if err := stream.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to release microphone cleanly: "+err.Error())
	}
	chunks, err := awaitChunks(session.collected, c.cfg.FlushTimeout)
	if cancel != nil {
		cancel()
	}
	return chunks, err
}

// discardStream stops a stream nobody will collect from, draining it so the
// encoder can finish.
func discardStream(stream ports.AudioStream, logger zerolog.Logger) {
	go func() {
		for range stream.Chunks() {
		}
	}()
	if err := stream.Stop(); err != nil {
		logger.Warn().Err(err).Msg("failed to release microphone after cancel")
	}
}

func (c *SessionController) checkCaptureSize(size int) *domain.RecorderError {
	switch {
	case size == 0:
		return domain.NewCaptureError(domain.ReasonRecordingEmpty, "no audio was recorded; please try again")
	case size < c.cfg.MinAudioBytes:
		return domain.NewCaptureError(domain.ReasonRecordingTooShort,
			fmt.Sprintf("recording is too short (%d bytes, need at least %d)", size, c.cfg.MinAudioBytes))
	default:
		return nil
	}
}

func (c *SessionController) setState(session *recordingSession, state domain.SessionState, reason domain.SessionStateReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session.state = state
	session.reason = reason
}

// fail moves a session to Failed and fires the error callback exactly once.
func (c *SessionController) fail(session *recordingSession, recErr *domain.RecorderError, reason domain.SessionStateReason) error {
	message := recErr.Message
	if message == "" {
		message = recErr.Error()
	}

	c.mu.Lock()
	session.state = domain.SessionStateFailed
	session.reason = reason
	session.errorMessage = message
	session.transcript = ""
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateFailed, reason)
	c.events.TranscriptionFailed(recErr)
	return recErr
}

func capabilityError(caps domain.Capabilities) *domain.RecorderError {
	switch {
	case !caps.SecureContext:
		return domain.NewCapabilityError(domain.ReasonInsecureContext, "voice recording requires a secure context (https or localhost)")
	case !caps.HasDeviceAccess:
		return domain.NewCapabilityError(domain.ReasonUnsupported, "microphone access is not available on this host")
	case !caps.HasRecorder:
		return domain.NewCapabilityError(domain.ReasonUnsupported, "audio recording is not supported on this host")
	default:
		return domain.NewCapabilityError(domain.ReasonUnsupported, "no compatible audio format is available")
	}
}
