package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/bootstrap"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/config"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/logging"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/usecase"
)

const (
	eventSession         = "kitchen:session"
	eventTranscript      = "kitchen:transcript"
	eventTranscriptError = "kitchen:transcript-error"
	eventError           = "kitchen:error"
	eventRecipe          = "kitchen:recipe"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	recipes    ports.RecipeGenerator
	cfg        config.Config
	logger     zerolog.Logger
	bootErr    error

	emit func(ctx context.Context, event string, data ...interface{})

	mu         sync.Mutex
	diet       domain.DietType
	autoSubmit *time.Timer
}

func NewApp() *App {
	return &App{
		logger: zerolog.Nop(),
		emit:   runtime.EventsEmit,
		diet:   domain.DietStrict,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.recipes = services.Recipes
	a.logger = logging.Component(services.Logger, "app")

	reason := domain.SessionReasonReady
	if !services.Capabilities.IsUsable {
		reason = domain.SessionReasonCaptureUnsupported
	}
	a.SessionStateChanged(domain.SessionStateIdle, reason)
}

func (a *App) shutdown(context.Context) {
	a.stopAutoSubmit()
	if a.controller != nil {
		_ = a.controller.Cancel()
	}
}

// GetCapabilities returns the capture capabilities probed at startup.
func (a *App) GetCapabilities() (domain.Capabilities, error) {
	if err := a.requireReady(); err != nil {
		return domain.Capabilities{}, err
	}
	return a.controller.Capabilities(), nil
}

// StartRecording opens the microphone and begins a new session.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.stopAutoSubmit()
	if err := a.controller.Start(a.ctx); err != nil && !errors.Is(err, usecase.ErrStartCancelled) {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopRecording finalizes the recording and returns the transcript.
func (a *App) StopRecording() (domain.StopResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.StopResult{}, err
	}
	return a.controller.Stop(a.ctx)
}

// CancelRecording discards an in-progress recording.
func (a *App) CancelRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.Cancel(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// ResetRecording clears a resolved session so a new one can start.
func (a *App) ResetRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.stopAutoSubmit()
	if err := a.controller.Reset(); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateFailed, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// GenerateRecipe hands the ingredient list to the recipe backend. The diet
// becomes the default for automatic hand-off.
func (a *App) GenerateRecipe(ingredients string, diet string) (domain.Recipe, error) {
	if err := a.requireReady(); err != nil {
		return domain.Recipe{}, err
	}
	dietType := a.rememberDiet(diet)

	recipe, err := a.recipes.Generate(a.ctx, ingredients, dietType)
	if err != nil {
		a.logger.Warn().Err(err).Msg("recipe generation failed")
		a.SessionError(domain.ErrorCodeRecipe, err.Error())
		return domain.Recipe{}, err
	}
	a.emitEvent(eventRecipe, recipe)
	return recipe, nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"transcriber":      a.cfg.Transcriber,
		"endpoint":         bootstrap.TranscriberEndpoint(a.cfg),
		"recipeEndpoint":   a.cfg.Edge.RecipeURL,
		"rulesFile":        a.cfg.Rules.Path,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"autoSubmit":       a.cfg.Session.AutoSubmitDelay.String(),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.emitEvent(eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// TranscriptionComplete emits the transcript and schedules the recipe hand-off.
func (a *App) TranscriptionComplete(result domain.StopResult) {
	a.emitEvent(eventTranscript, result)
	a.scheduleAutoSubmit(result.FinalTranscript)
}

// TranscriptionFailed emits a terminal session failure.
func (a *App) TranscriptionFailed(err *domain.RecorderError) {
	if err == nil {
		return
	}
	a.emitEvent(eventTranscriptError, map[string]any{
		"code":    string(err.Code),
		"reason":  string(err.Reason),
		"message": err.Message,
		"status":  err.Status,
	})
}

// SessionError emits non-terminal backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emitEvent(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emitEvent(event string, payload any) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, event, payload)
}

func (a *App) rememberDiet(diet string) domain.DietType {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch domain.DietType(strings.ToLower(strings.TrimSpace(diet))) {
	case domain.DietStrict:
		a.diet = domain.DietStrict
	case domain.DietFlexible:
		a.diet = domain.DietFlexible
	}
	if a.diet == "" {
		a.diet = domain.DietStrict
	}
	return a.diet
}

func (a *App) scheduleAutoSubmit(ingredients string) {
	delay := a.cfg.Session.AutoSubmitDelay
	if delay <= 0 || a.recipes == nil || strings.TrimSpace(ingredients) == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.autoSubmit != nil {
		a.autoSubmit.Stop()
	}
	a.autoSubmit = time.AfterFunc(delay, func() {
		_, _ = a.GenerateRecipe(ingredients, "")
	})
}

func (a *App) stopAutoSubmit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.autoSubmit != nil {
		a.autoSubmit.Stop()
		a.autoSubmit = nil
	}
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready to record"
	case domain.SessionReasonCaptureUnsupported:
		return "Voice capture is not available on this device"
	case domain.SessionReasonRecordingStarted:
		return "Listening for ingredients"
	case domain.SessionReasonStopping:
		return "Finishing recording"
	case domain.SessionReasonTranscribing:
		return "Recording stopped. Transcribing..."
	case domain.SessionReasonTranscriptReady:
		return "Ingredients captured"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonReset:
		return "Ready for a new recording"
	case domain.SessionReasonDeviceFailed:
		return "Microphone unavailable"
	case domain.SessionReasonCaptureFailed:
		return "Nothing usable was recorded"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.SessionReasonCapabilityFailed:
		return "Voice capture is not supported here"
	case domain.SessionReasonTranscriptRulesError:
		return "Ingredients captured (cleanup rules failed)"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio capture issue"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeRecipe:
		return "Recipe generation failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
