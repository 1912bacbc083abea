package usecase

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

// classifyDeviceError maps a failure to open the input device onto the
// reasons the UI has remediation text for.
func classifyDeviceError(err error) *domain.RecorderError {
	if recErr, ok := domain.AsRecorderError(err); ok {
		return recErr
	}

	switch {
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return domain.NewDeviceError(domain.ReasonPermissionDenied, "microphone access was denied; allow access and try again", err)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENOENT):
		return domain.NewDeviceError(domain.ReasonDeviceNotFound, "no microphone detected; connect a microphone and try again", err)
	case errors.Is(err, syscall.EBUSY):
		return domain.NewDeviceError(domain.ReasonDeviceBusy, "the microphone is already in use by another application", err)
	default:
		msg := "microphone error: unknown error"
		if err != nil {
			msg = "microphone error: " + err.Error()
		}
		return domain.NewDeviceError(domain.ReasonDeviceUnknown, msg, err)
	}
}

// classifyTranscriptionError normalizes a transcriber failure. Providers
// usually return *domain.RecorderError already; anything else is treated as
// a network failure unless the bounded wait expired.
func classifyTranscriptionError(err error) *domain.RecorderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTranscriptionError(domain.ReasonTimeout, 0, "transcription timed out", err)
	}
	if recErr, ok := domain.AsRecorderError(err); ok {
		return recErr
	}
	return domain.NewTranscriptionError(domain.ReasonNetwork, 0, "transcription request failed: "+err.Error(), err)
}
