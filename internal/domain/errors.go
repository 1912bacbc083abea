package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the class of a failure reported to the UI.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeCapability    ErrorCode = "capability"
	ErrorCodeDevice        ErrorCode = "device"
	ErrorCodeCapture       ErrorCode = "capture"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodeRules         ErrorCode = "rules"
	ErrorCodeRecipe        ErrorCode = "recipe"
)

// FailureReason narrows an ErrorCode so callers can show distinct remediation text.
type FailureReason string

const (
	ReasonUnsupported         FailureReason = "unsupported"
	ReasonInsecureContext     FailureReason = "insecure_context"
	ReasonPermissionDenied    FailureReason = "permission_denied"
	ReasonDeviceNotFound      FailureReason = "device_not_found"
	ReasonDeviceBusy          FailureReason = "device_busy"
	ReasonDeviceUnknown       FailureReason = "device_unknown"
	ReasonRecordingEmpty      FailureReason = "recording_empty"
	ReasonRecordingTooShort   FailureReason = "recording_too_short"
	ReasonUnsupportedEncoding FailureReason = "unsupported_encoding"
	ReasonNetwork             FailureReason = "network"
	ReasonServiceStatus       FailureReason = "service_status"
	ReasonMalformedResponse   FailureReason = "malformed_response"
	ReasonEmptyTranscript     FailureReason = "empty_transcript"
	ReasonTimeout             FailureReason = "timeout"
	ReasonNotConfigured       FailureReason = "not_configured"
)

// RecorderError is a structured, session-terminating failure.
type RecorderError struct {
	Code    ErrorCode
	Reason  FailureReason
	Message string
	// Status is the HTTP status returned by a transcription service, zero otherwise.
	Status int
	Err    error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s/%s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Code, e.Reason, e.Message)
}

func (e *RecorderError) Unwrap() error { return e.Err }

// NewCapabilityError reports an environment that cannot capture audio at all.
func NewCapabilityError(reason FailureReason, msg string) *RecorderError {
	return &RecorderError{Code: ErrorCodeCapability, Reason: reason, Message: msg}
}

// NewDeviceError reports a permission, availability or contention problem.
func NewDeviceError(reason FailureReason, msg string, err error) *RecorderError {
	return &RecorderError{Code: ErrorCodeDevice, Reason: reason, Message: msg, Err: err}
}

// NewCaptureError reports an empty or too-short recording.
func NewCaptureError(reason FailureReason, msg string) *RecorderError {
	return &RecorderError{Code: ErrorCodeCapture, Reason: reason, Message: msg}
}

// NewTranscriptionError reports a network, service or payload failure.
func NewTranscriptionError(reason FailureReason, status int, msg string, err error) *RecorderError {
	return &RecorderError{Code: ErrorCodeTranscription, Reason: reason, Status: status, Message: msg, Err: err}
}

// AsRecorderError extracts a *RecorderError from an error chain.
func AsRecorderError(err error) (*RecorderError, bool) {
	var recErr *RecorderError
	if errors.As(err, &recErr) {
		return recErr, true
	}
	return nil, false
}

// IsReason checks if err carries the given failure reason.
func IsReason(err error, reason FailureReason) bool {
	if recErr, ok := AsRecorderError(err); ok {
		return recErr.Reason == reason
	}
	return false
}

// IsCode checks if err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	if recErr, ok := AsRecorderError(err); ok {
		return recErr.Code == code
	}
	return false
}
