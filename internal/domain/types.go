package domain

// SessionState models the voice capture lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateRecording    SessionState = "recording"
	SessionStateStopping     SessionState = "stopping"
	SessionStateTranscribing SessionState = "transcribing"
	SessionStateCompleted    SessionState = "completed"
	SessionStateCancelled    SessionState = "cancelled"
	SessionStateFailed       SessionState = "failed"
)

// Active reports whether the state owns the input device or a pending transcription.
func (s SessionState) Active() bool {
	switch s {
	case SessionStateRecording, SessionStateStopping, SessionStateTranscribing:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state resolves a session and waits for Reset.
func (s SessionState) Terminal() bool {
	return s == SessionStateCompleted || s == SessionStateFailed || s == SessionStateCancelled
}

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady                SessionStateReason = "ready"
	SessionReasonCaptureUnsupported   SessionStateReason = "capture_unsupported"
	SessionReasonRecordingStarted     SessionStateReason = "recording_started"
	SessionReasonStopping             SessionStateReason = "stopping"
	SessionReasonTranscribing         SessionStateReason = "transcribing"
	SessionReasonTranscriptReady      SessionStateReason = "transcript_ready"
	SessionReasonRecordingDiscarded   SessionStateReason = "recording_discarded"
	SessionReasonReset                SessionStateReason = "reset"
	SessionReasonDeviceFailed         SessionStateReason = "device_failed"
	SessionReasonCaptureFailed        SessionStateReason = "capture_failed"
	SessionReasonTranscriptionFailed  SessionStateReason = "transcription_failed"
	SessionReasonCapabilityFailed     SessionStateReason = "capability_failed"
	SessionReasonTranscriptRulesError SessionStateReason = "transcript_rules_failed"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a streaming provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Capabilities describes whether the host can capture audio at all.
// It is computed once per process and never mutated.
type Capabilities struct {
	SecureContext      bool     `json:"secureContext"`
	HasDeviceAccess    bool     `json:"hasDeviceAccess"`
	HasRecorder        bool     `json:"hasRecorder"`
	SupportedEncodings []string `json:"supportedEncodings"`
	IsUsable           bool     `json:"isUsable"`
}

// Supports reports whether encoding is in SupportedEncodings.
func (c Capabilities) Supports(encoding string) bool {
	for _, candidate := range c.SupportedEncodings {
		if candidate == encoding {
			return true
		}
	}
	return false
}

// StopResult is returned once recording is stopped and transcription is processed.
type StopResult struct {
	SessionID       string `json:"sessionId"`
	Encoding        string `json:"encoding"`
	AudioBytes      int    `json:"audioBytes"`
	RawTranscript   string `json:"rawTranscript"`
	FinalTranscript string `json:"finalTranscript"`
}

// Status summarizes the live recording session.
type Status struct {
	SessionID    string             `json:"sessionId,omitempty"`
	State        SessionState       `json:"state"`
	Reason       SessionStateReason `json:"reason,omitempty"`
	Active       bool               `json:"active"`
	Encoding     string             `json:"encoding,omitempty"`
	Chunks       int                `json:"chunks"`
	Transcript   string             `json:"transcript,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	Message      string             `json:"message,omitempty"`
}
