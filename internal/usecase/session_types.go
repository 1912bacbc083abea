package usecase

import (
	"sync/atomic"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

// recordingSession is owned by exactly one SessionController. Its mutable
// fields are guarded by the controller's mutex, except for the chunk buffer,
// which belongs to the collector goroutine until it is handed back on
// collected.
type recordingSession struct {
	id       string
	state    domain.SessionState
	reason   domain.SessionStateReason
	encoding string

	cancel    func()
	stream    ports.AudioStream
	collected chan [][]byte

	chunkCount atomic.Int64
	byteCount  atomic.Int64

	transcript   string
	errorMessage string
}

func newIdleSession() *recordingSession {
	return &recordingSession{state: domain.SessionStateIdle, reason: domain.SessionReasonReady}
}

func (s *recordingSession) recording() bool {
	return s.state == domain.SessionStateRecording && s.stream != nil
}

// opening is true between Start publishing Recording and the device
// handing back its stream.
func (s *recordingSession) opening() bool {
	return s.state == domain.SessionStateRecording && s.stream == nil
}

func (s *recordingSession) status() domain.Status {
	return domain.Status{
		SessionID:    s.id,
		State:        s.state,
		Reason:       s.reason,
		Active:       s.state.Active(),
		Encoding:     s.encoding,
		Chunks:       int(s.chunkCount.Load()),
		Transcript:   s.transcript,
		ErrorMessage: s.errorMessage,
	}
}
