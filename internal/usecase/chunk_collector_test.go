package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

func TestCollectChunksKeepsArrivalOrder(t *testing.T) {
	t.Parallel()

	stream := newFakeStream([]byte("ab"), nil, []byte("cd"), []byte("e"))
	session := &recordingSession{collected: make(chan [][]byte, 1)}
	events := &fakeEventSink{}

	go collectChunks(session, stream, events, zerolog.Nop())
	_ = stream.Stop()

	chunks, err := awaitChunks(session.collected, time.Second)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if got := string(joinChunks(chunks)); got != "abcde" {
		t.Fatalf("unexpected buffer: %q", got)
	}
	if session.chunkCount.Load() != 3 || session.byteCount.Load() != 5 {
		t.Fatalf("unexpected counters: %d chunks %d bytes", session.chunkCount.Load(), session.byteCount.Load())
	}
	if len(events.snapshotErrors()) != 0 {
		t.Fatalf("unexpected error events")
	}
}

func TestCollectChunksReportsStreamError(t *testing.T) {
	t.Parallel()

	stream := newFakeStream([]byte("abc"))
	stream.err = errors.New("encoder died")
	session := &recordingSession{collected: make(chan [][]byte, 1)}
	events := &fakeEventSink{}

	go collectChunks(session, stream, events, zerolog.Nop())
	_ = stream.Stop()

	chunks, err := awaitChunks(session.collected, time.Second)
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected partial audio to be kept, got %d chunks", len(chunks))
	}
	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeAudioStream {
		t.Fatalf("expected audio stream error event, got %+v", errs)
	}
}

func TestAwaitChunksTimeout(t *testing.T) {
	t.Parallel()

	_, err := awaitChunks(make(chan [][]byte), 10*time.Millisecond)
	if !errors.Is(err, errFlushTimeout) {
		t.Fatalf("expected flush timeout, got %v", err)
	}
}

func TestJoinChunksEmpty(t *testing.T) {
	t.Parallel()

	if got := joinChunks(nil); len(got) != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", len(got))
	}
}
