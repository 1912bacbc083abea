package usecase

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

var errFlushTimeout = errors.New("encoder did not flush before timeout")

// collectChunks is the single writer of a session's buffer. It appends every
// non-empty chunk in delivery order and hands the whole buffer back once the
// stream closes its channel.
func collectChunks(
	session *recordingSession,
	stream ports.AudioStream,
	events ports.EventSink,
	logger zerolog.Logger,
) {
	var chunks [][]byte
	defer func() { session.collected <- chunks }()

	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		chunks = append(chunks, chunk)
		session.chunkCount.Add(1)
		session.byteCount.Add(int64(len(chunk)))
		logger.Debug().Int("bytes", len(chunk)).Int("chunks", len(chunks)).Msg("audio chunk recorded")
	}

	if err := stream.Err(); err != nil {
		events.SessionError(domain.ErrorCodeAudioStream, "audio capture error: "+err.Error())
	}
}

// awaitChunks waits for the collector to finish after the device was asked to stop.
func awaitChunks(collected <-chan [][]byte, timeout time.Duration) ([][]byte, error) {
	if timeout <= 0 {
		return <-collected, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunks := <-collected:
		return chunks, nil
	case <-timer.C:
		return nil, errFlushTimeout
	}
}

func joinChunks(chunks [][]byte) []byte {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	buffer := make([]byte, 0, total)
	for _, chunk := range chunks {
		buffer = append(buffer, chunk...)
	}
	return buffer
}
