package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/logging"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

const (
	startupGrace = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond

	defaultChunkSize = 4096
	chunkBacklog     = 64
)

// FFMPEGCapture records the microphone through ffmpeg and encodes it into a
// browser-compatible container on stdout.
type FFMPEGCapture struct {
	command string
	logger  zerolog.Logger
}

func NewFFMPEGCapture(command string, logger zerolog.Logger) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, logger: logging.Component(logger, "ffmpeg")}
}

func (c *FFMPEGCapture) Open(ctx context.Context, cfg ports.AudioConfig) (ports.AudioStream, error) {
	cfg = withDefaults(cfg)

	output, ok := containerArgs(cfg.Encoding)
	if !ok {
		return nil, domain.NewCaptureError(domain.ReasonUnsupportedEncoding, "unsupported audio encoding: "+cfg.Encoding)
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	args = append(args, output...)
	args = append(args, "-")

	cmd := exec.CommandContext(ctx, c.command, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	// exec copies into a non-file writer and Wait returns only after that
	// copy finishes, so the encoder's final flush always reaches the reader.
	pr, pw := io.Pipe()
	cmd.Stdout = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, classifyStartError(err, "")
	}

	stream := &ffmpegStream{
		chunks:  make(chan []byte, chunkBacklog),
		process: cmd.Process,
		waitErr: make(chan error, 1),
		stderr:  stderr,
		logger:  c.logger,
	}

	go func() {
		err := cmd.Wait()
		if err != nil && !stream.stopping.Load() {
			stream.setErr(fmt.Errorf("ffmpeg exited during capture: %w", err))
		}
		_ = pw.Close()
		stream.waitErr <- err
		close(stream.waitErr)
	}()
	go stream.read(pr, cfg.ChunkSize, cfg.Timeslice)

	select {
	case err := <-stream.waitErr:
		go drain(stream.chunks)
		return nil, classifyStartError(err, stderr.String())
	case <-time.After(startupGrace):
	}

	c.logger.Debug().Str("encoding", cfg.Encoding).Str("input", cfg.InputFormat+":"+cfg.InputDevice).Msg("capture started")
	return stream, nil
}

func withDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.Encoding == "" {
		cfg.Encoding = domain.EncodingWebM
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return cfg
}

// containerArgs returns the ffmpeg output options for a MIME-like encoding.
func containerArgs(encoding string) ([]string, bool) {
	file, ok := domain.AudioFileFor(encoding)
	if !ok {
		return nil, false
	}
	switch file.Extension {
	case "webm":
		return []string{"-c:a", "libopus", "-f", "webm"}, true
	case "mp4":
		return []string{"-c:a", "aac", "-f", "mp4", "-movflags", "frag_keyframe+empty_moov"}, true
	case "ogg":
		return []string{"-c:a", "libopus", "-f", "ogg"}, true
	case "wav":
		return []string{"-c:a", "pcm_s16le", "-f", "wav"}, true
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-f", "mp3"}, true
	default:
		return nil, false
	}
}

// classifyStartError maps an ffmpeg launch failure onto device reasons using
// its stderr, which is the only signal the input backends give.
func classifyStartError(err error, stderr string) *domain.RecorderError {
	detail := stringsTrimSpaceSafe(stderr)
	lower := strings.ToLower(detail)

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist) && detail == "":
		return domain.NewDeviceError(domain.ReasonDeviceUnknown, "ffmpeg is not installed or not executable", err)
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"):
		return domain.NewDeviceError(domain.ReasonPermissionDenied, "microphone access was denied; allow access and try again", err)
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "no such device"), strings.Contains(lower, "no such entity"):
		return domain.NewDeviceError(domain.ReasonDeviceNotFound, "no microphone detected; connect a microphone and try again", err)
	case strings.Contains(lower, "busy"):
		return domain.NewDeviceError(domain.ReasonDeviceBusy, "the microphone is already in use by another application", err)
	}

	msg := "ffmpeg exited before capture started"
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	} else if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return domain.NewDeviceError(domain.ReasonDeviceUnknown, "microphone error: "+msg, err)
}

type ffmpegStream struct {
	chunks chan []byte

	process *os.Process
	waitErr chan error
	stderr  *lockedBuffer
	logger  zerolog.Logger

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error

	mu     sync.Mutex
	runErr error
}

func (s *ffmpegStream) Chunks() <-chan []byte { return s.chunks }

func (s *ffmpegStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// read delivers encoder output in arrival order. Reads are coalesced until a
// timeslice has elapsed; whatever remains is flushed at EOF.
func (s *ffmpegStream) read(r io.ReadCloser, chunkSize int, timeslice time.Duration) {
	defer close(s.chunks)
	defer r.Close()

	buf := make([]byte, chunkSize)
	var pending []byte
	lastFlush := time.Now()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.chunks <- pending
		pending = nil
		lastFlush = time.Now()
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			if timeslice <= 0 || time.Since(lastFlush) >= timeslice {
				flush()
			}
		}
		if err != nil {
			flush()
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.setErr(err)
			}
			return
		}
	}
}

func (s *ffmpegStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr == nil {
		s.runErr = err
	}
}

// Stop asks ffmpeg to finalize the container and waits for it to exit,
// killing it after a grace period.
func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			s.logger.Warn().Msg("ffmpeg ignored interrupt; killing")
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func drain(chunks <-chan []byte) {
	for range chunks {
	}
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
