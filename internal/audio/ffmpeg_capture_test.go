package audio

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

func TestFFMPEGCaptureDeliversFinalFlushAfterStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", `#!/usr/bin/env bash
trap 'printf " world"; exit 0' INT
printf 'hello'
while true; do sleep 0.05; done
`)
	capture := NewFFMPEGCapture(script, zerolog.Nop())

	stream, err := capture.Open(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	got := collect(t, stream)
	if got != "hello world" {
		t.Fatalf("expected final flush to be delivered, got %q", got)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}

func TestFFMPEGCapturePassesEncoderArguments(t *testing.T) {
	t.Parallel()

	argsFile := filepath.Join(t.TempDir(), "args")
	script := writeScript(t, "args.sh", "#!/usr/bin/env bash\necho \"$@\" > "+argsFile+"\nwhile true; do sleep 0.05; done\n")
	capture := NewFFMPEGCapture(script, zerolog.Nop())

	stream, err := capture.Open(context.Background(), ports.AudioConfig{
		Encoding:    domain.EncodingMP4,
		InputFormat: "alsa",
		InputDevice: "hw:1",
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_ = stream.Stop()
	collect(t, stream)

	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	args := string(raw)
	for _, want := range []string{"-f alsa -i hw:1", "-ar 48000", "-c:a aac -f mp4 -movflags frag_keyframe+empty_moov -"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in args %q", want, args)
		}
	}
}

func TestFFMPEGCaptureStartFailuresAreClassified(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		stderr string
		reason domain.FailureReason
	}{
		{name: "permission", stderr: "default: Permission denied", reason: domain.ReasonPermissionDenied},
		{name: "missing", stderr: "hw:3: No such file or directory", reason: domain.ReasonDeviceNotFound},
		{name: "busy", stderr: "cannot open audio device hw:0 (Device or resource busy)", reason: domain.ReasonDeviceBusy},
		{name: "unknown", stderr: "boom", reason: domain.ReasonDeviceUnknown},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho '"+tc.stderr+"' 1>&2\nexit 1\n")
			capture := NewFFMPEGCapture(script, zerolog.Nop())

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			_, err := capture.Open(ctx, ports.AudioConfig{})
			if !domain.IsReason(err, tc.reason) {
				t.Fatalf("expected %s, got %v", tc.reason, err)
			}
			if !domain.IsCode(err, domain.ErrorCodeDevice) {
				t.Fatalf("expected device error, got %v", err)
			}
		})
	}
}

func TestFFMPEGCaptureEarlyExitMessage(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFMPEGCapture(script, zerolog.Nop())

	_, err := capture.Open(context.Background(), ports.AudioConfig{})
	if err == nil || !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFMPEGCaptureRejectsUnknownEncoding(t *testing.T) {
	t.Parallel()

	capture := NewFFMPEGCapture("ffmpeg", zerolog.Nop())
	_, err := capture.Open(context.Background(), ports.AudioConfig{Encoding: "audio/flac"})
	if !domain.IsReason(err, domain.ReasonUnsupportedEncoding) {
		t.Fatalf("expected unsupported encoding, got %v", err)
	}
}

func TestFFMPEGCaptureReportsUnexpectedExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "crash.sh", "#!/usr/bin/env bash\nprintf 'abc'\nsleep 0.4\nexit 3\n")
	capture := NewFFMPEGCapture(script, zerolog.Nop())

	stream, err := capture.Open(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if got := collect(t, stream); got != "abc" {
		t.Fatalf("expected partial audio, got %q", got)
	}
	if stream.Err() == nil {
		t.Fatalf("expected stream error after unexpected exit")
	}
	_ = stream.Stop()
}

func TestReadCoalescesWithinTimeslice(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	stream := &ffmpegStream{chunks: make(chan []byte, 8)}
	go stream.read(pr, 16, time.Hour)

	go func() {
		_, _ = pw.Write([]byte("ab"))
		_, _ = pw.Write([]byte("cd"))
		_ = pw.Close()
	}()

	var chunks []string
	for chunk := range stream.chunks {
		chunks = append(chunks, string(chunk))
	}
	if len(chunks) != 1 || chunks[0] != "abcd" {
		t.Fatalf("expected a single coalesced chunk, got %q", chunks)
	}
}

func TestReadWithoutTimesliceEmitsEachRead(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	stream := &ffmpegStream{chunks: make(chan []byte, 8)}
	go stream.read(pr, 16, 0)

	go func() {
		_, _ = pw.Write([]byte("ab"))
		_, _ = pw.Write([]byte("cd"))
		_ = pw.Close()
	}()

	var chunks []string
	for chunk := range stream.chunks {
		chunks = append(chunks, string(chunk))
	}
	if strings.Join(chunks, "") != "abcd" || len(chunks) != 2 {
		t.Fatalf("unexpected chunks: %q", chunks)
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestStringsTrimSpaceSafe(t *testing.T) {
	t.Parallel()

	if got := stringsTrimSpaceSafe("  hi\n"); got != "hi" {
		t.Fatalf("unexpected trim result: %q", got)
	}
}

func collect(t *testing.T, stream ports.AudioStream) string {
	t.Helper()
	var b strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-stream.Chunks():
			if !ok {
				return b.String()
			}
			b.Write(chunk)
		case <-timeout:
			t.Fatalf("timed out waiting for chunks to close")
		}
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
