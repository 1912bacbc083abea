package audio

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

const probeTimeout = 3 * time.Second

// FFMPEGProbe answers capability questions by asking ffmpeg what it was built
// with. It never opens an input device.
type FFMPEGProbe struct {
	command     string
	inputFormat string

	pathOnce  sync.Once
	available bool

	devicesOnce sync.Once
	devices     map[string]bool

	muxersOnce sync.Once
	muxers     map[string]bool
	encoders   map[string]bool
}

func NewFFMPEGProbe(command string, inputFormat string) *FFMPEGProbe {
	if command == "" {
		command = "ffmpeg"
	}
	if inputFormat == "" {
		inputFormat = "pulse"
	}
	return &FFMPEGProbe{command: command, inputFormat: inputFormat}
}

// Available reports whether the ffmpeg binary can be executed.
func (p *FFMPEGProbe) Available() bool {
	p.pathOnce.Do(func() {
		_, err := exec.LookPath(p.command)
		p.available = err == nil
	})
	return p.available
}

// HasInputFormat reports whether ffmpeg can read from the configured input backend.
func (p *FFMPEGProbe) HasInputFormat() bool {
	if !p.Available() {
		return false
	}
	p.devicesOnce.Do(func() {
		p.devices = parseCapabilityList(p.run("-devices"), 'D')
	})
	return p.devices[p.inputFormat]
}

// SupportsEncoding reports whether ffmpeg can mux and encode the given encoding.
func (p *FFMPEGProbe) SupportsEncoding(encoding string) bool {
	if !p.Available() {
		return false
	}
	p.muxersOnce.Do(func() {
		p.muxers = parseCapabilityList(p.run("-muxers"), 'E')
		p.encoders = parseEncoderList(p.run("-encoders"))
	})

	output, ok := containerArgs(encoding)
	if !ok {
		return false
	}
	var codec, muxer string
	for i := 0; i+1 < len(output); i += 2 {
		switch output[i] {
		case "-c:a":
			codec = output[i+1]
		case "-f":
			muxer = output[i+1]
		}
	}
	return p.muxers[muxer] && p.encoders[codec]
}

func (p *FFMPEGProbe) run(flag string) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, p.command, "-hide_banner", flag).Output()
	if err != nil && len(out) == 0 {
		return nil
	}
	return out
}

// parseCapabilityList reads ffmpeg's "-devices"/"-muxers" tables, whose rows
// look like " DE pulse   PulseAudio". Names may be comma separated.
func parseCapabilityList(out []byte, flag byte) map[string]bool {
	names := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inTable := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.ContainsRune(fields[0], rune(flag)) {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}

// parseEncoderList reads ffmpeg's "-encoders" table, whose rows look like
// " A....D libopus   libopus Opus". Only audio encoders are kept.
func parseEncoderList(out []byte) map[string]bool {
	names := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inTable := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "------") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "A") {
			continue
		}
		names[fields[1]] = true
	}
	return names
}

// Encodings lists the encodings this ffmpeg build can produce, for diagnostics.
func (p *FFMPEGProbe) Encodings() []string {
	var out []string
	for _, encoding := range []string{domain.EncodingWebM, domain.EncodingMP4, domain.EncodingOgg, domain.EncodingWAV, domain.EncodingMPEG} {
		if p.SupportsEncoding(encoding) {
			out = append(out, encoding)
		}
	}
	return out
}
