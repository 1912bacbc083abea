// Package capability decides, once per process, whether audio capture is possible.
package capability

import (
	"net"
	"net/url"
	"strings"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
	"github.com/filmarcelino/carnivore-kitchen-genie/internal/ports"
)

// PreferredEncodings is the order in which encodings are tried.
var PreferredEncodings = []string{domain.EncodingWebM, domain.EncodingMP4}

// FallbackEncoding is used when no preferred encoding is reported as supported.
const FallbackEncoding = domain.EncodingWebM

// Probe reads the environment and returns the immutable capability set.
func Probe(env ports.Environment) domain.Capabilities {
	if env == nil {
		return domain.Capabilities{SupportedEncodings: []string{}}
	}

	caps := domain.Capabilities{
		SecureContext:      env.SecureContext(),
		HasDeviceAccess:    env.HasDeviceAccess(),
		HasRecorder:        env.HasRecorder(),
		SupportedEncodings: []string{},
	}
	if caps.HasRecorder {
		for _, encoding := range PreferredEncodings {
			if env.SupportsEncoding(encoding) {
				caps.SupportedEncodings = append(caps.SupportedEncodings, encoding)
			}
		}
	}
	caps.IsUsable = Usable(caps)
	return caps
}

// Usable is the single gate checked before a recording may start.
func Usable(caps domain.Capabilities) bool {
	return caps.SecureContext && caps.HasDeviceAccess && caps.HasRecorder && len(caps.SupportedEncodings) > 0
}

// SelectEncoding picks the first supported encoding in preference order.
func SelectEncoding(caps domain.Capabilities) string {
	for _, encoding := range PreferredEncodings {
		if caps.Supports(encoding) {
			return encoding
		}
	}
	return FallbackEncoding
}

// SecureOrigin reports whether audio may be shipped to rawURL: https anywhere,
// or any scheme on a loopback host.
func SecureOrigin(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return false
	}
	if strings.EqualFold(parsed.Scheme, "https") {
		return true
	}

	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Recorder is the part of the platform audio adapter the prober needs.
type Recorder interface {
	Available() bool
	HasInputFormat() bool
	SupportsEncoding(encoding string) bool
}

// HostEnvironment combines the transcription endpoint's origin with the
// platform recorder's facts.
type HostEnvironment struct {
	Endpoint string
	Recorder Recorder
}

func (h HostEnvironment) SecureContext() bool { return SecureOrigin(h.Endpoint) }

func (h HostEnvironment) HasDeviceAccess() bool {
	return h.Recorder != nil && h.Recorder.Available() && h.Recorder.HasInputFormat()
}

func (h HostEnvironment) HasRecorder() bool {
	return h.Recorder != nil && h.Recorder.Available()
}

func (h HostEnvironment) SupportsEncoding(encoding string) bool {
	return h.Recorder != nil && h.Recorder.SupportsEncoding(encoding)
}
