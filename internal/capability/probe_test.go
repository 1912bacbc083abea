package capability

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filmarcelino/carnivore-kitchen-genie/internal/domain"
)

type fakeEnv struct {
	secure    bool
	device    bool
	recorder  bool
	encodings map[string]bool
	calls     int
}

func (f *fakeEnv) SecureContext() bool   { f.calls++; return f.secure }
func (f *fakeEnv) HasDeviceAccess() bool { f.calls++; return f.device }
func (f *fakeEnv) HasRecorder() bool     { f.calls++; return f.recorder }
func (f *fakeEnv) SupportsEncoding(encoding string) bool {
	f.calls++
	return f.encodings[encoding]
}

func TestProbeTruthTable(t *testing.T) {
	t.Parallel()

	for mask := 0; mask < 16; mask++ {
		secure := mask&1 != 0
		device := mask&2 != 0
		recorder := mask&4 != 0
		encodings := mask&8 != 0

		t.Run(fmt.Sprintf("secure=%t/device=%t/recorder=%t/encodings=%t", secure, device, recorder, encodings), func(t *testing.T) {
			t.Parallel()

			env := &fakeEnv{secure: secure, device: device, recorder: recorder, encodings: map[string]bool{}}
			if encodings {
				env.encodings[domain.EncodingWebM] = true
			}

			caps := Probe(env)
			want := secure && device && recorder && encodings
			require.Equal(t, want, caps.IsUsable)
			require.Equal(t, want, Usable(caps))
			require.Equal(t, secure, caps.SecureContext)
			require.Equal(t, device, caps.HasDeviceAccess)
			require.Equal(t, recorder, caps.HasRecorder)
		})
	}
}

func TestProbeKeepsPreferenceOrder(t *testing.T) {
	t.Parallel()

	env := &fakeEnv{secure: true, device: true, recorder: true, encodings: map[string]bool{
		domain.EncodingMP4:  true,
		domain.EncodingWebM: true,
		domain.EncodingOgg:  true,
	}}

	caps := Probe(env)
	require.Equal(t, []string{domain.EncodingWebM, domain.EncodingMP4}, caps.SupportedEncodings)
	require.True(t, caps.IsUsable)
}

func TestProbeNilEnvironment(t *testing.T) {
	t.Parallel()

	caps := Probe(nil)
	require.False(t, caps.IsUsable)
	require.Empty(t, caps.SupportedEncodings)
}

func TestSelectEncoding(t *testing.T) {
	t.Parallel()

	require.Equal(t, domain.EncodingWebM, SelectEncoding(domain.Capabilities{SupportedEncodings: []string{domain.EncodingWebM, domain.EncodingMP4}}))
	require.Equal(t, domain.EncodingMP4, SelectEncoding(domain.Capabilities{SupportedEncodings: []string{domain.EncodingMP4}}))
	require.Equal(t, domain.EncodingWebM, SelectEncoding(domain.Capabilities{}))
}

func TestSecureOrigin(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://abc.supabase.co/functions/v1/transcribe-audio": true,
		"http://localhost:8787/functions/v1/transcribe-audio":   true,
		"http://127.0.0.1:8787/x":                               true,
		"http://[::1]:8787/x":                                   true,
		"http://example.com/x":                                  false,
		"ws://10.0.0.2/x":                                       false,
		"":                                                      false,
		"not a url":                                             false,
	}
	for raw, want := range cases {
		require.Equal(t, want, SecureOrigin(raw), raw)
	}
}

type fakeRecorder struct {
	available bool
	input     bool
	encodings map[string]bool
}

func (f fakeRecorder) Available() bool                       { return f.available }
func (f fakeRecorder) HasInputFormat() bool                  { return f.input }
func (f fakeRecorder) SupportsEncoding(encoding string) bool { return f.encodings[encoding] }

func TestHostEnvironment(t *testing.T) {
	t.Parallel()

	env := HostEnvironment{
		Endpoint: "https://example.com/functions/v1/transcribe-audio",
		Recorder: fakeRecorder{available: true, input: true, encodings: map[string]bool{domain.EncodingMP4: true}},
	}
	caps := Probe(env)
	require.True(t, caps.IsUsable)
	require.Equal(t, []string{domain.EncodingMP4}, caps.SupportedEncodings)

	missing := HostEnvironment{Endpoint: "https://example.com"}
	require.False(t, missing.HasRecorder())
	require.False(t, missing.HasDeviceAccess())
	require.False(t, missing.SupportsEncoding(domain.EncodingWebM))

	noInput := HostEnvironment{Endpoint: "https://example.com", Recorder: fakeRecorder{available: true}}
	require.True(t, noInput.HasRecorder())
	require.False(t, noInput.HasDeviceAccess())
}
