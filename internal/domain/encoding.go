package domain

import "strings"

const (
	EncodingWebM = "audio/webm"
	EncodingMP4  = "audio/mp4"
	EncodingOgg  = "audio/ogg"
	EncodingWAV  = "audio/wav"
	EncodingMPEG = "audio/mpeg"
)

// AudioFile describes how an encoding is uploaded to a transcription service.
type AudioFile struct {
	Extension   string
	ContentType string
}

// AudioFileFor maps a MIME-like encoding identifier (parameters such as
// ";codecs=opus" are ignored) to an upload extension and content type.
func AudioFileFor(encoding string) (AudioFile, bool) {
	base := strings.ToLower(strings.TrimSpace(encoding))
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}

	switch base {
	case EncodingWebM:
		return AudioFile{Extension: "webm", ContentType: EncodingWebM}, true
	case EncodingMP4, "audio/m4a", "audio/x-m4a":
		return AudioFile{Extension: "mp4", ContentType: EncodingMP4}, true
	case EncodingOgg:
		return AudioFile{Extension: "ogg", ContentType: EncodingOgg}, true
	case EncodingWAV, "audio/x-wav", "audio/wave":
		return AudioFile{Extension: "wav", ContentType: EncodingWAV}, true
	case EncodingMPEG, "audio/mp3":
		return AudioFile{Extension: "mp3", ContentType: EncodingMPEG}, true
	default:
		return AudioFile{}, false
	}
}

// UploadName returns the multipart filename for an encoding.
func (f AudioFile) UploadName() string {
	return "recording." + f.Extension
}

// AudioFileFromContentType resolves an uploaded part's content type the way the
// hosted transcription function does: substring matches, defaulting to webm.
func AudioFileFromContentType(contentType string) AudioFile {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return AudioFile{Extension: "mp3", ContentType: EncodingMPEG}
	case strings.Contains(ct, "wav"):
		return AudioFile{Extension: "wav", ContentType: EncodingWAV}
	case strings.Contains(ct, "ogg"):
		return AudioFile{Extension: "ogg", ContentType: EncodingOgg}
	case strings.Contains(ct, "mp4"):
		return AudioFile{Extension: "mp4", ContentType: EncodingMP4}
	default:
		return AudioFile{Extension: "webm", ContentType: EncodingWebM}
	}
}
