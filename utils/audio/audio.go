// Package audio sniffs the container format of captured audio so a request
// can be routed to the transcription provider with the right file extension.
// It never decodes or transcodes payloads.
package audio

import "bytes"

// Format identifies an audio container recognized from magic bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatWAV
	FormatWebM
	FormatMP4
)

func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatWAV:
		return "wav"
	case FormatWebM:
		return "webm"
	case FormatMP4:
		return "mp4"
	default:
		return "unknown"
	}
}

// Extension returns the file extension used when handing the payload to a
// provider. Unrecognized payloads default to webm, the usual browser
// MediaRecorder container.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return "webm"
	}
	return f.String()
}

// DetectFormat inspects the binary signature of data.
//
//	WAV:  "RIFF" .... "WAVE"
//	MP3:  "ID3" tag or an MPEG frame sync (0xFF 0xEx)
//	WebM: EBML header 0x1A 0x45 0xDF 0xA3
//	MP4:  "ftyp" box at offset 4
func DetectFormat(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")) {
		return FormatWAV
	}
	if bytes.HasPrefix(data, []byte("ID3")) {
		return FormatMP3
	}
	if data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}
	if bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		return FormatWebM
	}
	if len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")) {
		return FormatMP4
	}
	return FormatUnknown
}
