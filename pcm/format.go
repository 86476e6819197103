package pcm

import "bytes"

// Format is a detected audio container format.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatM4A     Format = "m4a"
	FormatOGG     Format = "ogg"
	FormatFLAC    Format = "flac"
	FormatWebM    Format = "webm"
	FormatUnknown Format = ""
)

// DetectFormat sniffs the container format from the leading bytes of an
// audio file. Unknown data yields FormatUnknown.
func DetectFormat(data []byte) Format {
	if len(data) < 12 {
		return FormatUnknown
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	case bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatM4A
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	}
	return FormatUnknown
}

// Extension returns the filename extension for the format, defaulting to
// "wav" for unknown data so multipart uploads always carry a name the
// backend accepts.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return "wav"
	}
	return string(f)
}
