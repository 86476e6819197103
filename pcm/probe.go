package pcm

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// WAVInfo describes a probed WAV payload.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ProbeWAV parses the header of a WAV payload. It fails on anything
// that is not a well-formed RIFF/WAVE file.
func ProbeWAV(data []byte) (WAVInfo, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return WAVInfo{}, fmt.Errorf("parse wav header: %w", err)
	}
	if !dec.WasPCMAccessed() && dec.SampleRate == 0 {
		return WAVInfo{}, fmt.Errorf("not a wav payload")
	}

	dur, err := dec.Duration()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("wav duration: %w", err)
	}
	return WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur,
	}, nil
}
