package speech

import (
	"math"
	"sync"
	"time"
)

const (
	// VADChunkSize is the fixed classification window: 4096 samples,
	// about 256ms at 16kHz.
	VADChunkSize = 4096

	// DefaultMinimumRecordingTime is how long a session must run before
	// silence may auto-stop it.
	DefaultMinimumRecordingTime = 10 * time.Second

	// DefaultSilenceDuration is how much sustained silence triggers the
	// auto-stop once the minimum recording time has elapsed.
	DefaultSilenceDuration = 3 * time.Second

	// DefaultRMSThreshold separates speech from silence for the RMS
	// detector.
	DefaultRMSThreshold = 0.01
)

// Detector classifies a fixed-size audio chunk as speech or silence.
type Detector func(chunk []float32) bool

// RMSDetector returns a Detector that reports speech when the chunk's
// root mean square exceeds threshold.
func RMSDetector(threshold float32) Detector {
	return func(chunk []float32) bool {
		return rms(chunk) > threshold
	}
}

func rms(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// AutoStopGate consumes a rolling audio buffer and raises a one-shot
// auto-stop signal after sustained silence, once the minimum recording
// time has elapsed. Adapters without server-side turn detection feed it
// from their audio callback.
type AutoStopGate struct {
	minRecording time.Duration
	silenceDur   time.Duration
	detect       Detector
	onAutoStop   func()
	now          func() time.Time // injectable for tests

	mu           sync.Mutex
	chunk        []float32
	started      bool
	fired        bool
	recordingAt  time.Time
	silenceSince time.Time // zero while speech is detected
}

// NewAutoStopGate builds a gate that calls onAutoStop exactly once per
// session. Zero durations select the defaults; a nil detector selects
// the RMS detector.
func NewAutoStopGate(minRecording, silenceDur time.Duration, detect Detector, onAutoStop func()) *AutoStopGate {
	if minRecording <= 0 {
		minRecording = DefaultMinimumRecordingTime
	}
	if silenceDur <= 0 {
		silenceDur = DefaultSilenceDuration
	}
	if detect == nil {
		detect = RMSDetector(DefaultRMSThreshold)
	}
	return &AutoStopGate{
		minRecording: minRecording,
		silenceDur:   silenceDur,
		detect:       detect,
		onAutoStop:   onAutoStop,
		now:          time.Now,
	}
}

// SetClock overrides the gate's time source. Tests only.
func (g *AutoStopGate) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// Start marks the beginning of a recording session and clears all state.
func (g *AutoStopGate) Start() {
	g.mu.Lock()
	g.started = true
	g.fired = false
	g.recordingAt = g.now()
	g.silenceSince = time.Time{}
	g.chunk = g.chunk[:0]
	g.mu.Unlock()
}

// Stop resets the gate; subsequent Append calls are ignored until the
// next Start.
func (g *AutoStopGate) Stop() {
	g.mu.Lock()
	g.started = false
	g.chunk = g.chunk[:0]
	g.mu.Unlock()
}

// Append adds captured samples and classifies every full chunk. When
// sustained silence past the configured duration is observed after the
// minimum recording time, the auto-stop callback fires exactly once.
// The callback runs on the caller's goroutine after internal state has
// been released, so it may call back into the gate.
func (g *AutoStopGate) Append(samples []float32) {
	g.mu.Lock()
	if !g.started || g.fired {
		g.mu.Unlock()
		return
	}

	g.chunk = append(g.chunk, samples...)
	fire := false
	for len(g.chunk) >= VADChunkSize {
		chunk := g.chunk[:VADChunkSize]
		isSpeech := g.detect(chunk)
		g.chunk = g.chunk[VADChunkSize:]

		now := g.now()
		if isSpeech {
			g.silenceSince = time.Time{}
			continue
		}
		// Only a speech-to-silence transition starts the clock.
		if g.silenceSince.IsZero() {
			g.silenceSince = now
			continue
		}
		if now.Sub(g.recordingAt) >= g.minRecording && now.Sub(g.silenceSince) >= g.silenceDur {
			g.fired = true
			fire = true
			break
		}
	}
	g.mu.Unlock()

	if fire && g.onAutoStop != nil {
		g.onAutoStop()
	}
}
