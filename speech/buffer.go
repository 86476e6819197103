package speech

import "sync"

// DefaultPreBufferBytes bounds the audio held while a transport
// handshake is still in flight: 10 seconds of 16kHz mono 16-bit PCM.
const DefaultPreBufferBytes = 16000 * 2 * 10

// PreBuffer holds already-encoded audio chunks captured before a
// transport is ready to accept them. It is bounded by a byte budget;
// when full, the oldest chunks are discarded so a slow connection never
// grows memory without limit. Chunks drain in arrival order.
type PreBuffer struct {
	mu       sync.Mutex
	chunks   [][]byte
	bytes    int
	maxBytes int
}

// NewPreBuffer creates a pre-buffer with the given byte budget. A
// non-positive budget selects DefaultPreBufferBytes.
func NewPreBuffer(maxBytes int) *PreBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultPreBufferBytes
	}
	return &PreBuffer{maxBytes: maxBytes}
}

// Push appends a chunk, evicting the oldest chunks if the budget would
// be exceeded.
func (b *PreBuffer) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	copied := append([]byte(nil), chunk...)

	b.mu.Lock()
	b.chunks = append(b.chunks, copied)
	b.bytes += len(copied)
	for b.bytes > b.maxBytes && len(b.chunks) > 0 {
		b.bytes -= len(b.chunks[0])
		b.chunks[0] = nil
		b.chunks = b.chunks[1:]
	}
	b.mu.Unlock()
}

// Drain returns all buffered chunks in order and empties the buffer.
func (b *PreBuffer) Drain() [][]byte {
	b.mu.Lock()
	chunks := b.chunks
	b.chunks = nil
	b.bytes = 0
	b.mu.Unlock()
	return chunks
}

// Len returns the number of buffered chunks.
func (b *PreBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Bytes returns the buffered payload size.
func (b *PreBuffer) Bytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// SampleBuffer accumulates float32 samples for the polling adapters,
// which periodically re-transcribe everything recorded so far.
type SampleBuffer struct {
	mu      sync.Mutex
	samples []float32
	rate    int
}

// NewSampleBuffer creates a buffer for samples at the given rate.
func NewSampleBuffer(sampleRate int) *SampleBuffer {
	return &SampleBuffer{
		samples: make([]float32, 0, sampleRate*30),
		rate:    sampleRate,
	}
}

// Append adds samples to the rolling recording.
func (b *SampleBuffer) Append(samples []float32) {
	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	b.mu.Unlock()
}

// Snapshot returns a copy of everything recorded so far.
func (b *SampleBuffer) Snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns the buffered audio length in milliseconds.
func (b *SampleBuffer) Duration() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rate == 0 {
		return 0
	}
	return int64(float64(len(b.samples)) / float64(b.rate) * 1000)
}

// Clear empties the buffer.
func (b *SampleBuffer) Clear() {
	b.mu.Lock()
	b.samples = b.samples[:0]
	b.mu.Unlock()
}
