// Package audiocapture provides microphone capture via miniaudio.
// Captured samples are delivered as float32 in [-1, 1] through a
// callback that must not block; callers marshal the data onto their own
// execution context.
package audiocapture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrAlreadyCapturing is returned when Start is called twice.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// ErrDeviceNotFound is returned when the requested input device UID does
// not match any capture device.
var ErrDeviceNotFound = errors.New("audio input device not found")

// Config holds configuration for audio capture.
type Config struct {
	SampleRate int    // default 16000 Hz
	DeviceUID  string // "" = system default input
}

// Capture owns one microphone stream. It keeps a short rolling buffer of
// recent samples so callers can measure the ambient noise floor before a
// session starts streaming.
type Capture struct {
	mu sync.Mutex

	sampleRate int
	deviceUID  string

	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	capturing bool

	buffer  *RingBuffer
	onAudio func(samples []float32)
}

// New creates a capture instance. Call Close when done with it.
func New(cfg Config) (*Capture, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	return &Capture{
		sampleRate: cfg.SampleRate,
		deviceUID:  cfg.DeviceUID,
		ctx:        ctx,
		buffer:     NewRingBuffer(cfg.SampleRate * 2), // 2s of ambient context
	}, nil
}

// OnAudio registers the callback for captured samples. Must be set
// before Start.
func (c *Capture) OnAudio(callback func(samples []float32)) {
	c.mu.Lock()
	c.onAudio = callback
	c.mu.Unlock()
}

// SampleRate returns the configured capture rate.
func (c *Capture) SampleRate() int { return c.sampleRate }

// Start opens the input device and begins delivering samples.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyCapturing
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(c.sampleRate)

	if c.deviceUID != "" {
		id, err := c.lookupDeviceLocked(c.deviceUID)
		if err != nil {
			return err
		}
		deviceCfg.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{Data: c.onData}

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	c.device = device
	c.capturing = true
	return nil
}

// Stop ends capture. Safe to call when not capturing.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return nil
	}
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.capturing = false
	return nil
}

// IsCapturing reports whether the stream is open.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Close stops capture and releases the audio context.
func (c *Capture) Close() error {
	_ = c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit audio context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}
	return nil
}

// NoiseFloor returns the RMS of the most recent window of captured
// audio, used to derive adaptive turn-detection thresholds.
func (c *Capture) NoiseFloor() float32 {
	samples := c.buffer.Read(c.sampleRate / 2) // last 500ms
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Device describes one capture device.
type Device struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Devices enumerates available capture devices. On macOS the UID is the
// CoreAudio device UID carried in the miniaudio device ID.
func (c *Capture) Devices() ([]Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			UID:  deviceUID(info.ID),
			Name: info.Name(),
		})
	}
	return devices, nil
}

func (c *Capture) lookupDeviceLocked(uid string) (malgo.DeviceID, error) {
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("enumerate capture devices: %w", err)
	}
	for _, info := range infos {
		if deviceUID(info.ID) == uid {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, uid)
}

func deviceUID(id malgo.DeviceID) string {
	raw := id[:]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// onData is the miniaudio callback. It only converts and fans out; any
// heavier work happens on the consumer side.
func (c *Capture) onData(_, pSample []byte, frameCount uint32) {
	samples := bytesToFloat32(pSample, frameCount)

	c.buffer.Write(samples)

	c.mu.Lock()
	callback := c.onAudio
	c.mu.Unlock()

	if callback != nil {
		callback(samples)
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}

// RingBuffer is a thread-safe circular buffer for audio samples.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []float32
	writePos int
	size     int
	filled   int
}

// NewRingBuffer creates a new ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		data: make([]float32, size),
		size: size,
	}
}

// Write adds samples to the buffer.
func (rb *RingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, s := range samples {
		rb.data[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % rb.size
		if rb.filled < rb.size {
			rb.filled++
		}
	}
}

// Read returns the last n samples from the buffer.
func (rb *RingBuffer) Read(n int) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.filled {
		n = rb.filled
	}
	if n == 0 {
		return nil
	}

	result := make([]float32, n)
	startPos := (rb.writePos - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.data[(startPos+i)%rb.size]
	}
	return result
}

// Clear empties the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.filled = 0
}

// Len returns the number of samples in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.filled
}
