// Package pcm provides the small audio plumbing shared by the speech
// adapters and the file transcription clients: sample format conversion,
// linear resampling and WAV container synthesis.
package pcm

import "bytes"

// Float32ToInt16 converts float32 samples in [-1, 1] to int16, clamping
// out-of-range values.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// Int16ToBytes serializes int16 samples as little-endian PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToInt16 parses little-endian PCM bytes into int16 samples. A
// trailing odd byte is dropped.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}

// Float32ToPCM16 converts float32 samples straight to little-endian
// 16-bit PCM bytes.
func Float32ToPCM16(samples []float32) []byte {
	return Int16ToBytes(Float32ToInt16(samples))
}

// Resample converts samples between sample rates using linear
// interpolation. It returns the input unchanged when the rates match.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	outputLen := int(float64(len(samples)) / ratio)
	output := make([]int16, outputLen)

	for i := range output {
		srcIndex := float64(i) * ratio
		srcIndexInt := int(srcIndex)
		frac := srcIndex - float64(srcIndexInt)

		if srcIndexInt+1 < len(samples) {
			output[i] = int16(float64(samples[srcIndexInt])*(1-frac) + float64(samples[srcIndexInt+1])*frac)
		} else if srcIndexInt < len(samples) {
			output[i] = samples[srcIndexInt]
		}
	}

	return output
}

// ResampleFloat32 is Resample for float32 samples.
func ResampleFloat32(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	outputLen := int(float64(len(samples)) / ratio)
	output := make([]float32, outputLen)

	for i := range output {
		srcIndex := float64(i) * ratio
		srcIndexInt := int(srcIndex)
		frac := srcIndex - float64(srcIndexInt)

		if srcIndexInt+1 < len(samples) {
			output[i] = float32(float64(samples[srcIndexInt])*(1-frac) + float64(samples[srcIndexInt+1])*frac)
		} else if srcIndexInt < len(samples) {
			output[i] = samples[srcIndexInt]
		}
	}

	return output
}

// StereoToMono downmixes interleaved stereo samples by averaging channels.
func StereoToMono(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		left := int32(samples[i*2])
		right := int32(samples[i*2+1])
		mono[i] = int16((left + right) / 2)
	}
	return mono
}

// EncodeWAV wraps raw little-endian 16-bit mono PCM in a canonical
// 44-byte WAV header.
func EncodeWAV(pcmData []byte, sampleRate int) []byte {
	dataSize := len(pcmData)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataSize)) // File size - 8
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)                   // Chunk size
	writeUint16LE(buf, 1)                    // Audio format (PCM)
	writeUint16LE(buf, 1)                    // Num channels (mono)
	writeUint32LE(buf, uint32(sampleRate))   // Sample rate
	writeUint32LE(buf, uint32(sampleRate*2)) // Byte rate
	writeUint16LE(buf, 2)                    // Block align
	writeUint16LE(buf, 16)                   // Bits per sample

	// data chunk
	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataSize))
	buf.Write(pcmData)

	return buf.Bytes()
}

// EncodeWAVFloat32 converts float32 samples to 16-bit PCM and wraps them
// in a WAV container.
func EncodeWAVFloat32(samples []float32, sampleRate int) []byte {
	return EncodeWAV(Float32ToPCM16(samples), sampleRate)
}

func writeUint16LE(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
}

func writeUint32LE(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}
