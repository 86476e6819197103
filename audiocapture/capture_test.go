package audiocapture

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestRingBuffer_ReadReturnsMostRecent(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]float32{1, 2, 3})

	got := rb.Read(2)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Read(2) = %v, want [2 3]", got)
	}
}

func TestRingBuffer_Wraparound(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]float32{1, 2, 3, 4, 5, 6})

	got := rb.Read(4)
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Read(4) = %v, want %v", got, want)
		}
	}
}

func TestRingBuffer_ReadMoreThanFilled(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]float32{1, 2})

	if got := rb.Read(5); len(got) != 2 {
		t.Errorf("Read(5) returned %d samples, want 2", len(got))
	}
	if got := NewRingBuffer(8).Read(3); got != nil {
		t.Errorf("Read on empty buffer = %v, want nil", got)
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]float32{1, 2, 3})
	rb.Clear()
	if rb.Len() != 0 {
		t.Errorf("Len() after clear = %d, want 0", rb.Len())
	}
}

func TestBytesToFloat32(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(-1))

	got := bytesToFloat32(data, 2)
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1 {
		t.Errorf("bytesToFloat32 = %v, want [0.5 -1]", got)
	}

	// A short buffer truncates rather than panics.
	if got := bytesToFloat32(data[:6], 2); len(got) != 1 {
		t.Errorf("truncated input yielded %d samples, want 1", len(got))
	}
}
