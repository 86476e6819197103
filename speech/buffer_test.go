package speech

import (
	"bytes"
	"testing"
)

func TestPreBuffer_DrainPreservesOrder(t *testing.T) {
	b := NewPreBuffer(1024)

	b.Push([]byte("one"))
	b.Push([]byte("two"))
	b.Push([]byte("three"))

	chunks := b.Drain()
	want := []string{"one", "two", "three"}
	if len(chunks) != len(want) {
		t.Fatalf("Drain() returned %d chunks, want %d", len(chunks), len(want))
	}
	for i, w := range want {
		if string(chunks[i]) != w {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], w)
		}
	}

	if b.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", b.Len())
	}
}

func TestPreBuffer_EvictsOldestOverBudget(t *testing.T) {
	b := NewPreBuffer(10)

	b.Push([]byte("aaaa")) // 4 bytes
	b.Push([]byte("bbbb")) // 8 bytes
	b.Push([]byte("cccc")) // 12 bytes: evicts "aaaa"

	if b.Bytes() != 8 {
		t.Errorf("Bytes() = %d, want 8", b.Bytes())
	}

	chunks := b.Drain()
	if len(chunks) != 2 {
		t.Fatalf("Drain() returned %d chunks, want 2", len(chunks))
	}
	if string(chunks[0]) != "bbbb" || string(chunks[1]) != "cccc" {
		t.Errorf("Drain() = %q, %q; want bbbb, cccc", chunks[0], chunks[1])
	}
}

func TestPreBuffer_CopiesChunks(t *testing.T) {
	b := NewPreBuffer(1024)

	chunk := []byte("original")
	b.Push(chunk)
	copy(chunk, "mutated!")

	got := b.Drain()
	if !bytes.Equal(got[0], []byte("original")) {
		t.Errorf("stored chunk = %q, want %q (caller mutation must not leak in)", got[0], "original")
	}
}

func TestPreBuffer_IgnoresEmptyChunks(t *testing.T) {
	b := NewPreBuffer(1024)
	b.Push(nil)
	b.Push([]byte{})
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestPreBuffer_ZeroBudgetSelectsDefault(t *testing.T) {
	b := NewPreBuffer(0)
	if b.maxBytes != DefaultPreBufferBytes {
		t.Errorf("maxBytes = %d, want %d", b.maxBytes, DefaultPreBufferBytes)
	}
}

func TestSampleBuffer_AppendAndSnapshot(t *testing.T) {
	b := NewSampleBuffer(16000)

	b.Append([]float32{1, 2})
	b.Append([]float32{3})

	snap := b.Snapshot()
	if len(snap) != 3 || snap[0] != 1 || snap[2] != 3 {
		t.Errorf("Snapshot() = %v, want [1 2 3]", snap)
	}

	// Snapshot is a copy.
	snap[0] = 99
	if b.Snapshot()[0] != 1 {
		t.Error("mutating a snapshot must not affect the buffer")
	}
}

func TestSampleBuffer_Duration(t *testing.T) {
	b := NewSampleBuffer(16000)
	b.Append(make([]float32, 16000)) // one second
	if got := b.Duration(); got != 1000 {
		t.Errorf("Duration() = %dms, want 1000ms", got)
	}

	b.Clear()
	if got := b.Duration(); got != 0 {
		t.Errorf("Duration() after clear = %dms, want 0", got)
	}
}
