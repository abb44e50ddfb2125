package audioinput

import "testing"

func TestBufferAppendAndDrain(t *testing.T) {
	b := NewBuffer()
	if !b.IsEmpty() {
		t.Fatal("a fresh buffer should be empty")
	}

	b.Append([]byte{1, 2, 3, 4}, "sess-1")
	if b.IsEmpty() {
		t.Fatal("buffer should not be empty after Append")
	}

	drained := b.Drain()
	if len(drained) != 4 {
		t.Fatalf("Drain() returned %d bytes, want 4", len(drained))
	}
	if !b.IsEmpty() {
		t.Fatal("buffer should be empty after Drain")
	}
}

func TestBufferDurationSeconds(t *testing.T) {
	b := NewBuffer()
	b.Append(make([]byte, BytesPerSecond*2), "sess-1")
	if got := b.DurationSeconds(); got != 2.0 {
		t.Errorf("DurationSeconds() = %v, want 2.0", got)
	}
}

func TestBufferOverflowClears(t *testing.T) {
	b := NewBuffer()
	b.Append(make([]byte, MaxBufferBytes), "sess-1")
	b.Append(make([]byte, 10), "sess-1")

	drained := b.Drain()
	if len(drained) != 10 {
		t.Fatalf("overflow should clear prior bytes before appending, got %d bytes, want 10", len(drained))
	}
}
