package netbuf

import (
	"bytes"
	"testing"
)

func TestPacketFraming(t *testing.T) {
	b := New()
	b.Append([]byte{0x03, 0x00, 0x00, 0x00, 0x05})

	head, ok := b.Peek(4)
	if !ok || !bytes.Equal(head, []byte{0x03, 0x00, 0x00, 0x00}) {
		t.Fatalf("peek(4) = %x, %v", head, ok)
	}
	if b.Len() != 5 {
		t.Fatalf("peek must not consume, len = %d", b.Len())
	}

	b.Append([]byte{0x00, 0x00, 0xff})

	first, ok := b.Pop(4)
	if !ok || !bytes.Equal(first, []byte{0x03, 0x00, 0x00, 0x00}) {
		t.Fatalf("pop(4) #1 = %x, %v", first, ok)
	}
	second, ok := b.Pop(4)
	if !ok || !bytes.Equal(second, []byte{0x05, 0x00, 0x00, 0xff}) {
		t.Fatalf("pop(4) #2 = %x, %v", second, ok)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer, len = %d", b.Len())
	}
}

func TestPeekInsufficientData(t *testing.T) {
	b := New()
	b.Append([]byte{0x01, 0x02})
	if _, ok := b.Peek(3); ok {
		t.Fatal("peek(3) should fail with only 2 bytes buffered")
	}
	if _, ok := b.Pop(3); ok {
		t.Fatal("pop(3) should fail with only 2 bytes buffered")
	}
	// failed pop must not consume anything
	if b.Len() != 2 {
		t.Fatalf("failed pop must not consume, len = %d", b.Len())
	}
}

func TestPopAllZeroCopy(t *testing.T) {
	b := New()
	chunk := []byte{1, 2, 3, 4}
	b.Append(chunk)
	out, ok := b.Pop(4)
	if !ok {
		t.Fatal("pop failed")
	}
	// same backing array identity (zero-copy steal)
	if &out[0] != &chunk[0] {
		t.Fatal("expected Pop's exact-head fast path to return the original chunk")
	}
}

func TestPeekAcrossChunkBoundary(t *testing.T) {
	b := New()
	b.Append([]byte{1, 2})
	b.Append([]byte{3, 4, 5})
	out, ok := b.Peek(4)
	if !ok || !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("peek across chunks = %x, %v", out, ok)
	}
	popped, ok := b.Pop(4)
	if !ok || !bytes.Equal(popped, []byte{1, 2, 3, 4}) {
		t.Fatalf("pop across chunks = %x, %v", popped, ok)
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 byte remaining, got %d", b.Len())
	}
}
