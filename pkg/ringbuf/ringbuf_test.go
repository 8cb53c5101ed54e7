package ringbuf

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	rb := New(16)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := rb.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	dst := make([]byte, len(data))
	n, err := rb.Read(dst)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != len(data) {
		t.Fatalf("Read: got %d bytes, want %d", n, len(data))
	}
	if !bytes.Equal(dst, data) {
		t.Fatalf("Read: got %v, want %v", dst, data)
	}

	if rb.AvailableRead() != 0 {
		t.Fatalf("expected empty ring after round-trip, got %d available", rb.AvailableRead())
	}
	if rb.readIndex() != rb.writeIndex() {
		t.Fatalf("expected read index == write index after round-trip, got R=%v W=%v", rb.readIndex(), rb.writeIndex())
	}
}

func TestWriteWrapsAndBumpsGeneration(t *testing.T) {
	rb := New(8)

	// Fill to 6 bytes, drain 6, then write 6 more - second write must wrap.
	if err := rb.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write 1 failed: %v", err)
	}
	buf := make([]byte, 6)
	if _, err := rb.Read(buf); err != nil {
		t.Fatalf("Read 1 failed: %v", err)
	}

	before := rb.writeIndex()
	if err := rb.Write([]byte{7, 8, 9, 10, 11, 12}); err != nil {
		t.Fatalf("Write 2 failed: %v", err)
	}
	after := rb.writeIndex()

	if after.Generation() == before.Generation() {
		t.Fatalf("expected generation bump after wrap: before=%v after=%v", before, after)
	}

	out := make([]byte, 6)
	n, err := rb.Read(out)
	if err != nil {
		t.Fatalf("Read 2 failed: %v", err)
	}
	if n != 6 || !bytes.Equal(out, []byte{7, 8, 9, 10, 11, 12}) {
		t.Fatalf("Read 2: got %v (n=%d), want {7,8,9,10,11,12}", out, n)
	}
}

func TestReadEmptyReturnsErrInsufficientData(t *testing.T) {
	rb := New(16)
	_, err := rb.Read(make([]byte, 4))
	if err != ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestWriteInsufficientSpace(t *testing.T) {
	rb := New(4)
	if err := rb.Write([]byte{1, 2, 3, 4, 5}); err != ErrInsufficientSpace {
		t.Fatalf("expected ErrInsufficientSpace, got %v", err)
	}
	if rb.AvailableRead() != 0 {
		t.Fatalf("a failed write must not write partial data, got %d available", rb.AvailableRead())
	}
}

func TestAvailableWriteRespectsCapacity(t *testing.T) {
	rb := New(16)
	if rb.AvailableWrite() != 16 {
		t.Fatalf("expected full capacity available, got %d", rb.AvailableWrite())
	}
	if err := rb.Write(make([]byte, 10)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if rb.AvailableWrite() != 6 {
		t.Fatalf("expected 6 bytes available after writing 10/16, got %d", rb.AvailableWrite())
	}
}

func TestGenerationIndexOrderingAcrossWrap(t *testing.T) {
	a := MakeGenerationIndex(0, 10)
	b := MakeGenerationIndex(1, 2)

	if !a.Less(b) {
		t.Fatalf("expected generation 0 offset 10 to order before generation 1 offset 2")
	}
	if a.Extended(12) >= b.Extended(12) {
		t.Fatalf("expected extended(a) < extended(b) for bufLen 12, got %d >= %d", a.Extended(12), b.Extended(12))
	}
}

func TestContiguousSpanForcesScratchStaging(t *testing.T) {
	rb := New(8)
	if err := rb.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	drain := make([]byte, 5)
	if _, err := rb.Read(drain); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if err := rb.Write([]byte{7, 8, 9, 10, 11}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	span := rb.ContiguousSpanFromRead()
	if span >= int(rb.AvailableRead()) {
		t.Fatalf("expected wrapped data to report a contiguous span shorter than total available, span=%d available=%d", span, rb.AvailableRead())
	}
}
