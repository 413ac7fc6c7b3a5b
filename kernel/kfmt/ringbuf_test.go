package kfmt

import (
	"io"
	"testing"
)

func TestRingBufferWrites(t *testing.T) {
	var rb ringBuffer

	data := []byte("the quick brown fox jumped over the lazy dog")
	n, err := rb.Write(data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Fatalf("expected Write to return %d; got %d", len(data), n)
	}

	buf := make([]byte, len(data))
	n, err = rb.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != string(data) {
		t.Fatalf("expected to read back %q; got %q", string(data), got)
	}

	// A drained buffer should report EOF.
	if _, err = rb.Read(buf); err != io.EOF {
		t.Fatalf("expected to get io.EOF; got %v", err)
	}
}

func TestRingBufferOverwritesOldestData(t *testing.T) {
	var rb ringBuffer

	// Fill the buffer completely and then write one more byte so the
	// write index wraps around and the oldest byte gets dropped.
	for i := 0; i < bootLogBufferSize; i++ {
		rb.Write([]byte{byte('a' + (i % 16))})
	}
	rb.Write([]byte{'!'})

	buf := make([]byte, 2*bootLogBufferSize)
	var total int
	for {
		n, err := rb.Read(buf[total:])
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	// One byte is sacrificed to distinguish a full buffer from an empty
	// one so we expect to read back size-1 bytes ending in '!'.
	if exp := bootLogBufferSize - 1; total != exp {
		t.Fatalf("expected to read back %d bytes; got %d", exp, total)
	}
	if buf[total-1] != '!' {
		t.Fatalf("expected last byte to be '!'; got %q", buf[total-1])
	}
}
