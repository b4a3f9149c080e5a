package gzipenc

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestEncoder_BelowThresholdPassesThrough(t *testing.T) {
	e := New()
	input := bytes.Repeat([]byte("A"), CompressThreshold)

	out, compressed := e.Compress(input)
	if compressed {
		t.Fatal("expected no compression at exactly the threshold")
	}
	if !bytes.Equal(out, input) {
		t.Fatal("expected passthrough bytes to be unchanged")
	}
}

func TestEncoder_AboveThresholdCompresses(t *testing.T) {
	e := New()
	input := bytes.Repeat([]byte("A"), CompressThreshold+1)

	out, compressed := e.Compress(input)
	if !compressed {
		t.Fatal("expected compression above the threshold")
	}
	if len(out) >= len(input) {
		t.Fatalf("expected compressed output shorter than %d, got %d", len(input), len(out))
	}

	zr, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid gzip: %v", err)
	}
	defer zr.Close()
	roundTripped, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("failed to read gzip stream: %v", err)
	}
	if !bytes.Equal(roundTripped, input) {
		t.Fatal("round-tripped bytes differ from input")
	}
}

func TestEncoder_ReusableAcrossCalls(t *testing.T) {
	e := New()
	input := bytes.Repeat([]byte("B"), CompressThreshold+100)

	for i := 0; i < 3; i++ {
		out, compressed := e.Compress(input)
		if !compressed {
			t.Fatalf("call %d: expected compression", i)
		}
		zr, err := gzip.NewReader(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("call %d: invalid gzip stream: %v", i, err)
		}
		zr.Close()
	}
}
