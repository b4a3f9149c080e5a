package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNonBlockingSink_DeliversLines(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	s := NewNonBlockingSink(l, 4)

	s.Logf("endpoint %s cooling down", "http://a")
	s.Close()

	if !strings.Contains(buf.String(), "endpoint http://a cooling down") {
		t.Fatalf("expected line to be logged, got %q", buf.String())
	}
}

func TestNonBlockingSink_DropsRatherThanBlocksWhenFull(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	s := NewNonBlockingSink(l, 1)

	done := make(chan struct{})
	go func() {
		// Many more lines than the buffer can hold; none of these calls
		// may block regardless of drain speed.
		for i := 0; i < 1000; i++ {
			s.Logf("line %d", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Logf blocked instead of dropping under backpressure")
	}
	s.Close()
}
