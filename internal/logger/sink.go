package logger

import (
	"fmt"
	"log/slog"
)

// NonBlockingSink adapts a *slog.Logger to ports.Logger with a bounded
// buffer and a single drain goroutine, so a caller on the dispatcher loop
// (§5, §7: "logging must not block the scheduler") never waits on a slow
// handler (a stalled file write, a full terminal pipe). A full buffer
// drops the line rather than blocking — consistent with how DROPABLE
// traffic is handled elsewhere in the pool (§3).
type NonBlockingSink struct {
	logger *slog.Logger
	lines  chan string
	done   chan struct{}
}

// NewNonBlockingSink starts the drain goroutine and returns a ready sink.
// Close must be called to stop it and flush any buffered lines.
func NewNonBlockingSink(logger *slog.Logger, bufferSize int) *NonBlockingSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	s := &NonBlockingSink{
		logger: logger,
		lines:  make(chan string, bufferSize),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *NonBlockingSink) drain() {
	defer close(s.done)
	for line := range s.lines {
		s.logger.Info(line)
	}
}

// Logf implements ports.Logger. It never blocks: when the buffer is full
// the line is dropped rather than stalling the caller.
func (s *NonBlockingSink) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	select {
	case s.lines <- line:
	default:
	}
}

// Close stops accepting new lines and waits for the buffered ones to drain.
func (s *NonBlockingSink) Close() {
	close(s.lines)
	<-s.done
}
