package kiosk

import (
	"io"
	"sync"
	"time"
)

// Bell is capture feedback for terminals: it rings the bell on every
// accepted scan.
type Bell struct {
	W io.Writer
}

func (b Bell) Vibrate(time.Duration) {
	if b.W != nil {
		io.WriteString(b.W, "\a")
	}
}

// syncWriter serializes writes from the console loop and capture callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
