package capture

import "time"

// DebounceWindow is how long an identical decode is ignored.
const DebounceWindow = 3000 * time.Millisecond

// Debouncer suppresses repeated decodes of the same code. A live stream sees
// the same badge many times per second; only the first read in a window is
// let through. The zero value uses DebounceWindow.
type Debouncer struct {
	Window time.Duration

	lastText string
	lastAt   time.Time
	seen     bool
}

// NewDebouncer returns a debouncer with the standard window.
func NewDebouncer() *Debouncer {
	return &Debouncer{Window: DebounceWindow}
}

// Accept reports whether text read at now should be passed on. A suppressed
// read does not extend the window.
func (d *Debouncer) Accept(text string, now time.Time) bool {
	window := d.Window
	if window <= 0 {
		window = DebounceWindow
	}
	if d.seen && text == d.lastText && now.Sub(d.lastAt) < window {
		return false
	}
	d.lastText = text
	d.lastAt = now
	d.seen = true
	return true
}

// Reset forgets the last accepted read.
func (d *Debouncer) Reset() {
	d.lastText = ""
	d.lastAt = time.Time{}
	d.seen = false
}
