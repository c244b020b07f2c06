package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeEngine struct {
	mu       sync.Mutex
	cameras  []Camera
	camErr   error
	startErr error
	track    Track

	ch      chan Detection
	open    int
	maxOpen int
	starts  []Source
	stops   int
	clears  int
	cfg     EngineConfig
}

func (e *fakeEngine) Cameras(context.Context) ([]Camera, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cameras, e.camErr
}

func (e *fakeEngine) Start(_ context.Context, src Source, cfg EngineConfig) (<-chan Detection, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	e.starts = append(e.starts, src)
	e.cfg = cfg
	e.ch = make(chan Detection, 16)
	e.open++
	if e.open > e.maxOpen {
		e.maxOpen = e.open
	}
	return e.ch, nil
}

func (e *fakeEngine) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	if e.ch != nil {
		close(e.ch)
		e.ch = nil
		e.open--
	}
	return nil
}

func (e *fakeEngine) Clear() {
	e.mu.Lock()
	e.clears++
	e.mu.Unlock()
}

func (e *fakeEngine) Track() Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch == nil {
		return nil
	}
	return e.track
}

// emit pushes a synthetic decode; it is dropped when the engine is stopped.
func (e *fakeEngine) emit(text string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ch != nil {
		e.ch <- Detection{Text: text, At: at}
	}
}

func (e *fakeEngine) openHandles() (open, maxOpen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open, e.maxOpen
}

type fakeTrack struct {
	mu       sync.Mutex
	caps     Capabilities
	capsErr  error
	applyErr error
	torchErr error
	applied  []Constraints
	torch    []bool
}

func (t *fakeTrack) Capabilities(context.Context) (Capabilities, error) {
	return t.caps, t.capsErr
}

func (t *fakeTrack) ApplyConstraints(_ context.Context, c Constraints) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = append(t.applied, c)
	return t.applyErr
}

func (t *fakeTrack) appliedConstraints() []Constraints {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Constraints(nil), t.applied...)
}

// torchTrack adds a dedicated torch control to fakeTrack.
type torchTrack struct {
	*fakeTrack
}

func (t torchTrack) SetTorch(_ context.Context, on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.torch = append(t.torch, on)
	return t.torchErr
}

type fakeLock struct {
	mu      sync.Mutex
	held    bool
	busy    bool
	err     error
	unlocks int
}

func (l *fakeLock) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.busy || l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.unlocks++
	return nil
}

type countingFeedback struct {
	mu    sync.Mutex
	count int
}

func (f *countingFeedback) Vibrate(time.Duration) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
}

var errBoom = errors.New("boom")
