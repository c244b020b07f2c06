// Package wedge is a capture engine for keyboard-wedge barcode scanners:
// handheld USB scanners that type the decoded code followed by Enter.
package wedge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/acmchapter/gatepass/pkg/capture"
)

const (
	CameraID    = "wedge"
	cameraLabel = "Keyboard wedge scanner"
	bufferSize  = 32
)

// Engine turns typed lines into detections while started.
type Engine struct {
	nowFn func() time.Time

	mu  sync.Mutex
	out chan capture.Detection
}

func New() *Engine {
	return &Engine{nowFn: time.Now}
}

func (e *Engine) Cameras(context.Context) ([]capture.Camera, error) {
	return []capture.Camera{{ID: CameraID, Label: cameraLabel}}, nil
}

func (e *Engine) Start(_ context.Context, src capture.Source, _ capture.EngineConfig) (<-chan capture.Detection, error) {
	if src.CameraID != "" && src.CameraID != CameraID {
		return nil, fmt.Errorf("wedge engine has no camera %q: %w", src.CameraID, capture.ErrDeviceNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out != nil {
		return nil, capture.ErrDeviceBusy
	}
	e.out = make(chan capture.Detection, bufferSize)
	return e.out, nil
}

func (e *Engine) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out != nil {
		close(e.out)
		e.out = nil
	}
	return nil
}

func (e *Engine) Clear() {}

// Track returns nil: a wedge scanner has no controllable camera.
func (e *Engine) Track() capture.Track { return nil }

// Running reports whether the engine currently accepts input.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out != nil
}

// Feed delivers one typed line. It reports false when the engine is stopped
// and the line was not consumed.
func (e *Engine) Feed(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out == nil {
		return false
	}
	select {
	case e.out <- capture.Detection{Text: line, At: e.nowFn()}:
	default:
		// Consumer is behind, drop the line.
	}
	return true
}

// ReadFrom feeds every line from r until EOF or ctx is done. Lines read
// while the engine is stopped are dropped.
func (e *Engine) ReadFrom(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.Feed(scanner.Text())
	}
	return scanner.Err()
}
