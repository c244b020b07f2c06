package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"
)

func newTestSession(e *fakeEngine, opts Options) *Session {
	opts.Engine = e
	if opts.Viewport == nil {
		opts.Viewport = FixedViewport{Width: 1280, Height: 720}
	}
	if opts.NegotiateAfter == nil {
		opts.NegotiateAfter = []time.Duration{}
	}
	s := NewSession(opts)
	s.sleepFn = func(context.Context, time.Duration) error { return nil }
	return s
}

func waitScan(t *testing.T, ch <-chan Scan) Scan {
	t.Helper()
	select {
	case sc := <-ch:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scan")
	}
	return Scan{}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state: want %s, got %s", want, s.State())
}

func TestSessionStartStop(t *testing.T) {
	e := &fakeEngine{}
	s := newTestSession(e, Options{})
	ctx := context.Background()

	if err := s.Start(ctx, FacingEnvironment); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("want active, got %s", s.State())
	}
	if open, _ := e.openHandles(); open != 1 {
		t.Fatalf("want 1 open handle, got %d", open)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("want idle, got %s", s.State())
	}
	if open, _ := e.openHandles(); open != 0 {
		t.Fatalf("handle leaked: %d open", open)
	}

	stops := e.stops
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if e.stops != stops {
		t.Fatal("stop on an idle session must not touch the engine")
	}
}

func TestSessionStartWhileActiveKeepsOneHandle(t *testing.T) {
	e := &fakeEngine{}
	s := newTestSession(e, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Start(ctx, FacingEnvironment); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	open, maxOpen := e.openHandles()
	if open != 1 || maxOpen != 1 {
		t.Fatalf("want exactly one handle, got open=%d max=%d", open, maxOpen)
	}
	if e.clears < 3 {
		t.Fatalf("residual engine state must be cleared before each start, got %d clears", e.clears)
	}
}

func TestSessionPrefersRearCamera(t *testing.T) {
	e := &fakeEngine{cameras: []Camera{
		{ID: "cam-front", Label: "Integrated Front Camera"},
		{ID: "cam-rear", Label: "USB Rear Camera"},
	}}
	s := newTestSession(e, Options{})
	ctx := context.Background()

	if err := s.Start(ctx, FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	if got := e.starts[0]; got.CameraID != "cam-rear" {
		t.Fatalf("want rear camera, got %+v", got)
	}

	if err := s.Start(ctx, FacingUser); err != nil {
		t.Fatal(err)
	}
	if got := e.starts[1]; got.CameraID != "" || got.Facing != FacingUser {
		t.Fatalf("user facing must not pick the rear label, got %+v", got)
	}
}

func TestSessionCameraListFailureUsesFacing(t *testing.T) {
	e := &fakeEngine{camErr: errBoom}
	s := newTestSession(e, Options{})
	if err := s.Start(context.Background(), FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	if got := e.starts[0]; got.CameraID != "" || got.Facing != FacingEnvironment {
		t.Fatalf("want facing fallback, got %+v", got)
	}
}

func TestSessionPinnedCamera(t *testing.T) {
	e := &fakeEngine{cameras: []Camera{{ID: "rear", Label: "back"}}}
	s := newTestSession(e, Options{CameraID: "/dev/video4"})
	if err := s.Start(context.Background(), FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	if got := e.starts[0].CameraID; got != "/dev/video4" {
		t.Fatalf("want pinned camera, got %q", got)
	}
}

func TestSessionStartFailures(t *testing.T) {
	tests := []struct {
		err  error
		kind AcquisitionKind
	}{
		{err: fmt.Errorf("open: %w", ErrPermissionDenied), kind: AcquisitionPermissionDenied},
		{err: fs.ErrPermission, kind: AcquisitionPermissionDenied},
		{err: fmt.Errorf("probe: %w", ErrDeviceNotFound), kind: AcquisitionDeviceNotFound},
		{err: fmt.Errorf("probe: %w", ErrDeviceBusy), kind: AcquisitionDeviceBusy},
		{err: errBoom, kind: AcquisitionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			lock := &fakeLock{}
			e := &fakeEngine{startErr: tt.err}
			s := newTestSession(e, Options{Lock: lock})

			err := s.Start(context.Background(), FacingEnvironment)
			var acq *AcquisitionError
			if !errors.As(err, &acq) {
				t.Fatalf("want *AcquisitionError, got %v", err)
			}
			if acq.Kind != tt.kind {
				t.Fatalf("want %s, got %s", tt.kind, acq.Kind)
			}
			if acq.Error() == "" {
				t.Fatal("missing operator message")
			}
			if s.State() != StateIdle {
				t.Fatalf("want idle after failure, got %s", s.State())
			}
			if lock.held {
				t.Fatal("capture lock not released after failure")
			}
		})
	}
}

func TestSessionLockHeldElsewhere(t *testing.T) {
	e := &fakeEngine{}
	s := newTestSession(e, Options{Lock: &fakeLock{busy: true}})
	err := s.Start(context.Background(), FacingEnvironment)
	var acq *AcquisitionError
	if !errors.As(err, &acq) || acq.Kind != AcquisitionDeviceBusy {
		t.Fatalf("want device busy, got %v", err)
	}
	if len(e.starts) != 0 {
		t.Fatal("engine started although the device lock is held")
	}
}

func TestSessionMissingViewport(t *testing.T) {
	e := &fakeEngine{}
	s := NewSession(Options{Engine: e})
	var states []State
	s.OnState(func(st State) { states = append(states, st) })

	err := s.Start(context.Background(), FacingEnvironment)
	if !errors.Is(err, ErrViewportMissing) {
		t.Fatalf("want ErrViewportMissing, got %v", err)
	}
	var acq *AcquisitionError
	if !errors.As(err, &acq) {
		t.Fatalf("want *AcquisitionError, got %T", err)
	}
	if acq.Kind != AcquisitionUnknown {
		t.Fatalf("kind: want %s, got %s", AcquisitionUnknown, acq.Kind)
	}
	if s.State() != StateIdle {
		t.Fatalf("want idle, got %s", s.State())
	}
	if len(states) == 0 || states[len(states)-1] != StateIdle {
		t.Fatalf("observers not told about idle: %v", states)
	}
	if len(e.starts) != 0 {
		t.Fatal("engine started without a viewport")
	}
}

func TestSessionSizesScanBoxFromViewport(t *testing.T) {
	tests := []struct {
		view FixedViewport
		want Region
	}{
		{view: FixedViewport{Width: 1280, Height: 720}, want: Region{Width: 1177, Height: 540}},
		{view: FixedViewport{Width: 200, Height: 100}, want: Region{Width: 280, Height: 180}},
		{view: FixedViewport{}, want: Region{}},
	}
	for _, tt := range tests {
		e := &fakeEngine{}
		s := newTestSession(e, Options{Viewport: tt.view})
		if err := s.Start(context.Background(), FacingEnvironment); err != nil {
			t.Fatalf("start: %v", err)
		}
		e.mu.Lock()
		cfg := e.cfg
		e.mu.Unlock()
		if cfg.View != (Region{Width: tt.view.Width, Height: tt.view.Height}) {
			t.Fatalf("view: want %+v, got %+v", tt.view, cfg.View)
		}
		if cfg.ScanBox != tt.want {
			t.Fatalf("scan box for %+v: want %+v, got %+v", tt.view, tt.want, cfg.ScanBox)
		}
		if cfg.AspectRatio != 1.5 {
			t.Fatalf("aspect ratio: want 1.5, got %v", cfg.AspectRatio)
		}
		s.Stop(context.Background())
	}
}

func TestSessionDebouncesDuplicates(t *testing.T) {
	e := &fakeEngine{}
	fb := &countingFeedback{}
	s := newTestSession(e, Options{Feedback: fb})

	raw := make(chan Detection, 16)
	scans := make(chan Scan, 16)
	s.OnDetect(func(d Detection) { raw <- d })
	s.OnScan(func(sc Scan) { scans <- sc })

	ctx := context.Background()
	if err := s.Start(ctx, FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e.emit("  REG100 ", now)
	e.emit("  REG100 ", now.Add(100*time.Millisecond))
	e.emit("  REG100 ", now.Add(200*time.Millisecond))

	if sc := waitScan(t, scans); sc.Text != "REG100" {
		t.Fatalf("want trimmed text, got %q", sc.Text)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-raw:
		case <-time.After(2 * time.Second):
			t.Fatalf("raw detection %d not emitted", i)
		}
	}
	select {
	case sc := <-scans:
		t.Fatalf("duplicate scan passed the debouncer: %+v", sc)
	default:
	}
	fb.mu.Lock()
	if fb.count != 1 {
		t.Fatalf("want one feedback pulse, got %d", fb.count)
	}
	fb.mu.Unlock()
	if s.LastScanned() != "REG100" {
		t.Fatalf("last scanned: %q", s.LastScanned())
	}

	// A new session starts with a fresh debounce window.
	if err := s.Start(ctx, FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	e.emit("  REG100 ", now.Add(300*time.Millisecond))
	if sc := waitScan(t, scans); sc.Text != "REG100" {
		t.Fatalf("want scan after restart, got %q", sc.Text)
	}
}

func TestSessionStopOnScan(t *testing.T) {
	e := &fakeEngine{}
	s := newTestSession(e, Options{StopOnScan: true})
	scans := make(chan Scan, 4)
	s.OnScan(func(sc Scan) { scans <- sc })

	if err := s.Start(context.Background(), FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	e.emit("REG200", time.Now())
	waitScan(t, scans)
	waitState(t, s, StateIdle)
	if open, _ := e.openHandles(); open != 0 {
		t.Fatalf("handle left open after scan: %d", open)
	}
}

func TestSessionSwitchFacing(t *testing.T) {
	e := &fakeEngine{}
	s := newTestSession(e, Options{})
	var slept []time.Duration
	s.sleepFn = func(_ context.Context, d time.Duration) error {
		if open, _ := e.openHandles(); open != 0 {
			t.Errorf("device still open during settle delay")
		}
		slept = append(slept, d)
		return nil
	}
	ctx := context.Background()

	if err := s.Start(ctx, FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	if err := s.SwitchFacing(ctx); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive || s.Facing() != FacingUser {
		t.Fatalf("want active user session, got %s/%s", s.State(), s.Facing())
	}
	if len(slept) != 1 || slept[0] != DefaultSettleDelay {
		t.Fatalf("want one %v settle delay, got %v", DefaultSettleDelay, slept)
	}
	if got := e.starts[len(e.starts)-1].Facing; got != FacingUser {
		t.Fatalf("restart facing: want user, got %s", got)
	}
	if _, maxOpen := e.openHandles(); maxOpen != 1 {
		t.Fatalf("switch opened concurrent handles: %d", maxOpen)
	}
}

func TestSessionSwitchFacingWhileIdle(t *testing.T) {
	e := &fakeEngine{}
	s := newTestSession(e, Options{})
	if err := s.SwitchFacing(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Facing() != FacingUser {
		t.Fatalf("want user facing, got %s", s.Facing())
	}
	if len(e.starts) != 0 || s.State() != StateIdle {
		t.Fatal("idle switch must not start the camera")
	}
}

func TestSessionSwitchFacingCancelledDuringSettle(t *testing.T) {
	e := &fakeEngine{}
	s := newTestSession(e, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	s.sleepFn = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	if err := s.Start(ctx, FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	if err := s.SwitchFacing(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("want idle, got %s", s.State())
	}
}

func TestSessionCapabilitiesResetOnStop(t *testing.T) {
	track := &fakeTrack{caps: Capabilities{Zoom: &Range{Min: 1, Max: 4, Step: 0.5}, Torch: true}}
	e := &fakeEngine{track: track}
	s := newTestSession(e, Options{})
	ctx := context.Background()

	var seen []Snapshot
	s.OnCapabilities(func(sn Snapshot) { seen = append(seen, sn) })

	if err := s.Start(ctx, FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	snap := s.Negotiate(ctx)
	if !snap.ZoomSupported || snap.ZoomLevel != 2 || !snap.TorchSupported {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if len(seen) != 1 {
		t.Fatalf("want one capability notification, got %d", len(seen))
	}
	s.Negotiate(ctx)
	if len(seen) != 1 {
		t.Fatal("unchanged snapshot must not be reported again")
	}

	if got := s.SetZoom(ctx, 9); got != 4 {
		t.Fatalf("zoom clamp: want 4, got %v", got)
	}
	if !s.ToggleTorch(ctx) || !s.TorchOn() {
		t.Fatal("torch should be on")
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if s.TorchOn() {
		t.Fatal("torch flag must reset on stop")
	}
	if got := s.Snapshot(); got != DefaultSnapshot() {
		t.Fatalf("snapshot must reset on stop, got %+v", got)
	}
}

func TestSessionNegotiatesAfterDelay(t *testing.T) {
	track := &fakeTrack{caps: Capabilities{Torch: true}}
	e := &fakeEngine{track: track}
	s := newTestSession(e, Options{NegotiateAfter: []time.Duration{time.Millisecond}})
	done := make(chan Snapshot, 1)
	s.OnCapabilities(func(sn Snapshot) {
		select {
		case done <- sn:
		default:
		}
	})
	if err := s.Start(context.Background(), FacingEnvironment); err != nil {
		t.Fatal(err)
	}
	select {
	case sn := <-done:
		if !sn.TorchSupported {
			t.Fatalf("want torch support, got %+v", sn)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("negotiation did not run")
	}
}

func TestSessionTorchIdle(t *testing.T) {
	s := newTestSession(&fakeEngine{}, Options{})
	if s.SetTorch(context.Background(), true) {
		t.Fatal("torch cannot be on without a session")
	}
	if got := s.SetZoom(context.Background(), 2); got != 1 {
		t.Fatalf("idle zoom: want 1, got %v", got)
	}
}
