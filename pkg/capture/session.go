package capture

import (
	"context"
	"strings"
	"sync"
	"time"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

const (
	// DefaultSettleDelay lets the platform release the device before a
	// restart with the other camera.
	DefaultSettleDelay = 500 * time.Millisecond
	vibrateDuration    = 200 * time.Millisecond
)

// DefaultNegotiateAfter are the delays after activation at which the track
// capabilities are negotiated. Some devices report them late.
var DefaultNegotiateAfter = []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond}

// Scan is an accepted, trimmed decode.
type Scan struct {
	Text string
	At   time.Time
}

// HandleLock guards the capture device across processes.
type HandleLock interface {
	TryLock() (bool, error)
	Unlock() error
}

// Options configures a Session. Engine and Viewport are required.
type Options struct {
	Engine   Engine
	Viewport Viewport
	Feedback Feedback
	Lock     HandleLock
	// CameraID pins a device and bypasses facing-based selection.
	CameraID       string
	Config         *EngineConfig
	Negotiator     *Negotiator
	NegotiateAfter []time.Duration
	SettleDelay    time.Duration
	// StopOnScan closes the camera after the first accepted scan.
	StopOnScan bool
	Log        Logger
}

// Session owns a single capture handle and turns the engine's raw decodes
// into accepted scans.
type Session struct {
	engine         Engine
	viewport       Viewport
	feedback       Feedback
	lock           HandleLock
	cameraID       string
	config         EngineConfig
	negotiator     *Negotiator
	negotiateAfter []time.Duration
	settleDelay    time.Duration
	stopOnScan     bool
	log            Logger

	sleepFn func(ctx context.Context, d time.Duration) error
	nowFn   func() time.Time

	// opMu serializes Start, Stop and the stop half of SwitchFacing.
	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	facing      Facing
	gen         uint64
	locked      bool
	debouncer   *Debouncer
	snapshot    Snapshot
	torchOn     bool
	lastScanned string
	timers      []*time.Timer

	onDetect []func(Detection)
	onScan   []func(Scan)
	onState  []func(State)
	onCaps   []func(Snapshot)
}

// NewSession builds an idle session.
func NewSession(opts Options) *Session {
	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}
	cfg := DefaultEngineConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	neg := opts.Negotiator
	if neg == nil {
		neg = NewNegotiator(log)
	}
	after := opts.NegotiateAfter
	if after == nil {
		after = DefaultNegotiateAfter
	}
	settle := opts.SettleDelay
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Session{
		engine:         opts.Engine,
		viewport:       opts.Viewport,
		feedback:       opts.Feedback,
		lock:           opts.Lock,
		cameraID:       opts.CameraID,
		config:         cfg,
		negotiator:     neg,
		negotiateAfter: after,
		settleDelay:    settle,
		stopOnScan:     opts.StopOnScan,
		log:            log,
		sleepFn:        sleepContext,
		nowFn:          time.Now,
		facing:         FacingEnvironment,
		debouncer:      NewDebouncer(),
		snapshot:       DefaultSnapshot(),
	}
}

// OnDetect registers fn for every raw decode, duplicates included.
func (s *Session) OnDetect(fn func(Detection)) {
	s.mu.Lock()
	s.onDetect = append(s.onDetect, fn)
	s.mu.Unlock()
}

// OnScan registers fn for every scan that passed the debouncer.
func (s *Session) OnScan(fn func(Scan)) {
	s.mu.Lock()
	s.onScan = append(s.onScan, fn)
	s.mu.Unlock()
}

// OnState registers fn for lifecycle transitions.
func (s *Session) OnState(fn func(State)) {
	s.mu.Lock()
	s.onState = append(s.onState, fn)
	s.mu.Unlock()
}

// OnCapabilities registers fn for snapshot changes.
func (s *Session) OnCapabilities(fn func(Snapshot)) {
	s.mu.Lock()
	s.onCaps = append(s.onCaps, fn)
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Facing() Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) TorchOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torchOn
}

// LastScanned returns the text of the most recent accepted scan.
func (s *Session) LastScanned() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScanned
}

// Start opens the camera. A running handle is fully released first, so at
// most one handle is ever open. On failure the session is Idle and the
// returned *AcquisitionError says what the operator should do.
func (s *Session) Start(ctx context.Context, facing Facing) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start(ctx, facing)
}

func (s *Session) start(ctx context.Context, facing Facing) error {
	if s.viewport == nil {
		return s.failStart(ErrViewportMissing)
	}
	if s.State() != StateIdle {
		s.stop(ctx)
	}

	s.mu.Lock()
	s.state = StateStarting
	s.facing = facing
	s.debouncer.Reset()
	s.snapshot = DefaultSnapshot()
	s.torchOn = false
	s.mu.Unlock()
	s.notifyState(StateStarting)

	// Residual state from an earlier start must be gone before the device
	// is requested again.
	if err := s.engine.Stop(ctx); err != nil {
		s.log.Debugf("Releasing previous capture handle: %v", err)
	}
	s.engine.Clear()
	s.viewport.Reset()
	cfg := s.config
	w, h := s.viewport.Size()
	cfg.View = Region{Width: w, Height: h}
	if cfg.Region != nil && w > 0 && h > 0 {
		cfg.ScanBox = cfg.Region(w, h)
	}

	if s.lock != nil {
		ok, err := s.lock.TryLock()
		if err != nil {
			return s.failStart(err)
		}
		if !ok {
			return s.failStart(ErrDeviceBusy)
		}
		s.mu.Lock()
		s.locked = true
		s.mu.Unlock()
	}

	src := s.selectSource(ctx, facing)
	stream, err := s.engine.Start(ctx, src, cfg)
	if err != nil {
		return s.failStart(err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateActive
	s.mu.Unlock()

	s.log.Debugf("Capture active (camera=%q facing=%s)", src.CameraID, src.Facing)
	s.notifyState(StateActive)
	go s.pump(gen, stream)
	s.scheduleNegotiation(gen)
	return nil
}

func (s *Session) failStart(err error) error {
	s.releaseLock()
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.notifyState(StateIdle)
	acq := classifyAcquisition(err)
	s.log.Errorf("Scanner error (%s): %v", acq.Kind, err)
	return acq
}

func (s *Session) selectSource(ctx context.Context, facing Facing) Source {
	src := Source{Facing: facing}
	if s.cameraID != "" {
		src.CameraID = s.cameraID
		return src
	}
	if facing == FacingUser {
		return src
	}
	cams, err := s.engine.Cameras(ctx)
	if err != nil {
		s.log.Debugf("Could not list cameras, using facing mode: %v", err)
		return src
	}
	for _, c := range cams {
		if isRearLabel(c.Label) {
			src.CameraID = c.ID
			break
		}
	}
	return src
}

func isRearLabel(label string) bool {
	l := strings.ToLower(label)
	return strings.Contains(l, "back") || strings.Contains(l, "rear") || strings.Contains(l, "environment")
}

// Stop releases the camera and resets the torch and zoom state. It is a
// no-op on an idle session apart from that reset.
func (s *Session) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop(ctx)
}

func (s *Session) stop(ctx context.Context) error {
	s.mu.Lock()
	wasIdle := s.state == StateIdle
	s.gen++
	if !wasIdle {
		s.state = StateStopping
	}
	timers := s.timers
	s.timers = nil
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}

	var err error
	if !wasIdle {
		s.notifyState(StateStopping)
		if err = s.engine.Stop(ctx); err != nil {
			s.log.Debugf("Stopping capture: %v", err)
		}
		s.engine.Clear()
		s.releaseLock()
	}

	s.mu.Lock()
	s.state = StateIdle
	s.snapshot = DefaultSnapshot()
	s.torchOn = false
	caps := s.snapshot
	s.mu.Unlock()

	if !wasIdle {
		s.notifyState(StateIdle)
		s.notifyCaps(caps)
	}
	return err
}

func (s *Session) releaseLock() {
	s.mu.Lock()
	held := s.locked
	s.locked = false
	s.mu.Unlock()
	if !held || s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.log.Warnf("Could not release capture lock: %v", err)
	}
}

// SwitchFacing flips the facing preference. An active session is stopped,
// given the settle delay and started again with the other camera.
func (s *Session) SwitchFacing(ctx context.Context) error {
	s.opMu.Lock()
	s.mu.Lock()
	next := s.facing.Opposite()
	s.facing = next
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		s.opMu.Unlock()
		return nil
	}
	s.stop(ctx)
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.opMu.Unlock()

	if err := s.sleepFn(ctx, s.settleDelay); err != nil {
		return err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	superseded := s.gen != gen
	s.mu.Unlock()
	if superseded {
		// Someone started or stopped the session during the settle delay.
		return nil
	}
	return s.start(ctx, next)
}

// pump forwards engine decodes for one session generation.
func (s *Session) pump(gen uint64, stream <-chan Detection) {
	for det := range stream {
		if det.At.IsZero() {
			det.At = s.nowFn()
		}

		s.mu.Lock()
		if s.gen != gen || s.state != StateActive {
			s.mu.Unlock()
			continue
		}
		accepted := s.debouncer.Accept(det.Text, det.At)
		scan := Scan{Text: strings.TrimSpace(det.Text), At: det.At}
		if accepted {
			s.lastScanned = scan.Text
		}
		detectObs := append([]func(Detection){}, s.onDetect...)
		scanObs := append([]func(Scan){}, s.onScan...)
		s.mu.Unlock()

		for _, fn := range detectObs {
			fn(det)
		}
		if !accepted {
			continue
		}
		if s.feedback != nil {
			s.feedback.Vibrate(vibrateDuration)
		}
		for _, fn := range scanObs {
			fn(scan)
		}
		if s.stopOnScan {
			s.stopGeneration(gen)
		}
	}
}

func (s *Session) stopGeneration(gen uint64) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if current {
		s.stop(context.Background())
	}
}

func (s *Session) scheduleNegotiation(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.negotiateAfter {
		s.timers = append(s.timers, time.AfterFunc(d, func() {
			s.negotiate(context.Background(), gen)
		}))
	}
}

// Negotiate runs capability negotiation on the active track right away and
// returns the resulting snapshot.
func (s *Session) Negotiate(ctx context.Context) Snapshot {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.negotiate(ctx, gen)
	return s.Snapshot()
}

func (s *Session) negotiate(ctx context.Context, gen uint64) {
	if !s.isCurrent(gen) {
		return
	}
	snap := s.negotiator.Negotiate(ctx, s.engine.Track())

	s.mu.Lock()
	if s.gen != gen || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	changed := snap != s.snapshot
	s.snapshot = snap
	s.mu.Unlock()
	if changed {
		s.notifyCaps(snap)
	}
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state == StateActive
}

// SetZoom clamps level to the known zoom range and applies it. It returns
// the level now shown to the operator.
func (s *Session) SetZoom(ctx context.Context, level float64) float64 {
	s.mu.Lock()
	if s.state != StateActive {
		current := s.snapshot.ZoomLevel
		s.mu.Unlock()
		return current
	}
	r := s.snapshot.ZoomRange
	s.mu.Unlock()

	applied := s.negotiator.SetZoom(ctx, s.engine.Track(), r, level)

	s.mu.Lock()
	s.snapshot.ZoomLevel = applied
	snap := s.snapshot
	s.mu.Unlock()
	s.notifyCaps(snap)
	return applied
}

// SetTorch switches the torch. Failures are swallowed; the returned value is
// the torch state after the call.
func (s *Session) SetTorch(ctx context.Context, on bool) bool {
	if s.State() != StateActive {
		return false
	}
	if s.negotiator.SetTorch(ctx, s.engine.Track(), on) {
		s.mu.Lock()
		s.torchOn = on
		s.mu.Unlock()
	}
	return s.TorchOn()
}

// ToggleTorch flips the torch state.
func (s *Session) ToggleTorch(ctx context.Context) bool {
	return s.SetTorch(ctx, !s.TorchOn())
}

func (s *Session) notifyState(st State) {
	s.mu.Lock()
	obs := append([]func(State){}, s.onState...)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(st)
	}
}

func (s *Session) notifyCaps(snap Snapshot) {
	s.mu.Lock()
	obs := append([]func(Snapshot){}, s.onCaps...)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(snap)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
