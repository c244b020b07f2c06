package capture

import (
	"context"
	"errors"
	"math"
)

const (
	maxIdealWidth  = 1920
	maxIdealHeight = 1080

	continuousFocus = "continuous"
	singleShotFocus = "auto"

	defaultSharpness = 100
	defaultContrast  = 100
	maxContrast      = 150

	autoZoom = 2.0
)

// ErrNotAdvertised is returned by a strategy when the track does not
// advertise the capability it manages.
var ErrNotAdvertised = errors.New("capability not advertised")

// ZoomRange is the zoom control exposed to the operator.
type ZoomRange struct {
	Min  float64
	Max  float64
	Step float64
}

// DefaultZoomRange is used until a track reports zoom support.
var DefaultZoomRange = ZoomRange{Min: 1, Max: 1, Step: 0.1}

// Snapshot is the presentation-facing view of the active track.
type Snapshot struct {
	TorchSupported bool
	ZoomSupported  bool
	ZoomRange      ZoomRange
	ZoomLevel      float64
	// ResolutionCeiling is the ideal resolution that was requested.
	ResolutionCeiling Region
}

// DefaultSnapshot is the snapshot of a session that has no track yet.
func DefaultSnapshot() Snapshot {
	return Snapshot{ZoomRange: DefaultZoomRange, ZoomLevel: 1}
}

// Strategy applies one best-effort capability setting. A strategy applies
// its own constraints and records what it found in snap. Its error is
// logged and otherwise ignored.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, track Track, caps Capabilities, snap *Snapshot) error
}

// DefaultStrategies returns the settings tried on every new track, in order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ResolutionStrategy{MaxWidth: maxIdealWidth, MaxHeight: maxIdealHeight},
		FocusStrategy{},
		SharpnessStrategy{},
		ContrastStrategy{},
		ExposureStrategy{},
		ZoomStrategy{},
		TorchStrategy{},
	}
}

// Negotiator derives a Snapshot from a track and applies the best settings
// the hardware advertises.
type Negotiator struct {
	Strategies []Strategy
	Log        Logger
}

// NewNegotiator returns a negotiator running DefaultStrategies.
func NewNegotiator(log Logger) *Negotiator {
	if log == nil {
		log = nopLogger{}
	}
	return &Negotiator{Strategies: DefaultStrategies(), Log: log}
}

// Negotiate runs every strategy against track. It never fails: when the
// capabilities cannot be read the default snapshot is returned.
func (n *Negotiator) Negotiate(ctx context.Context, track Track) Snapshot {
	log := n.logger()
	snap := DefaultSnapshot()
	if track == nil {
		return snap
	}
	caps, err := track.Capabilities(ctx)
	if err != nil {
		log.Debugf("Could not read track capabilities: %v", err)
		return snap
	}
	for _, s := range n.Strategies {
		if err := s.Apply(ctx, track, caps, &snap); err != nil {
			if errors.Is(err, ErrNotAdvertised) {
				log.Debugf("Skipping %s: %v", s.Name(), err)
				continue
			}
			log.Debugf("Capability %s failed: %v", s.Name(), err)
		}
	}
	return snap
}

func (n *Negotiator) logger() Logger {
	if n.Log == nil {
		return nopLogger{}
	}
	return n.Log
}

// SetZoom clamps level to r and applies it. The clamped level is returned
// even when the track rejects it.
func (n *Negotiator) SetZoom(ctx context.Context, track Track, r ZoomRange, level float64) float64 {
	level = clamp(level, r.Min, r.Max)
	if track == nil {
		return level
	}
	if err := track.ApplyConstraints(ctx, Constraints{Zoom: &level}); err != nil {
		n.logger().Debugf("Zoom %.1f not applied: %v", level, err)
	}
	return level
}

// SetTorch switches the torch through the track's torch control, falling
// back to applying the constraint directly. It reports whether the torch is
// now in the requested state.
func (n *Negotiator) SetTorch(ctx context.Context, track Track, on bool) bool {
	if track == nil {
		return false
	}
	if tc, ok := track.(TorchController); ok {
		err := tc.SetTorch(ctx, on)
		if err == nil {
			return true
		}
		n.logger().Debugf("Torch control failed, reapplying constraint: %v", err)
	}
	if err := track.ApplyConstraints(ctx, Constraints{Torch: &on}); err != nil {
		n.logger().Debugf("Torch not supported: %v", err)
		return false
	}
	return true
}

// ResolutionStrategy requests the highest resolution the track offers, up
// to MaxWidth x MaxHeight.
type ResolutionStrategy struct {
	MaxWidth  int
	MaxHeight int
}

func (ResolutionStrategy) Name() string { return "resolution" }

func (s ResolutionStrategy) Apply(ctx context.Context, track Track, caps Capabilities, snap *Snapshot) error {
	if caps.Width == nil && caps.Height == nil {
		return ErrNotAdvertised
	}
	var c Constraints
	if caps.Width != nil {
		c.IdealWidth = ceilingOf(caps.Width.Max, s.MaxWidth)
	}
	if caps.Height != nil {
		c.IdealHeight = ceilingOf(caps.Height.Max, s.MaxHeight)
	}
	snap.ResolutionCeiling = Region{Width: c.IdealWidth, Height: c.IdealHeight}
	return track.ApplyConstraints(ctx, c)
}

func ceilingOf(advertised float64, ceiling int) int {
	if advertised <= 0 || int(advertised) > ceiling {
		return ceiling
	}
	return int(advertised)
}

// FocusStrategy prefers continuous autofocus, then single-shot autofocus.
type FocusStrategy struct{}

func (FocusStrategy) Name() string { return "focus" }

func (FocusStrategy) Apply(ctx context.Context, track Track, caps Capabilities, _ *Snapshot) error {
	mode := ""
	switch {
	case containsString(caps.FocusModes, continuousFocus):
		mode = continuousFocus
	case containsString(caps.FocusModes, singleShotFocus):
		mode = singleShotFocus
	default:
		return ErrNotAdvertised
	}
	return track.ApplyConstraints(ctx, Constraints{FocusMode: mode})
}

// SharpnessStrategy pushes sharpness to the advertised maximum.
type SharpnessStrategy struct{}

func (SharpnessStrategy) Name() string { return "sharpness" }

func (SharpnessStrategy) Apply(ctx context.Context, track Track, caps Capabilities, _ *Snapshot) error {
	if caps.Sharpness == nil {
		return ErrNotAdvertised
	}
	v := caps.Sharpness.Max
	if v == 0 {
		v = defaultSharpness
	}
	return track.ApplyConstraints(ctx, Constraints{Sharpness: &v})
}

// ContrastStrategy raises contrast, never above 150.
type ContrastStrategy struct{}

func (ContrastStrategy) Name() string { return "contrast" }

func (ContrastStrategy) Apply(ctx context.Context, track Track, caps Capabilities, _ *Snapshot) error {
	if caps.Contrast == nil {
		return ErrNotAdvertised
	}
	v := caps.Contrast.Max
	if v == 0 {
		v = defaultContrast
	}
	v = math.Min(v, maxContrast)
	return track.ApplyConstraints(ctx, Constraints{Contrast: &v})
}

// ExposureStrategy resets exposure compensation to neutral.
type ExposureStrategy struct{}

func (ExposureStrategy) Name() string { return "exposure" }

func (ExposureStrategy) Apply(ctx context.Context, track Track, caps Capabilities, _ *Snapshot) error {
	if caps.ExposureCompensation == nil {
		return ErrNotAdvertised
	}
	v := 0.0
	return track.ApplyConstraints(ctx, Constraints{ExposureCompensation: &v})
}

// ZoomStrategy exposes the zoom control and zooms to 2x, or the hardware
// maximum when that is smaller.
type ZoomStrategy struct{}

func (ZoomStrategy) Name() string { return "zoom" }

func (ZoomStrategy) Apply(ctx context.Context, track Track, caps Capabilities, snap *Snapshot) error {
	if caps.Zoom == nil {
		return ErrNotAdvertised
	}
	r := ZoomRange{Min: caps.Zoom.Min, Max: caps.Zoom.Max, Step: caps.Zoom.Step}
	if r.Min == 0 {
		r.Min = DefaultZoomRange.Min
	}
	if r.Max == 0 {
		r.Max = DefaultZoomRange.Max
	}
	if r.Step == 0 {
		r.Step = DefaultZoomRange.Step
	}
	if r.Max <= 1 {
		return ErrNotAdvertised
	}
	level := math.Min(autoZoom, r.Max)
	snap.ZoomSupported = true
	snap.ZoomRange = r
	snap.ZoomLevel = level
	return track.ApplyConstraints(ctx, Constraints{Zoom: &level})
}

// TorchStrategy only records torch support; switching is done by SetTorch.
type TorchStrategy struct{}

func (TorchStrategy) Name() string { return "torch" }

func (TorchStrategy) Apply(_ context.Context, _ Track, caps Capabilities, snap *Snapshot) error {
	if !caps.Torch {
		return ErrNotAdvertised
	}
	snap.TorchSupported = true
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
