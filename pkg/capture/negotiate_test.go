package capture

import (
	"context"
	"testing"
)

func zoomOf(cs []Constraints) (float64, bool) {
	for _, c := range cs {
		if c.Zoom != nil {
			return *c.Zoom, true
		}
	}
	return 0, false
}

func TestNegotiateAutoZoom(t *testing.T) {
	tests := []struct {
		name      string
		zoom      *Range
		supported bool
		level     float64
	}{
		{name: "clamps to 2x", zoom: &Range{Min: 1, Max: 3, Step: 0.1}, supported: true, level: 2},
		{name: "uses hardware max below 2x", zoom: &Range{Min: 1, Max: 1.5, Step: 0.1}, supported: true, level: 1.5},
		{name: "no zoom beyond 1x", zoom: &Range{Min: 1, Max: 1}, supported: false, level: 1},
		{name: "not advertised", zoom: nil, supported: false, level: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := &fakeTrack{caps: Capabilities{Zoom: tt.zoom}}
			snap := NewNegotiator(nil).Negotiate(context.Background(), track)
			if snap.ZoomSupported != tt.supported {
				t.Fatalf("zoom supported: want %v, got %v", tt.supported, snap.ZoomSupported)
			}
			if snap.ZoomLevel != tt.level {
				t.Fatalf("zoom level: want %v, got %v", tt.level, snap.ZoomLevel)
			}
			applied, ok := zoomOf(track.appliedConstraints())
			if tt.supported && (!ok || applied != tt.level) {
				t.Fatalf("applied zoom: want %v, got %v (set=%v)", tt.level, applied, ok)
			}
			if !tt.supported && ok {
				t.Fatalf("zoom applied without support: %v", applied)
			}
		})
	}
}

func TestNegotiateZoomRangeDefaults(t *testing.T) {
	track := &fakeTrack{caps: Capabilities{Zoom: &Range{Max: 4}}}
	snap := NewNegotiator(nil).Negotiate(context.Background(), track)
	want := ZoomRange{Min: 1, Max: 4, Step: 0.1}
	if snap.ZoomRange != want {
		t.Fatalf("want %+v, got %+v", want, snap.ZoomRange)
	}
}

func TestNegotiateResolutionCeiling(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want Region
	}{
		{name: "4k camera is capped", caps: Capabilities{Width: &Range{Max: 3840}, Height: &Range{Max: 2160}}, want: Region{Width: 1920, Height: 1080}},
		{name: "720p camera keeps its max", caps: Capabilities{Width: &Range{Max: 1280}, Height: &Range{Max: 720}}, want: Region{Width: 1280, Height: 720}},
		{name: "missing max uses ceiling", caps: Capabilities{Width: &Range{}, Height: &Range{}}, want: Region{Width: 1920, Height: 1080}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := &fakeTrack{caps: tt.caps}
			snap := NewNegotiator(nil).Negotiate(context.Background(), track)
			if snap.ResolutionCeiling != tt.want {
				t.Fatalf("want %+v, got %+v", tt.want, snap.ResolutionCeiling)
			}
			applied := track.appliedConstraints()
			if len(applied) == 0 || applied[0].IdealWidth != tt.want.Width || applied[0].IdealHeight != tt.want.Height {
				t.Fatalf("unexpected resolution constraint: %+v", applied)
			}
		})
	}
}

func TestNegotiateFocusPreference(t *testing.T) {
	tests := []struct {
		modes []string
		want  string
	}{
		{modes: []string{"manual", "auto", "continuous"}, want: "continuous"},
		{modes: []string{"manual", "auto"}, want: "auto"},
		{modes: []string{"manual"}, want: ""},
		{modes: nil, want: ""},
	}
	for _, tt := range tests {
		track := &fakeTrack{caps: Capabilities{FocusModes: tt.modes}}
		NewNegotiator(nil).Negotiate(context.Background(), track)
		got := ""
		for _, c := range track.appliedConstraints() {
			if c.FocusMode != "" {
				got = c.FocusMode
			}
		}
		if got != tt.want {
			t.Fatalf("modes %v: want %q, got %q", tt.modes, tt.want, got)
		}
	}
}

func TestNegotiateContrastAndSharpness(t *testing.T) {
	track := &fakeTrack{caps: Capabilities{
		Contrast:             &Range{Min: 0, Max: 255},
		Sharpness:            &Range{Min: 0, Max: 7},
		ExposureCompensation: &Range{Min: -3, Max: 3},
	}}
	NewNegotiator(nil).Negotiate(context.Background(), track)

	var contrast, sharpness, exposure *float64
	for _, c := range track.appliedConstraints() {
		if c.Contrast != nil {
			contrast = c.Contrast
		}
		if c.Sharpness != nil {
			sharpness = c.Sharpness
		}
		if c.ExposureCompensation != nil {
			exposure = c.ExposureCompensation
		}
	}
	if contrast == nil || *contrast != 150 {
		t.Fatalf("contrast must be capped at 150, got %v", contrast)
	}
	if sharpness == nil || *sharpness != 7 {
		t.Fatalf("sharpness must use the advertised max, got %v", sharpness)
	}
	if exposure == nil || *exposure != 0 {
		t.Fatalf("exposure compensation must be neutral, got %v", exposure)
	}
}

func TestNegotiateSwallowsFailures(t *testing.T) {
	track := &fakeTrack{
		caps: Capabilities{
			Width:      &Range{Max: 1920},
			FocusModes: []string{"continuous"},
			Zoom:       &Range{Min: 1, Max: 5, Step: 1},
			Torch:      true,
		},
		applyErr: errBoom,
	}
	snap := NewNegotiator(nil).Negotiate(context.Background(), track)
	if !snap.ZoomSupported || !snap.TorchSupported {
		t.Fatalf("capabilities must still be reported: %+v", snap)
	}
	if got := len(track.appliedConstraints()); got != 3 {
		t.Fatalf("every strategy must be tried independently, got %d applies", got)
	}
}

func TestNegotiateUnreadableCapabilities(t *testing.T) {
	track := &fakeTrack{capsErr: errBoom}
	snap := NewNegotiator(nil).Negotiate(context.Background(), track)
	if snap != DefaultSnapshot() {
		t.Fatalf("want default snapshot, got %+v", snap)
	}
	if snap := NewNegotiator(nil).Negotiate(context.Background(), nil); snap != DefaultSnapshot() {
		t.Fatalf("nil track: want default snapshot, got %+v", snap)
	}
}

func TestSetZoomClamps(t *testing.T) {
	r := ZoomRange{Min: 1, Max: 3, Step: 0.1}
	track := &fakeTrack{}
	n := NewNegotiator(nil)
	if got := n.SetZoom(context.Background(), track, r, 5); got != 3 {
		t.Fatalf("want 3, got %v", got)
	}
	if got := n.SetZoom(context.Background(), track, r, 0.2); got != 1 {
		t.Fatalf("want 1, got %v", got)
	}
	track.applyErr = errBoom
	if got := n.SetZoom(context.Background(), track, r, 2.5); got != 2.5 {
		t.Fatalf("failed apply must still report the level, got %v", got)
	}
}

func TestSetTorchFallsBackToConstraint(t *testing.T) {
	base := &fakeTrack{torchErr: errBoom}
	track := torchTrack{base}
	n := NewNegotiator(nil)
	if !n.SetTorch(context.Background(), track, true) {
		t.Fatal("fallback path should have switched the torch")
	}
	applied := base.appliedConstraints()
	if len(applied) != 1 || applied[0].Torch == nil || !*applied[0].Torch {
		t.Fatalf("expected torch constraint, got %+v", applied)
	}

	base.applyErr = errBoom
	if n.SetTorch(context.Background(), track, false) {
		t.Fatal("torch reported switched although both paths failed")
	}
}

func TestSetTorchUsesControlFirst(t *testing.T) {
	base := &fakeTrack{}
	n := NewNegotiator(nil)
	if !n.SetTorch(context.Background(), torchTrack{base}, true) {
		t.Fatal("torch control should succeed")
	}
	if len(base.appliedConstraints()) != 0 {
		t.Fatal("constraint fallback used although torch control worked")
	}
}
