package capture

import "testing"

func TestScanRegion(t *testing.T) {
	tests := []struct {
		w, h int
		want Region
	}{
		{w: 1000, h: 800, want: Region{Width: 920, Height: 600}},
		{w: 1280, h: 720, want: Region{Width: 1177, Height: 540}},
		{w: 200, h: 100, want: Region{Width: 280, Height: 180}},
		{w: 320, h: 200, want: Region{Width: 294, Height: 180}},
	}
	for _, tt := range tests {
		if got := ScanRegion(tt.w, tt.h); got != tt.want {
			t.Fatalf("ScanRegion(%d, %d): want %+v, got %+v", tt.w, tt.h, tt.want, got)
		}
	}
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	if cfg.FPS < 20 {
		t.Fatalf("fps too low: %d", cfg.FPS)
	}
	if cfg.AspectRatio != 1.5 {
		t.Fatalf("aspect ratio: want 1.5, got %v", cfg.AspectRatio)
	}
	if !cfg.PreferNativeDecoder {
		t.Fatal("native decoder should be preferred")
	}
	if got := cfg.Region(1280, 720); got != (Region{Width: 1177, Height: 540}) {
		t.Fatalf("region: got %+v", got)
	}
	if len(cfg.Formats) != len(AllFormats) {
		t.Fatalf("formats: want %d, got %d", len(AllFormats), len(cfg.Formats))
	}
}
