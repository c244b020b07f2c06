// Package capture owns the camera side of the gate terminal: one capture
// session at a time, capability negotiation on the live track and duplicate
// suppression for the decoded codes the engine reports.
package capture

import (
	"context"
	"time"
)

// Facing is the camera selection preference.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// Opposite returns the other facing mode.
func (f Facing) Opposite() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// ParseFacing maps user input to a Facing, defaulting to the rear camera.
func ParseFacing(s string) Facing {
	switch s {
	case "user", "front":
		return FacingUser
	default:
		return FacingEnvironment
	}
}

// Camera is one video input reported by an engine.
type Camera struct {
	ID    string
	Label string
}

// Source selects the device to open. An explicit CameraID wins over Facing.
type Source struct {
	CameraID string
	Facing   Facing
}

// Detection is a single raw decode reported by the engine.
type Detection struct {
	Text string
	At   time.Time
}

// Format is a barcode symbology the engine is asked to look for.
type Format string

const (
	FormatQRCode     Format = "qrcode"
	FormatCode128    Format = "code128"
	FormatCode39     Format = "code39"
	FormatCode93     Format = "code93"
	FormatEAN13      Format = "ean13"
	FormatEAN8       Format = "ean8"
	FormatUPCA       Format = "upca"
	FormatUPCE       Format = "upce"
	FormatITF        Format = "i25"
	FormatCodabar    Format = "codabar"
	FormatDataMatrix Format = "datamatrix"
	FormatPDF417     Format = "pdf417"
	FormatAztec      Format = "aztec"
)

// AllFormats is every symbology a participant badge may carry.
var AllFormats = []Format{
	FormatQRCode,
	FormatCode128,
	FormatCode39,
	FormatCode93,
	FormatEAN13,
	FormatEAN8,
	FormatUPCA,
	FormatUPCE,
	FormatITF,
	FormatCodabar,
	FormatDataMatrix,
	FormatPDF417,
	FormatAztec,
}

// EngineConfig is handed to Engine.Start. View and ScanBox are filled in
// by the session from the viewport at start time.
type EngineConfig struct {
	FPS int
	// Region sizes the scan box for a given view.
	Region func(viewWidth, viewHeight int) Region
	// AspectRatio is the requested frame width over height.
	AspectRatio float64
	Formats     []Format
	// PreferNativeDecoder asks the engine to use a platform decode
	// accelerator when one exists and fall back to software otherwise.
	PreferNativeDecoder bool

	View    Region
	ScanBox Region
}

// DefaultEngineConfig returns the decode settings tuned for small badge codes.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FPS:                 20,
		Region:              ScanRegion,
		AspectRatio:         1.5,
		Formats:             append([]Format(nil), AllFormats...),
		PreferNativeDecoder: true,
	}
}

// Engine is the external decode engine. It owns the physical device while
// started and reports every decode it makes, duplicates included.
type Engine interface {
	// Cameras lists the available video inputs.
	Cameras(ctx context.Context) ([]Camera, error)
	// Start opens the device chosen by src and begins decoding. The returned
	// channel is closed by the engine after Stop.
	Start(ctx context.Context, src Source, cfg EngineConfig) (<-chan Detection, error)
	// Stop releases the device. It must not wait for the detection channel to
	// be drained and must be safe to call when not started.
	Stop(ctx context.Context) error
	// Clear drops any residual engine state left from a previous start.
	Clear()
	// Track returns the live hardware track, or nil when the engine has none.
	Track() Track
}

// Range is a numeric capability range.
type Range struct {
	Min  float64
	Max  float64
	Step float64
}

// Capabilities is what the hardware track advertises. Nil ranges mean the
// capability is not advertised.
type Capabilities struct {
	Width                *Range
	Height               *Range
	FocusModes           []string
	Sharpness            *Range
	Contrast             *Range
	ExposureCompensation *Range
	Zoom                 *Range
	Torch                bool
}

// Constraints is a partial set of settings to apply to a track. Zero or nil
// fields are left untouched.
type Constraints struct {
	IdealWidth           int
	IdealHeight          int
	FocusMode            string
	Sharpness            *float64
	Contrast             *float64
	ExposureCompensation *float64
	Zoom                 *float64
	Torch                *bool
}

// Track is the live hardware track of a started engine.
type Track interface {
	Capabilities(ctx context.Context) (Capabilities, error)
	ApplyConstraints(ctx context.Context, c Constraints) error
}

// TorchController is implemented by tracks that expose a dedicated torch
// control in addition to ApplyConstraints.
type TorchController interface {
	SetTorch(ctx context.Context, on bool) error
}

// Viewport is the preview surface the engine renders into.
type Viewport interface {
	Size() (width, height int)
	// Reset empties the surface before a new engine is attached.
	Reset()
}

// FixedViewport is a viewport of constant size with nothing to reset.
type FixedViewport struct {
	Width  int
	Height int
}

func (v FixedViewport) Size() (int, int) { return v.Width, v.Height }
func (v FixedViewport) Reset()           {}

// Feedback signals an accepted scan to the operator. Implementations are
// best effort.
type Feedback interface {
	Vibrate(d time.Duration)
}

// Logger abstracts logging so callers can plug logrus or anything else that
// satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}
