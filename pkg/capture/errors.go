package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("camera not found")
	ErrDeviceBusy       = errors.New("camera busy")

	// ErrViewportMissing is returned by Start when no viewport was configured.
	ErrViewportMissing = errors.New("scanner viewport not found, try restarting")
)

// AcquisitionKind classifies why a capture handle could not be opened.
type AcquisitionKind int

const (
	AcquisitionUnknown AcquisitionKind = iota
	AcquisitionPermissionDenied
	AcquisitionDeviceNotFound
	AcquisitionDeviceBusy
)

func (k AcquisitionKind) String() string {
	switch k {
	case AcquisitionPermissionDenied:
		return "permission-denied"
	case AcquisitionDeviceNotFound:
		return "device-not-found"
	case AcquisitionDeviceBusy:
		return "device-busy"
	default:
		return "unknown"
	}
}

// AcquisitionError is returned by Session.Start. Its message tells the
// operator what to do next; the session stays Idle and Start may be retried.
type AcquisitionError struct {
	Kind AcquisitionKind
	Err  error
}

func (e *AcquisitionError) Error() string {
	switch e.Kind {
	case AcquisitionPermissionDenied:
		return "Camera permission denied. Allow access to the video device and try again."
	case AcquisitionDeviceNotFound:
		return "No camera found on this device."
	case AcquisitionDeviceBusy:
		return "Camera is in use by another app. Please close it and try again."
	default:
		return fmt.Sprintf("Failed to start camera: %v", e.Err)
	}
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func classifyAcquisition(err error) *AcquisitionError {
	var acq *AcquisitionError
	if errors.As(err, &acq) {
		return acq
	}
	kind := AcquisitionUnknown
	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, fs.ErrPermission):
		kind = AcquisitionPermissionDenied
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, fs.ErrNotExist):
		kind = AcquisitionDeviceNotFound
	case errors.Is(err, ErrDeviceBusy), errors.Is(err, syscall.EBUSY):
		kind = AcquisitionDeviceBusy
	}
	return &AcquisitionError{Kind: kind, Err: err}
}
