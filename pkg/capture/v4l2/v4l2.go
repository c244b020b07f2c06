// Package v4l2 is a capture engine for Linux video devices. Decoding is done
// by an external zbarcam process; the camera controls are read and written
// through v4l2-ctl.
package v4l2

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/acmchapter/gatepass/pkg/capture"
)

const (
	DefaultDecoder   = "zbarcam"
	DefaultCtl       = "v4l2-ctl"
	DefaultSysfsRoot = "/sys/class/video4linux"
	DefaultDevRoot   = "/dev"

	stopTimeout = 3 * time.Second
)

// zbar has no DataMatrix or Aztec reader; those are skipped.
var zbarSymbologies = map[capture.Format]string{
	capture.FormatQRCode:  "qrcode",
	capture.FormatCode128: "code128",
	capture.FormatCode39:  "code39",
	capture.FormatCode93:  "code93",
	capture.FormatEAN13:   "ean13",
	capture.FormatEAN8:    "ean8",
	capture.FormatUPCA:    "upca",
	capture.FormatUPCE:    "upce",
	capture.FormatITF:     "i25",
	capture.FormatCodabar: "codabar",
	capture.FormatPDF417:  "pdf417",
}

// Runner runs a command to completion and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// process is a started decoder: its stdout and a wait function that returns
// once the process has exited.
type process struct {
	stdout io.Reader
	wait   func() error
}

type startFunc func(ctx context.Context, name string, args []string) (*process, error)

func execStart(ctx context.Context, name string, args []string) (*process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("decoder %q is not installed: %w", name, err)
		}
		return nil, err
	}
	return &process{stdout: stdout, wait: cmd.Wait}, nil
}

// Engine drives one video device at a time.
type Engine struct {
	Decoder string
	// NativeDecoder is a hardware-accelerated drop-in for zbarcam taking the
	// same arguments. It is used when installed and the config prefers it.
	NativeDecoder string
	Ctl           string
	SysfsRoot     string
	DevRoot       string
	Run           Runner
	Log           capture.Logger

	startFn  startFunc
	probeFn  func(device string) error
	lookPath func(file string) (string, error)
	nowFn    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	exited chan struct{}
	track  *Track
}

// New returns an engine using the system tools.
func New(log capture.Logger) *Engine {
	return &Engine{
		Decoder:   DefaultDecoder,
		Ctl:       DefaultCtl,
		SysfsRoot: DefaultSysfsRoot,
		DevRoot:   DefaultDevRoot,
		Run:       ExecRunner,
		Log:       log,
	}
}

func (e *Engine) logger() capture.Logger {
	if e.Log == nil {
		return discard{}
	}
	return e.Log
}

// Cameras lists capture nodes from sysfs. Metadata nodes that share a
// device with a capture node are skipped.
func (e *Engine) Cameras(context.Context) ([]capture.Camera, error) {
	entries, err := os.ReadDir(e.SysfsRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cams []capture.Camera
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		dir := filepath.Join(e.SysfsRoot, name)
		if idx, err := os.ReadFile(filepath.Join(dir, "index")); err == nil && strings.TrimSpace(string(idx)) != "0" {
			continue
		}
		label := name
		if b, err := os.ReadFile(filepath.Join(dir, "name")); err == nil {
			label = strings.TrimSpace(string(b))
		}
		cams = append(cams, capture.Camera{ID: filepath.Join(e.DevRoot, name), Label: label})
	}
	sort.Slice(cams, func(i, j int) bool {
		return videoNumber(cams[i].ID) < videoNumber(cams[j].ID)
	})
	return cams, nil
}

func videoNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(id), "video"))
	if err != nil {
		return 1 << 30
	}
	return n
}

func isFrontLabel(label string) bool {
	l := strings.ToLower(label)
	for _, k := range []string{"front", "user", "face", "integrated"} {
		if strings.Contains(l, k) {
			return true
		}
	}
	return false
}

// resolveDevice picks the device node for src.
func (e *Engine) resolveDevice(ctx context.Context, src capture.Source) (string, error) {
	if src.CameraID != "" {
		if filepath.IsAbs(src.CameraID) {
			return src.CameraID, nil
		}
		return filepath.Join(e.DevRoot, src.CameraID), nil
	}
	cams, err := e.Cameras(ctx)
	if err != nil {
		return "", err
	}
	if len(cams) == 0 {
		return "", capture.ErrDeviceNotFound
	}
	wantFront := src.Facing == capture.FacingUser
	for _, c := range cams {
		if isFrontLabel(c.Label) == wantFront {
			return c.ID, nil
		}
	}
	return cams[0].ID, nil
}

func probeDevice(device string) error {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%s: %w", device, capture.ErrDeviceNotFound)
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%s: %w", device, capture.ErrPermissionDenied)
		case errors.Is(err, syscall.EBUSY):
			return fmt.Errorf("%s: %w", device, capture.ErrDeviceBusy)
		}
		return err
	}
	return f.Close()
}

func decoderArgs(cfg capture.EngineConfig, device string) []string {
	args := []string{"--raw", "--nodisplay"}
	if w := cfg.View.Width; w > 0 && cfg.AspectRatio > 0 {
		h := int(float64(w) / cfg.AspectRatio)
		args = append(args, fmt.Sprintf("--prescale=%dx%d", w, h))
	}
	args = append(args, "-Sdisable")
	for _, f := range cfg.Formats {
		if sym, ok := zbarSymbologies[f]; ok {
			args = append(args, "-S"+sym+".enable")
		}
	}
	return append(args, device)
}

func (e *Engine) decoder(cfg capture.EngineConfig) string {
	if !cfg.PreferNativeDecoder || e.NativeDecoder == "" {
		return e.Decoder
	}
	look := e.lookPath
	if look == nil {
		look = exec.LookPath
	}
	path, err := look(e.NativeDecoder)
	if err != nil {
		e.logger().Debugf("Native decoder %q unavailable, using %s: %v", e.NativeDecoder, e.Decoder, err)
		return e.Decoder
	}
	return path
}

// cropArg centers the scan box in the view as a v4l2 crop selection.
func cropArg(cfg capture.EngineConfig) (string, bool) {
	box, view := cfg.ScanBox, cfg.View
	if box.Width <= 0 || box.Height <= 0 || view.Width <= 0 || view.Height <= 0 {
		return "", false
	}
	left := (view.Width - box.Width) / 2
	top := (view.Height - box.Height) / 2
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	return fmt.Sprintf("--set-selection=target=crop,left=%d,top=%d,width=%d,height=%d", left, top, box.Width, box.Height), true
}

// Start opens the device and starts the decoder.
func (e *Engine) Start(ctx context.Context, src capture.Source, cfg capture.EngineConfig) (<-chan capture.Detection, error) {
	e.mu.Lock()
	running := e.done != nil
	e.mu.Unlock()
	if running {
		return nil, capture.ErrDeviceBusy
	}

	device, err := e.resolveDevice(ctx, src)
	if err != nil {
		return nil, err
	}
	probe := e.probeFn
	if probe == nil {
		probe = probeDevice
	}
	if err := probe(device); err != nil {
		return nil, err
	}

	run := e.Run
	if run == nil {
		run = ExecRunner
	}
	if cfg.FPS > 0 {
		if out, err := run(ctx, e.Ctl, "-d", device, "--set-parm="+strconv.Itoa(cfg.FPS)); err != nil {
			e.logger().Debugf("Could not set %d fps on %s: %v %s", cfg.FPS, device, err, strings.TrimSpace(string(out)))
		}
	}
	if arg, ok := cropArg(cfg); ok {
		if out, err := run(ctx, e.Ctl, "-d", device, arg); err != nil {
			e.logger().Debugf("Could not crop %s to the scan box: %v %s", device, err, strings.TrimSpace(string(out)))
		}
	}

	start := e.startFn
	if start == nil {
		start = execStart
	}
	procCtx, cancel := context.WithCancel(context.Background())
	proc, err := start(procCtx, e.decoder(cfg), decoderArgs(cfg, device))
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan capture.Detection, 64)
	done := make(chan struct{})
	exited := make(chan struct{})

	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.exited = exited
	e.track = &Track{Device: device, Ctl: e.Ctl, Run: run}
	e.mu.Unlock()

	go e.read(proc, out, done, exited)
	return out, nil
}

func (e *Engine) read(proc *process, out chan<- capture.Detection, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	defer close(out)

	now := e.nowFn
	if now == nil {
		now = time.Now
	}
	scanner := bufio.NewScanner(proc.stdout)
	for scanner.Scan() {
		select {
		case out <- capture.Detection{Text: scanner.Text(), At: now()}:
		case <-done:
			// Keep draining so the process is not blocked on a full pipe.
		}
	}
	if err := proc.wait(); err != nil {
		select {
		case <-done:
		default:
			e.logger().Warnf("Decoder exited: %v", err)
		}
	}
}

// Stop kills the decoder and waits for it to release the device.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel, done, exited := e.cancel, e.done, e.exited
	e.cancel, e.done, e.exited, e.track = nil, nil, nil, nil
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	close(done)
	cancel()

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("decoder did not exit within %s", stopTimeout)
	}
}

func (e *Engine) Clear() {}

func (e *Engine) Track() capture.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.track == nil {
		return nil
	}
	return e.track
}

type discard struct{}

func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}
func (discard) Debugf(string, ...interface{}) {}
