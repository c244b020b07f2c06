package v4l2

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/acmchapter/gatepass/pkg/capture"
)

var (
	ctrlLine = regexp.MustCompile(`^\s*(\w+)\s+0x[0-9a-fA-F]+\s+\((\w+)\)\s*:\s*(.*)$`)
	ctrlAttr = regexp.MustCompile(`(\w+)=(-?\d+)`)
	sizeLine = regexp.MustCompile(`Size:\s+\w+\s+(\d+)x(\d+)(?:\s+-\s+(\d+)x(\d+))?`)
)

// Control is one entry of `v4l2-ctl --list-ctrls`.
type Control struct {
	Name  string
	Type  string
	Attrs map[string]int
}

func (c Control) attr(name string) float64 {
	return float64(c.Attrs[name])
}

func (c Control) rangeOf() *capture.Range {
	return &capture.Range{Min: c.attr("min"), Max: c.attr("max"), Step: c.attr("step")}
}

// ParseControls parses `v4l2-ctl --list-ctrls` output. Menu entries and
// section headers are ignored.
func ParseControls(out string) map[string]Control {
	ctrls := make(map[string]Control)
	for _, line := range strings.Split(out, "\n") {
		m := ctrlLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		c := Control{Name: m[1], Type: m[2], Attrs: map[string]int{}}
		for _, a := range ctrlAttr.FindAllStringSubmatch(m[3], -1) {
			v, err := strconv.Atoi(a[2])
			if err != nil {
				continue
			}
			c.Attrs[a[1]] = v
		}
		ctrls[c.Name] = c
	}
	return ctrls
}

// ParseMaxSize returns the largest frame size listed by
// `v4l2-ctl --list-formats-ext`.
func ParseMaxSize(out string) (int, int) {
	var maxW, maxH int
	for _, m := range sizeLine.FindAllStringSubmatch(out, -1) {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if m[3] != "" {
			w, _ = strconv.Atoi(m[3])
			h, _ = strconv.Atoi(m[4])
		}
		if w*h > maxW*maxH {
			maxW, maxH = w, h
		}
	}
	return maxW, maxH
}

// Track is the live V4L2 device behind a started engine.
type Track struct {
	Device string
	Ctl    string
	Run    Runner

	mu       sync.Mutex
	controls map[string]Control
}

func (t *Track) run(ctx context.Context, args ...string) (string, error) {
	out, err := t.Run(ctx, t.Ctl, append([]string{"-d", t.Device}, args...)...)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", t.Ctl, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Capabilities reads the device controls and frame sizes.
func (t *Track) Capabilities(ctx context.Context) (capture.Capabilities, error) {
	out, err := t.run(ctx, "--list-ctrls")
	if err != nil {
		return capture.Capabilities{}, err
	}
	ctrls := ParseControls(out)
	t.mu.Lock()
	t.controls = ctrls
	t.mu.Unlock()

	var caps capture.Capabilities
	if fmts, err := t.run(ctx, "--list-formats-ext"); err == nil {
		if w, h := ParseMaxSize(fmts); w > 0 {
			caps.Width = &capture.Range{Min: 1, Max: float64(w), Step: 1}
			caps.Height = &capture.Range{Min: 1, Max: float64(h), Step: 1}
		}
	}

	if _, ok := ctrls["focus_automatic_continuous"]; ok {
		caps.FocusModes = append(caps.FocusModes, "continuous")
	} else if _, ok := ctrls["focus_auto"]; ok {
		caps.FocusModes = append(caps.FocusModes, "continuous")
	}
	if _, ok := ctrls["auto_focus_start"]; ok {
		caps.FocusModes = append(caps.FocusModes, "auto")
	}
	if _, ok := ctrls["focus_absolute"]; ok {
		caps.FocusModes = append(caps.FocusModes, "manual")
	}
	if c, ok := ctrls["sharpness"]; ok {
		caps.Sharpness = c.rangeOf()
	}
	if c, ok := ctrls["contrast"]; ok {
		caps.Contrast = c.rangeOf()
	}
	if c, ok := ctrls["auto_exposure_bias"]; ok {
		caps.ExposureCompensation = c.rangeOf()
	}
	if c, ok := ctrls["zoom_absolute"]; ok {
		// UVC zoom is in device units; report it as a factor of the minimum.
		base := zoomBase(c)
		caps.Zoom = &capture.Range{
			Min:  c.attr("min") / base,
			Max:  c.attr("max") / base,
			Step: math.Max(c.attr("step"), 1) / base,
		}
	}
	if _, ok := ctrls["flash_led_mode"]; ok {
		caps.Torch = true
	}
	return caps, nil
}

func zoomBase(c Control) float64 {
	if lo := c.attr("min"); lo > 0 {
		return lo
	}
	return 1
}

func (t *Track) control(name string) (Control, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.controls[name]
	return c, ok
}

// ApplyConstraints writes the requested settings to the device.
func (t *Track) ApplyConstraints(ctx context.Context, c capture.Constraints) error {
	if c.IdealWidth > 0 && c.IdealHeight > 0 {
		if _, err := t.run(ctx, fmt.Sprintf("--set-fmt-video=width=%d,height=%d", c.IdealWidth, c.IdealHeight)); err != nil {
			return err
		}
	}

	var set []string
	switch c.FocusMode {
	case "continuous":
		if _, ok := t.control("focus_auto"); ok {
			set = append(set, "focus_auto=1")
		} else {
			set = append(set, "focus_automatic_continuous=1")
		}
	case "auto":
		set = append(set, "auto_focus_start=1")
	}
	if c.Sharpness != nil {
		set = append(set, "sharpness="+itoa(*c.Sharpness))
	}
	if c.Contrast != nil {
		set = append(set, "contrast="+itoa(*c.Contrast))
	}
	if c.ExposureCompensation != nil {
		set = append(set, "auto_exposure_bias="+itoa(*c.ExposureCompensation))
	}
	if c.Zoom != nil {
		base := 1.0
		if ctrl, ok := t.control("zoom_absolute"); ok {
			base = zoomBase(ctrl)
		}
		set = append(set, "zoom_absolute="+itoa(*c.Zoom*base))
	}
	if c.Torch != nil {
		mode := "0"
		if *c.Torch {
			mode = "2"
		}
		set = append(set, "flash_led_mode="+mode)
	}
	if len(set) == 0 {
		return nil
	}
	_, err := t.run(ctx, "--set-ctrl="+strings.Join(set, ","))
	return err
}

func itoa(v float64) string {
	return strconv.Itoa(int(math.Round(v)))
}
