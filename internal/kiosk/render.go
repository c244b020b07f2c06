package kiosk

import (
	"fmt"
	"io"
	"strings"

	"github.com/acmchapter/gatepass/pkg/capture"
	"github.com/acmchapter/gatepass/pkg/checkin"
	"github.com/acmchapter/gatepass/pkg/prefs"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
)

// Palette holds the ANSI sequences for one theme.
type Palette struct {
	Accent  string
	Success string
	Warning string
	Error   string
	Muted   string
	Bold    string
	Reset   string
}

func PaletteFor(t prefs.Theme, color bool) Palette {
	if !color {
		return Palette{}
	}
	if t == prefs.ThemeDark {
		return Palette{
			Accent:  "\033[96m",
			Success: "\033[92m",
			Warning: "\033[93m",
			Error:   "\033[91m",
			Muted:   "\033[90m",
			Bold:    ansiBold,
			Reset:   ansiReset,
		}
	}
	return Palette{
		Accent:  "\033[34m",
		Success: "\033[32m",
		Warning: "\033[33m",
		Error:   "\033[31m",
		Muted:   "\033[2m",
		Bold:    ansiBold,
		Reset:   ansiReset,
	}
}

func (p Palette) paint(color, s string) string {
	if color == "" {
		return s
	}
	return color + s + p.Reset
}

func renderBanner(w io.Writer, p Palette, t prefs.Theme) {
	fmt.Fprintf(w, "%s\n", p.paint(p.Bold+p.Accent, "ACM Students Chapter"))
	fmt.Fprintf(w, "%s\n", p.paint(p.Muted, "Gate Pass · Event Check-in ("+string(t)+" theme)"))
}

func renderStats(w io.Writer, p Palette, s checkin.Stats) {
	const width = 20
	pct := s.Percentage()
	filled := pct * width / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	fmt.Fprintf(w, "Registered %s  Checked In %s  Remaining %s  [%s] %d%%\n",
		p.paint(p.Accent, fmt.Sprint(s.Total)),
		p.paint(p.Success, fmt.Sprint(s.Scanned)),
		p.paint(p.Warning, fmt.Sprint(s.Remaining)),
		p.paint(p.Success, bar), pct)
}

func renderResult(w io.Writer, p Palette, r *checkin.Participant) {
	if r == nil {
		return
	}
	badge := p.paint(p.Warning, "○ Not Checked In")
	if r.Scanned() {
		badge = p.paint(p.Success, "✓ Checked In")
	}
	fmt.Fprintf(w, "%s\n", badge)
	fmt.Fprintf(w, "  Name             %s\n", r.Name)
	fmt.Fprintf(w, "  Registration No. %s\n", r.RegistrationNo)
	if r.ScannedAt != "" {
		fmt.Fprintf(w, "  Scanned At       %s\n", r.ScannedAt)
	}
	if r.Scanned() {
		fmt.Fprintf(w, "%s\n", p.paint(p.Muted, "Already verified, no action needed"))
	} else {
		fmt.Fprintf(w, "%s\n", p.paint(p.Muted, "Type 'yes' to mark as checked in"))
	}
}

func renderNotification(w io.Writer, p Palette, n *checkin.Notification) {
	if n == nil {
		return
	}
	color := p.Error
	switch n.Kind {
	case checkin.NotifySuccess:
		color = p.Success
	case checkin.NotifyWarning:
		color = p.Warning
	}
	fmt.Fprintf(w, "%s\n", p.paint(color, n.Message))
}

func renderView(w io.Writer, p Palette, v checkin.View) {
	if v.Error != "" {
		fmt.Fprintf(w, "%s\n", p.paint(p.Error, v.Error))
	}
	renderNotification(w, p, v.Notification)
	renderResult(w, p, v.Result)
}

func renderCapture(w io.Writer, p Palette, st capture.State, facing capture.Facing, snap capture.Snapshot, torchOn bool) {
	cam := "rear"
	if facing == capture.FacingUser {
		cam = "front"
	}
	fmt.Fprintf(w, "Camera %s (%s)", p.paint(p.Accent, st.String()), cam)
	if st == capture.StateActive {
		if snap.TorchSupported {
			torch := "off"
			if torchOn {
				torch = "on"
			}
			fmt.Fprintf(w, "  torch %s", torch)
		}
		if snap.ZoomSupported {
			fmt.Fprintf(w, "  zoom %.1fx (%.1f-%.1f)", snap.ZoomLevel, snap.ZoomRange.Min, snap.ZoomRange.Max)
		}
	}
	fmt.Fprintln(w)
}

const helpText = `Commands:
  scan            start the camera
  stop            stop the camera
  flip            switch between rear and front camera
  torch           toggle the torch
  zoom <x>        set zoom level
  find <regNo>    look up a participant
  yes             check in the displayed participant
  stats           refresh the counters
  theme           toggle light/dark theme
  clear           dismiss messages
  quit            exit
`
