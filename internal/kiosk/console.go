package kiosk

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/acmchapter/gatepass/pkg/capture"
	"github.com/acmchapter/gatepass/pkg/capture/wedge"
	"github.com/acmchapter/gatepass/pkg/checkin"
	"github.com/acmchapter/gatepass/pkg/prefs"
)

// commandPrefix marks a command when a wedge scanner shares the input.
const commandPrefix = ":"

type Config struct {
	In           io.Reader
	Out          io.Writer
	Session      *capture.Session
	Orchestrator *checkin.Orchestrator
	// Wedge is set when the scanner types into In. Lines without the
	// command prefix are then fed to it as scans.
	Wedge *wedge.Engine
	Prefs *prefs.Store
	Color bool
	Log   *logrus.Logger
}

// Console is the operator loop. All orchestrator calls and rendering happen
// on the goroutine running Run; capture callbacks only post events to it.
type Console struct {
	in      io.Reader
	out     io.Writer
	session *capture.Session
	orch    *checkin.Orchestrator
	wedge   *wedge.Engine
	prefs   *prefs.Store
	color   bool
	log     *logrus.Logger

	theme   prefs.Theme
	palette Palette

	scans chan capture.Scan
	caps  chan capture.Snapshot
	state chan capture.State
	stats chan checkin.Stats

	shownStats checkin.Stats
}

func New(cfg Config) *Console {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	return &Console{
		in:      cfg.In,
		out:     &syncWriter{w: out},
		session: cfg.Session,
		orch:    cfg.Orchestrator,
		wedge:   cfg.Wedge,
		prefs:   cfg.Prefs,
		color:   cfg.Color,
		log:     log,
		scans:   make(chan capture.Scan, 8),
		caps:    make(chan capture.Snapshot, 8),
		state:   make(chan capture.State, 8),
		stats:   make(chan checkin.Stats, 1),
	}
}

// Out is the writer the console prints to. Capture feedback should share it.
func (c *Console) Out() io.Writer {
	return c.out
}

// Run serves operator input until quit, EOF or ctx is done. The camera is
// stopped on return.
func (c *Console) Run(ctx context.Context) error {
	c.setTheme(c.prefs.Theme(ctx))
	c.session.OnScan(func(s capture.Scan) { post(c.scans, s) })
	c.session.OnCapabilities(func(s capture.Snapshot) { post(c.caps, s) })
	c.session.OnState(func(s capture.State) { post(c.state, s) })
	c.orch.OnChange(func(v checkin.View) { postLatest(c.stats, v.Stats) })
	defer c.session.Stop(context.Background())

	renderBanner(c.out, c.palette, c.theme)
	c.orch.RefreshStats(ctx)
	c.showStats(c.orch.View().Stats)
	c.prompt()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if quit := c.handleLine(ctx, line); quit {
				return nil
			}
			c.prompt()
		case scan := <-c.scans:
			c.handleScan(ctx, scan)
			c.prompt()
		case snap := <-c.caps:
			c.log.Debugf("capabilities: torch=%v zoom=%v", snap.TorchSupported, snap.ZoomSupported)
			c.renderCamera()
		case st := <-c.state:
			if st == capture.StateActive || st == capture.StateIdle {
				c.renderCamera()
			}
		case s := <-c.stats:
			if s != c.shownStats {
				c.showStats(s)
				c.prompt()
			}
		}
	}
}

func post[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// postLatest replaces whatever ch holds with v.
func postLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (c *Console) showStats(s checkin.Stats) {
	c.shownStats = s
	renderStats(c.out, c.palette, s)
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, c.palette.paint(c.palette.Accent, "> "))
}

func (c *Console) setTheme(t prefs.Theme) {
	c.theme = t
	c.palette = PaletteFor(t, c.color)
}

func (c *Console) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if c.wedge != nil {
		if !strings.HasPrefix(line, commandPrefix) {
			c.feedWedge(ctx, line)
			return false
		}
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, commandPrefix))

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprint(c.out, helpText)
	case "scan":
		c.startCamera(ctx)
	case "stop":
		if err := c.session.Stop(ctx); err != nil {
			c.printErr(err.Error())
		}
	case "flip":
		if err := c.session.SwitchFacing(ctx); err != nil {
			c.printErr(err.Error())
		}
		if c.session.State() == capture.StateIdle {
			c.renderCamera()
		}
	case "torch":
		c.toggleTorch(ctx)
	case "zoom":
		c.zoom(ctx, arg)
	case "find", "search":
		c.lookup(ctx, arg)
	case "yes", "y", "checkin":
		c.checkIn(ctx)
	case "stats":
		c.orch.RefreshStats(ctx)
		c.showStats(c.orch.View().Stats)
	case "theme":
		c.setTheme(c.theme.Toggle())
		c.prefs.SetTheme(ctx, c.theme)
		renderBanner(c.out, c.palette, c.theme)
	case "clear":
		c.orch.Dismiss()
	default:
		c.printErr(fmt.Sprintf("Unknown command %q, type help", cmd))
	}
	return false
}

func (c *Console) feedWedge(ctx context.Context, line string) {
	if c.session.State() == capture.StateIdle {
		if !c.startCamera(ctx) {
			return
		}
	}
	if !c.wedge.Feed(line) {
		c.log.Debugf("wedge dropped %q", line)
	}
}

func (c *Console) startCamera(ctx context.Context) bool {
	if err := c.session.Start(ctx, c.session.Facing()); err != nil {
		c.printErr(err.Error())
		return false
	}
	return true
}

func (c *Console) toggleTorch(ctx context.Context) {
	if c.session.State() != capture.StateActive {
		c.printErr("Camera is not running")
		return
	}
	if !c.session.Snapshot().TorchSupported {
		c.printErr("Torch not supported on this camera")
		return
	}
	c.session.ToggleTorch(ctx)
	c.renderCamera()
}

func (c *Console) zoom(ctx context.Context, arg string) {
	if c.session.State() != capture.StateActive {
		c.printErr("Camera is not running")
		return
	}
	if !c.session.Snapshot().ZoomSupported {
		c.printErr("Zoom not supported on this camera")
		return
	}
	level, err := strconv.ParseFloat(strings.TrimSuffix(arg, "x"), 64)
	if err != nil {
		c.printErr(fmt.Sprintf("Invalid zoom level %q", arg))
		return
	}
	c.session.SetZoom(ctx, level)
	c.renderCamera()
}

func (c *Console) handleScan(ctx context.Context, scan capture.Scan) {
	fmt.Fprintf(c.out, "\n%s %s\n", c.palette.paint(c.palette.Muted, "Scanned:"), scan.Text)
	c.lookup(ctx, scan.Text)
}

func (c *Console) lookup(ctx context.Context, regNo string) {
	if _, err := c.orch.Lookup(ctx, regNo); errors.Is(err, checkin.ErrEmptyQuery) {
		c.printErr("Enter a registration number")
		return
	}
	renderView(c.out, c.palette, c.orch.View())
}

func (c *Console) checkIn(ctx context.Context) {
	v := c.orch.View()
	if v.Result == nil {
		c.printErr("Nothing to check in, look up a participant first")
		return
	}
	if v.Result.Scanned() {
		fmt.Fprintln(c.out, c.palette.paint(c.palette.Muted, "Already verified, no action needed"))
		return
	}
	// The stats refresh that follows a success lands on c.stats.
	c.orch.CheckIn(ctx, v.Result.RegistrationNo)
	renderView(c.out, c.palette, c.orch.View())
}

func (c *Console) renderCamera() {
	renderCapture(c.out, c.palette, c.session.State(), c.session.Facing(), c.session.Snapshot(), c.session.TorchOn())
}

func (c *Console) printErr(msg string) {
	fmt.Fprintln(c.out, c.palette.paint(c.palette.Error, msg))
}
