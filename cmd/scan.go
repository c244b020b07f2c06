package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/acmchapter/gatepass/internal/kiosk"
	"github.com/acmchapter/gatepass/internal/utils"
	"github.com/acmchapter/gatepass/pkg/capture"
	"github.com/acmchapter/gatepass/pkg/capture/v4l2"
	"github.com/acmchapter/gatepass/pkg/capture/wedge"
	"github.com/acmchapter/gatepass/pkg/checkin"
	"github.com/acmchapter/gatepass/pkg/prefs"
)

// scanCmd runs the interactive check-in terminal
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Runs the interactive check-in terminal.",
	Long: `Runs the interactive check-in terminal. Scan a code (or type "find <regNo>"),
review the participant and type "yes" to check them in. Type "help" for all commands.

With --engine wedge a USB scanner typing into this terminal is the camera; prefix
commands with ":" in that mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		engine, wedgeEngine, err := buildEngine(viper.GetString("capture.engine"))
		if err != nil {
			return err
		}

		width, height, err := utils.ParseSize(viper.GetString("capture.viewport"))
		if err != nil {
			return err
		}

		lock, err := utils.NewFileLock(utils.CaptureLockPath())
		if err != nil {
			return err
		}

		session := capture.NewSession(capture.Options{
			Engine:     engine,
			Viewport:   capture.FixedViewport{Width: width, Height: height},
			Feedback:   kiosk.Bell{W: os.Stdout},
			Lock:       lock,
			CameraID:   viper.GetString("capture.device"),
			StopOnScan: viper.GetBool("capture.stop_on_scan"),
			Log:        utils.Log,
		})
		if facing := capture.ParseFacing(viper.GetString("capture.facing")); facing != session.Facing() {
			session.SwitchFacing(ctx)
		}

		store := openPrefs()
		defer store.Close()

		noColor, _ := cmd.Flags().GetBool("no-color")
		console := kiosk.New(kiosk.Config{
			In:           os.Stdin,
			Out:          os.Stdout,
			Session:      session,
			Orchestrator: checkin.NewOrchestrator(client, utils.Log),
			Wedge:        wedgeEngine,
			Prefs:        store,
			Color:        !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd()),
			Log:          utils.Log,
		})
		if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func buildEngine(name string) (capture.Engine, *wedge.Engine, error) {
	switch strings.ToLower(name) {
	case "v4l2", "camera", "":
		e := v4l2.New(utils.Log)
		e.NativeDecoder = viper.GetString("capture.native_decoder")
		return e, nil, nil
	case "wedge", "keyboard":
		w := wedge.New()
		return w, w, nil
	default:
		return nil, nil, fmt.Errorf("unknown capture engine %q (available: v4l2, wedge)", name)
	}
}

// openPrefs opens the preference store. Failures leave a nil store, which
// keeps defaults and drops writes.
func openPrefs() *prefs.Store {
	store, err := prefs.Open(expandPath(viper.GetString("prefs.path")))
	if err != nil {
		utils.Log.Warnf("Preferences unavailable: %v", err)
		return nil
	}
	store.Log = utils.Log
	return store
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("engine", "", "Capture engine: v4l2 or wedge (default from capture.engine)")
	scanCmd.Flags().String("device", "", "Camera device, e.g. /dev/video2 (default: pick by facing)")
	scanCmd.Flags().String("facing", "", "Preferred camera: environment (rear) or user (front)")
	scanCmd.Flags().Bool("no-color", false, "Disable ANSI colors")
	viper.BindPFlag("capture.engine", scanCmd.Flags().Lookup("engine"))
	viper.BindPFlag("capture.device", scanCmd.Flags().Lookup("device"))
	viper.BindPFlag("capture.facing", scanCmd.Flags().Lookup("facing"))
}
