package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/acmchapter/gatepass/pkg/capture"
	"github.com/acmchapter/gatepass/pkg/capture/v4l2"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Lists the cameras the capture engine can use.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		name, _ := cmd.Flags().GetString("engine")
		if name == "" {
			name = viper.GetString("capture.engine")
		}
		engine, _, err := buildEngine(name)
		if err != nil {
			return err
		}
		cams, err := engine.Cameras(ctx)
		if err != nil {
			return err
		}
		if len(cams) == 0 {
			fmt.Println("No cameras found.")
			return nil
		}

		showCaps, _ := cmd.Flags().GetBool("caps")
		_, isV4L2 := engine.(*v4l2.Engine)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		if showCaps && isV4L2 {
			fmt.Fprintln(w, "ID\tLABEL\tCAPABILITIES\t")
		} else {
			fmt.Fprintln(w, "ID\tLABEL\t")
		}
		for _, c := range cams {
			if showCaps && isV4L2 {
				t := &v4l2.Track{Device: c.ID, Ctl: v4l2.DefaultCtl, Run: v4l2.ExecRunner}
				fmt.Fprintf(w, "%s\t%s\t%s\t\n", c.ID, c.Label, describeCaps(ctx, t))
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t\n", c.ID, c.Label)
		}
		w.Flush()
		return nil
	},
}

func describeCaps(ctx context.Context, t capture.Track) string {
	caps, err := t.Capabilities(ctx)
	if err != nil {
		return "unknown"
	}
	var parts []string
	if caps.Width != nil && caps.Height != nil {
		parts = append(parts, fmt.Sprintf("%.0fx%.0f", caps.Width.Max, caps.Height.Max))
	}
	if len(caps.FocusModes) > 0 {
		parts = append(parts, "focus:"+strings.Join(caps.FocusModes, "/"))
	}
	if caps.Zoom != nil && caps.Zoom.Max > 1 {
		parts = append(parts, fmt.Sprintf("zoom:%.1fx", caps.Zoom.Max))
	}
	if caps.Torch {
		parts = append(parts, "torch")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(camerasCmd)
	camerasCmd.Flags().String("engine", "", "Capture engine: v4l2 or wedge (default from capture.engine)")
	camerasCmd.Flags().Bool("caps", false, "Query each camera's controls with v4l2-ctl")
}
