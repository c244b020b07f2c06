package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints the check-in counters from the backend.",
	Long:  "Prints how many participants are registered, checked in and remaining.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		stats, err := client.Stats(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "REGISTERED\tCHECKED IN\tREMAINING\tPROGRESS\t")
		fmt.Fprintf(w, "%d\t%d\t%d\t%d%%\t\n", stats.Total, stats.Scanned, stats.Remaining, stats.Percentage())
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
