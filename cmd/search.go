package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/acmchapter/gatepass/pkg/checkin"
)

var searchCmd = &cobra.Command{
	Use:   "search <regNo>",
	Short: "Looks up a participant by registration number.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		p, err := client.Search(context.Background(), args[0])
		if err != nil {
			return err
		}
		printParticipant(p)
		return nil
	},
}

func printParticipant(p checkin.Participant) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name\t%s\n", p.Name)
	fmt.Fprintf(w, "Registration No.\t%s\n", p.RegistrationNo)
	fmt.Fprintf(w, "Status\t%s\n", p.Status)
	if p.ScannedAt != "" {
		fmt.Fprintf(w, "Scanned At\t%s\n", p.ScannedAt)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
