package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acmchapter/gatepass/internal/utils"
	"github.com/acmchapter/gatepass/pkg/checkin"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <regNo>",
	Short: "Marks a participant as checked in.",
	Long:  "Marks a participant as checked in. A participant that was already checked in is reported with the original scan time and is not an error.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		orch := checkin.NewOrchestrator(client, utils.Log)
		out := orch.CheckIn(context.Background(), args[0])
		orch.Wait()

		switch out.Kind {
		case checkin.OutcomeSuccess:
			fmt.Println(checkin.MsgCheckinSuccess)
			printParticipant(out.Participant)
			s := orch.View().Stats
			fmt.Printf("%d/%d checked in (%d%%)\n", s.Scanned, s.Total, s.Percentage())
		case checkin.OutcomeConflict:
			fmt.Println(out.Message)
		default:
			if errors.Is(out.Err, checkin.ErrEmptyQuery) {
				return out.Err
			}
			return errors.New(out.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkinCmd)
}
