package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/acmchapter/gatepass/internal/devserver"
	"github.com/acmchapter/gatepass/internal/utils"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Runs an in-memory backend for trying the terminal out.",
	Long:  "Runs an in-memory backend serving /api/stats, /api/search and /api/checkin. Nothing is persisted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		seed, _ := cmd.Flags().GetInt("seed")
		rosterPath, _ := cmd.Flags().GetString("roster")

		roster := devserver.NewRoster()
		if rosterPath != "" {
			f, err := os.Open(rosterPath)
			if err != nil {
				return fmt.Errorf("opening roster: %w", err)
			}
			n, err := roster.Load(f)
			f.Close()
			if err != nil {
				return err
			}
			utils.Log.Infof("Loaded %d participants from %s", n, rosterPath)
		}
		if seed > 0 {
			roster.Seed(seed)
			utils.Log.Infof("Seeded %d participants (REG100-REG%d)", seed, 100+seed-1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return devserver.New(roster, utils.Log).Start(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().String("addr", ":5000", "HTTP listen address")
	devserverCmd.Flags().Int("seed", 50, "Number of generated participants (REG100, REG101, ...)")
	devserverCmd.Flags().String("roster", "", "CSV file with name,regNo rows")
}
