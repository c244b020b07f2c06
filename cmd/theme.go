package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acmchapter/gatepass/pkg/prefs"
)

var themeCmd = &cobra.Command{
	Use:       "theme [light|dark|toggle]",
	Short:     "Shows or sets the terminal color theme.",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"light", "dark", "toggle"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store := openPrefs()
		defer store.Close()

		current := store.Theme(ctx)
		if len(args) == 0 {
			fmt.Println(current)
			return nil
		}

		var next prefs.Theme
		switch strings.ToLower(args[0]) {
		case "light":
			next = prefs.ThemeLight
		case "dark":
			next = prefs.ThemeDark
		case "toggle":
			next = current.Toggle()
		default:
			return fmt.Errorf("unknown theme %q (available: light, dark, toggle)", args[0])
		}
		store.SetTheme(ctx, next)
		fmt.Println(next)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(themeCmd)
}
