package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acmchapter/gatepass/internal/utils"
	"github.com/acmchapter/gatepass/pkg/checkin"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `                 __
	  ____ _____ _/ /____  ____  ____ ___________
	 / __ '/ __ '/ __/ _ \/ __ \/ __ '/ ___/ ___/
	/ /_/ / /_/ / /_/  __/ /_/ / /_/ (__  |__  )
	\__, /\__,_/\__/\___/ .___/\__,_/____/____/
	/____/             /_/

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gatepass",
	Short: "Event gate-pass check-in terminal.",
	Long: LOGO + `gatepass scans participant codes with a camera or a USB scanner, looks them up
against the event backend and checks them in, right from your terminal.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gatepass.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("api-url", "", "Backend base URL (default "+checkin.DefaultBaseURL+", env GATEPASS_API_URL)")
	viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("api-url"))
}

func setDefaults() {
	viper.SetDefault("api.url", checkin.DefaultBaseURL)
	viper.SetDefault("api.retries", 1)
	viper.SetDefault("capture.engine", "v4l2")
	viper.SetDefault("capture.device", "")
	viper.SetDefault("capture.native_decoder", "")
	viper.SetDefault("capture.facing", "environment")
	viper.SetDefault("capture.viewport", "1280x720")
	viper.SetDefault("capture.stop_on_scan", true)
	viper.SetDefault("prefs.path", "~/.config/gatepass/prefs.sqlite")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".gatepass")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GATEPASS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".gatepass.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Debugf("Could not create config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := utils.SetLogLevel(levelString); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// newAPIClient builds the backend client from the configuration.
func newAPIClient() (*checkin.Client, error) {
	return checkin.NewClient(viper.GetString("api.url"), viper.GetInt("api.retries"), utils.HTTPLogger{L: utils.Log})
}

// expandPath resolves a leading ~ in configured paths.
func expandPath(p string) string {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return p
	}
	return expanded
}
