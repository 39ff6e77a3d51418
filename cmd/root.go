// Package cmd provides the commands and flags managed by cobra for the CLI
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bilifav/bilifavdl/internal/keyringconfig"
	"github.com/bilifav/bilifavdl/internal/pipeline"
)

const configName = "config"

var (
	runCfg pipeline.Config
	logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
)

var rootCmd = &cobra.Command{
	Use:   "bilifavdl",
	Short: "Archive your bilibili favorites folders to disk",
	Long: `bilifavdl downloads the videos referenced from your bilibili favorites
folders: it picks the best available audio/video renditions, remuxes them into
playable mp4 files and remembers what it already downloaded, so repeated runs
only fetch new additions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipsCredential(cmd) {
			return nil
		}

		if err := viper.Unmarshal(&runCfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		cookie, err := keyringconfig.GetCookie(runCfg.Cookies)
		if err != nil {
			return err
		}
		runCfg.Cookies = cookie
		return nil
	},
}

// skipsCredential reports whether cmd can run without a session cookie.
func skipsCredential(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "man", "completion", "version", "help":
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "configure" {
			return true
		}
	}
	return false
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringP("save-path", "o", pipeline.DefaultSavePath, "Directory downloads are saved to")
	rootCmd.PersistentFlags().
		String("cookies", "", "Session cookie string (overrides the configured one)")
	rootCmd.PersistentFlags().
		Bool("hdr", false, "Prefer HDR renditions when available")
	rootCmd.PersistentFlags().
		BoolP("quiet", "q", false, "Disable download progress bars")

	cobra.CheckErr(viper.BindPFlag("save_path", rootCmd.PersistentFlags().Lookup("save-path")))
	cobra.CheckErr(viper.BindPFlag("cookies", rootCmd.PersistentFlags().Lookup("cookies")))
	cobra.CheckErr(viper.BindPFlag("download_hdr", rootCmd.PersistentFlags().Lookup("hdr")))
	cobra.CheckErr(viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet")))

	viper.SetDefault("folder_history", true)
	viper.SetDefault("interval_hours", pipeline.DefaultIntervalHours)
}

func initConfig() {
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	configPath := filepath.Join(home, ".config", "bilifavdl") // ~/.config/bilifavdl
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".") // cwd
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("BILIFAVDL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err = viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
