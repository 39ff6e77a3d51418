package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bilifav/bilifavdl/internal/bili"
	"github.com/bilifav/bilifavdl/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a pass immediately, then repeat on a fixed interval",
	Long: `Watch behaves like run but keeps the process alive, repeating the pass
every interval_hours (default 6). Failures of a single pass are logged and the
schedule continues; only an invalid session cookie stops the loop.`,
	Example: ` bilifavdl watch
 bilifavdl watch --interval-hours 12`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval := runCfg.Interval()
		for {
			if err := runOnce(cmd); err != nil {
				if bili.IsKind(err, bili.ErrKindAuth) {
					return err
				}
				logger.Errorf("pass failed: %v", err)
			}

			logger.Infof("next pass in %s", interval)
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(interval):
			}
		}
	},
}

// runOnce builds a fresh pipeline per pass so each pass re-reads the
// history written by the previous one.
func runOnce(cmd *cobra.Command) error {
	p, err := pipeline.New(&runCfg, logger)
	if err != nil {
		return err
	}
	summary, err := p.Run(cmd.Context())
	if summary != nil {
		summary.Print(os.Stdout)
	}
	return err
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Int("interval-hours", pipeline.DefaultIntervalHours, "Hours between passes")
	cobra.CheckErr(viper.BindPFlag("interval_hours", watchCmd.Flags().Lookup("interval-hours")))
}
