package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bilifav/bilifavdl/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full pass over your favorites folders",
	Long: `Run enumerates your favorites folders (all of them, or only the ids listed
in target_folders), downloads every video not yet recorded in the download
history and prints a per-item summary.`,
	Example: ` bilifavdl run
 bilifavdl run --hdr -o /mnt/media/bilibili`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pipeline.New(&runCfg, logger)
		if err != nil {
			return err
		}

		summary, err := p.Run(cmd.Context())
		if summary != nil {
			summary.Print(os.Stdout)
		}
		if err != nil {
			return fmt.Errorf("run aborted: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int64Slice("target-folders", nil, "Only process these favorites folder ids")
	cobra.CheckErr(viper.BindPFlag("target_folders", runCmd.Flags().Lookup("target-folders")))
}
