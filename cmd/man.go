package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var manCmd = &cobra.Command{
	Use:    "man",
	Short:  "Generate man pages for bilifavdl",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doc.GenManTree(rootCmd, &doc.GenManHeader{
			Title:   "BILIFAVDL",
			Section: "1",
		}, "man/")
	},
}

func init() {
	rootCmd.AddCommand(manCmd)
}
