package cmd

import (
	"github.com/spf13/cobra"

	"github.com/memdump-analysis/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		version.Get().Print(cmd.OutOrStdout(), BinName())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
