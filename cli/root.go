package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is a root of all commands.
var rootCmd = &cobra.Command{
	Use:   "copymachine [command] [flags]",
	Short: "copy machine command-line interface",
	Long:  `copy machine command-line interface`,
	Run:   rootCmdRun,
}

func rootCmdRun(cmd *cobra.Command, args []string) {
	cmd.Help()
}

// Execute runs the command of the arguments.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add commands.
	rootCmd.AddCommand(cmCmd)
}
