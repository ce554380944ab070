package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "examcli",
	Short: "Take a timed exam from the terminal",
	Long: `examcli is a terminal client for exstem exams. It authenticates an
entry token, runs the timed session with periodic autosave, and submits
exactly once — on your command or automatically when time runs out.`,
}

// SetVersion sets the version information.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("examcli %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.AddCommand(takeCmd)
	rootCmd.AddCommand(versionCmd)
}
