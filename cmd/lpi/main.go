package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is a package-level var printed by -v.
var version = "1.0.0"

var cmdRoot = &cobra.Command{
	Use:   "lpi [flags] PATH...",
	Short: "Parallel log-address indexer",
	Long: `
lpi scans log files for IPv4, IPv6, and MAC addresses and emits a sorted
inverted index mapping each address to every (line, field) it occurred at.

Pass one or more file paths, or "-" to read from standard input.
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOptions.showVersion {
			fmt.Println("lpi", version)
			return nil
		}
		if len(args) == 0 {
			return cmd.Help()
		}
		return RunIndexer(cmd.Context(), args, runOptions)
	},
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lpi:", err)
		os.Exit(1)
	}
}
