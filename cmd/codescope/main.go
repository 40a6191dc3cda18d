package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codescope/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "codescope",
	Short: "codescope - code index and retrieval daemon",
	Long: `codescope is a long-lived code index and retrieval service. Agent clients
open sessions against repository roots and issue scoped queries - symbol
implementations, callers, per-file listings, regex grep, byte chunking -
instead of loading whole repositories into their context.`,
	Version: version.Info(),
}

func init() {
	rootCmd.SetVersionTemplate("codescope version {{.Version}}\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
