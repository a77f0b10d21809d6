package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aletta",
	Short: "Call-trace diagnostics for EVM and Stylus transactions",
	Long: "aletta explains failed transactions: it rebuilds the call tree from a callTracer trace, " +
		"locates the failing frame and suggests fixes.",
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	rootCmd.AddCommand(serveCmd, analyzeCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
