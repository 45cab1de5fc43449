package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gatewayd",
	Short: "Solar Gateway - multi-channel AI request router",
	Long: `gatewayd routes requests from Telegram, n8n, and deferred task
execution through a shared policy engine: it picks an AI provider, keeps
per-conversation context, classifies the result into a decision, and
optionally materializes a follow-up task.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routerCmd)
	rootCmd.AddCommand(taskCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
