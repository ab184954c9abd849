package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "llmtape",
	Short: "Record and replay LLM API traffic",
	Long:  "Capture every call an agent makes to an LLM API into a session file,\nthen replay the session deterministically: same requests, same responses,\nno network, no API spend.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
