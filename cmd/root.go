package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "llmmap",
	Short:   "LLM vulnerability scanner: prompt injection, jailbreak, data disclosure",
	Long:    `llmmap probes an LLM API endpoint with adversarial test suites covering prompt injection, jailbreaks, system prompt leaks, and data disclosure, scores every response with an LLM judge, and produces terminal, JSON, Markdown, or HTML reports.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
