package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/suite"
)

var (
	listCategories []string
	listSeverity   string
	listSuitesPath string
	listCustomPath string
	listVerbose    bool
)

var listTestsCmd = &cobra.Command{
	Use:   "list-tests",
	Short: "List available security tests by category",
	RunE:  runListTests,
}

func init() {
	listTestsCmd.Flags().StringSliceVarP(&listCategories, "categories", "l", nil, "Only list these categories")
	listTestsCmd.Flags().StringVarP(&listSeverity, "severity", "s", "", "Only list tests at or above: critical, high, medium, low")
	listTestsCmd.Flags().StringVar(&listSuitesPath, "test-suites", "", "Directory with test suite JSON files")
	listTestsCmd.Flags().StringVar(&listCustomPath, "custom-tests", "", "Additional directory with custom test JSON files")
	listTestsCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Include test descriptions")

	rootCmd.AddCommand(listTestsCmd)
}

func runListTests(cmd *cobra.Command, args []string) error {
	tests := config.DefaultTests()
	if listSuitesPath != "" {
		tests.TestSuitesPath = listSuitesPath
	}
	if listCustomPath != "" {
		tests.CustomTestsPath = listCustomPath
	}
	tests.EnabledCategories = config.CategoryList(listCategories)
	if listSeverity != "" {
		sev, ok := scanner.ParseSeverity(listSeverity)
		if !ok {
			return fmt.Errorf("unknown severity %q", listSeverity)
		}
		var filter []scanner.Severity
		for _, s := range scanner.AllSeverities {
			if s.Rank() >= sev.Rank() {
				filter = append(filter, s)
			}
		}
		tests.SeverityFilter = filter
	}

	cases, warnings, err := suite.Load(tests)
	if err != nil {
		return fmt.Errorf("load test suites: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  [!] %s\n", w)
	}

	header := color.New(color.FgBlue, color.Bold)
	for category, tcs := range cases {
		header.Printf("%s (%d tests)\n", category, len(tcs))
		for _, tc := range tcs {
			fmt.Printf("  %-10s %-8s %s\n", tc.ID, tc.Severity, tc.Name)
			if listVerbose && tc.Description != "" {
				fmt.Printf("             %s\n", tc.Description)
			}
		}
		fmt.Println()
	}
	fmt.Printf("Total: %d tests\n", suite.Count(cases))
	return nil
}
