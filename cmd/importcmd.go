package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/suite"
)

var (
	importOutputDir string
	importFilename  string
	importLimit     int
	importMapFields []string
)

var importCmd = &cobra.Command{
	Use:   "import <file-or-url>",
	Short: "Import an external prompt dataset as a test suite",
	Long: `Import converts an external dataset (JSON or CSV, local file or HTTP URL)
into a normalized test suite file. Use --map to rename source fields, e.g.
--map user_prompt=prompt --map severity=risk_level.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importOutputDir, "output-dir", "o", "test_suites", "Directory for the generated suite file")
	importCmd.Flags().StringVar(&importFilename, "name", "parsed", "Output file name without extension")
	importCmd.Flags().IntVar(&importLimit, "limit", 0, "Max tests to import (0 = no limit)")
	importCmd.Flags().StringArrayVar(&importMapFields, "map", nil, "Field mapping target=source (repeatable)")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	mapping := suite.DefaultMapping()
	for _, m := range importMapFields {
		target, source, ok := strings.Cut(m, "=")
		if !ok {
			return fmt.Errorf("invalid --map %q: expected target=source", m)
		}
		mapping[target] = source
	}

	count, err := suite.Import(args[0], suite.ImportOptions{
		OutputDir: importOutputDir,
		Filename:  importFilename,
		Mapping:   mapping,
		Limit:     importLimit,
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Printf("Imported %d tests into %s/%s.json\n", count, importOutputDir, importFilename)
	return nil
}
