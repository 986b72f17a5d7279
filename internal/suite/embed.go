package suite

import (
	"embed"
	"fmt"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
)

//go:embed suites/*.json
var embeddedFS embed.FS

// loadEmbedded decodes the built-in default suites, applying the same
// filters as disk loading.
func loadEmbedded(cfg config.TestsConfig) ([]scanner.TestCase, []Warning) {
	var cases []scanner.TestCase
	var warnings []Warning

	entries, err := embeddedFS.ReadDir("suites")
	if err != nil {
		warnings = append(warnings, Warning{File: "embedded", Reason: fmt.Sprintf("read embedded suites: %v", err)})
		return nil, warnings
	}

	for _, entry := range entries {
		data, err := embeddedFS.ReadFile("suites/" + entry.Name())
		if err != nil {
			warnings = append(warnings, Warning{File: entry.Name(), Reason: err.Error()})
			continue
		}
		decoded, w := decodeSuite(entry.Name(), data, cfg)
		warnings = append(warnings, w...)
		cases = append(cases, decoded...)
	}
	return cases, warnings
}
