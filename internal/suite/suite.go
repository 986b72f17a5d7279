// Package suite loads security test suites from JSON files. A suite file is
// either {"tests": [...]} or a bare array of test objects. When no suite
// directory exists on disk the embedded default suites are used.
package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
)

// rawTestCase mirrors the JSON schema before severity normalization.
type rawTestCase struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Severity    string         `json:"severity"`
	Payload     map[string]any `json:"payload"`
	Expected    map[string]any `json:"expected"`
}

type suiteFile struct {
	Tests []rawTestCase `json:"tests"`
}

// Warning describes a test entry that was skipped during loading.
type Warning struct {
	File   string
	TestID string
	Reason string
}

func (w Warning) String() string {
	if w.TestID != "" {
		return fmt.Sprintf("%s: test %s: %s", w.File, w.TestID, w.Reason)
	}
	return fmt.Sprintf("%s: %s", w.File, w.Reason)
}

// Load reads every suite file selected by cfg, applies the category and
// severity filters, and groups the surviving tests by category. Malformed
// entries are skipped and reported as warnings, not errors.
func Load(cfg config.TestsConfig) (map[string][]scanner.TestCase, []Warning, error) {
	var warnings []Warning
	byCategory := make(map[string][]scanner.TestCase)
	seen := make(map[string]bool)

	dirs := suiteDirs(cfg)
	if len(dirs) == 0 {
		// No suite directory on disk: fall back to the embedded defaults.
		cases, w := loadEmbedded(cfg)
		warnings = append(warnings, w...)
		for _, tc := range cases {
			if !seen[tc.ID] {
				seen[tc.ID] = true
				byCategory[tc.Category] = append(byCategory[tc.Category], tc)
			}
		}
		return byCategory, warnings, nil
	}

	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, warnings, fmt.Errorf("scan suite dir %s: %w", dir, err)
		}
		if len(files) == 0 {
			warnings = append(warnings, Warning{File: dir, Reason: "no json suite files found"})
			continue
		}

		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, warnings, fmt.Errorf("read suite file: %w", err)
			}
			cases, w := decodeSuite(filepath.Base(file), data, cfg)
			warnings = append(warnings, w...)
			for _, tc := range cases {
				if seen[tc.ID] {
					continue
				}
				seen[tc.ID] = true
				byCategory[tc.Category] = append(byCategory[tc.Category], tc)
			}
		}
	}

	return byCategory, warnings, nil
}

// suiteDirs returns the configured suite directories that exist on disk.
func suiteDirs(cfg config.TestsConfig) []string {
	var dirs []string
	for _, dir := range []string{cfg.TestSuitesPath, cfg.CustomTestsPath} {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// decodeSuite parses one suite document and filters its tests.
func decodeSuite(name string, data []byte, cfg config.TestsConfig) ([]scanner.TestCase, []Warning) {
	var warnings []Warning

	var sf suiteFile
	if err := json.Unmarshal(data, &sf); err != nil || sf.Tests == nil {
		// Not an object with "tests": try a bare array.
		if err := json.Unmarshal(data, &sf.Tests); err != nil {
			warnings = append(warnings, Warning{File: name, Reason: fmt.Sprintf("not a valid suite document: %v", err)})
			return nil, warnings
		}
	}

	var cases []scanner.TestCase
	for _, raw := range sf.Tests {
		tc, reason := normalize(raw)
		if reason != "" {
			warnings = append(warnings, Warning{File: name, TestID: raw.ID, Reason: reason})
			continue
		}
		if !cfg.EnabledCategories.Contains(tc.Category) {
			continue
		}
		if !severityEnabled(cfg.SeverityFilter, tc.Severity) {
			continue
		}
		cases = append(cases, tc)
	}
	return cases, warnings
}

// normalize validates required fields and canonicalizes the severity.
func normalize(raw rawTestCase) (scanner.TestCase, string) {
	if raw.ID == "" {
		return scanner.TestCase{}, "missing id"
	}
	if raw.Payload == nil {
		return scanner.TestCase{}, "missing payload"
	}
	if up, _ := raw.Payload["user_prompt"].(string); up == "" {
		return scanner.TestCase{}, "missing payload.user_prompt"
	}
	sev, ok := scanner.ParseSeverity(raw.Severity)
	if !ok {
		return scanner.TestCase{}, fmt.Sprintf("unknown severity %q", raw.Severity)
	}

	name := raw.Name
	if name == "" {
		name = "Unnamed Test"
	}
	category := raw.Category
	if category == "" {
		category = "prompt_injection"
	}

	return scanner.TestCase{
		ID:          raw.ID,
		Name:        name,
		Description: raw.Description,
		Category:    category,
		Severity:    sev,
		Payload:     raw.Payload,
		Expected:    raw.Expected,
	}, ""
}

func severityEnabled(filter []scanner.Severity, s scanner.Severity) bool {
	for _, f := range filter {
		if f == s {
			return true
		}
	}
	return false
}

// Count returns the total number of tests across all categories.
func Count(cases map[string][]scanner.TestCase) int {
	n := 0
	for _, c := range cases {
		n += len(c)
	}
	return n
}
