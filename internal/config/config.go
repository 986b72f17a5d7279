// Package config holds the scan configuration tree: provider adapter
// settings, test execution settings, and reporting preferences, with
// round-trip YAML load/save. Missing sections take their defaults; loaded
// values are validated field by field.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/provider"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
)

// Report output formats accepted by reporting.format.
const (
	FormatJSON     = "json"
	FormatHTML     = "html"
	FormatPDF      = "pdf"
	FormatMarkdown = "markdown"
)

var allowedFormats = []string{FormatJSON, FormatHTML, FormatPDF, FormatMarkdown}

// ReportingConfig controls how scan results are rendered and written.
type ReportingConfig struct {
	Format                 string             `yaml:"format"`
	OutputDir              string             `yaml:"output_dir"`
	IncludeExamples        bool               `yaml:"include_examples"`
	IncludeRecommendations bool               `yaml:"include_recommendations"`
	SeverityLevels         []scanner.Severity `yaml:"severity_levels"`
	MaxExamplesPerVuln     int                `yaml:"max_examples_per_vuln"`
}

// DefaultReporting returns the reporting defaults: json to ./reports,
// examples and recommendations on, medium and above, 3 examples per
// vulnerability.
func DefaultReporting() ReportingConfig {
	return ReportingConfig{
		Format:                 FormatJSON,
		OutputDir:              "./reports",
		IncludeExamples:        true,
		IncludeRecommendations: true,
		SeverityLevels: []scanner.Severity{
			scanner.SeverityMedium,
			scanner.SeverityHigh,
			scanner.SeverityCritical,
		},
		MaxExamplesPerVuln: 3,
	}
}

// Includes reports whether findings of the given severity are selected.
func (r ReportingConfig) Includes(s scanner.Severity) bool {
	for _, level := range r.SeverityLevels {
		if level == s {
			return true
		}
	}
	return false
}

// CategoryList is a list of enabled test categories. In YAML it accepts
// either a sequence or the scalar "all"; empty means all categories.
type CategoryList []string

func (c *CategoryList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value == "all" || value.Value == "" {
			*c = nil
			return nil
		}
		*c = CategoryList{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*c = CategoryList(list)
	return nil
}

// All reports whether every category is enabled.
func (c CategoryList) All() bool {
	return len(c) == 0
}

// Contains reports whether a category is enabled.
func (c CategoryList) Contains(category string) bool {
	if c.All() {
		return true
	}
	for _, v := range c {
		if v == category {
			return true
		}
	}
	return false
}

// TestsConfig controls which tests run and how fast.
type TestsConfig struct {
	EnabledCategories  CategoryList       `yaml:"enabled_categories"`
	SeverityFilter     []scanner.Severity `yaml:"severity_filter"`
	TestSuitesPath     string             `yaml:"test_suites_path"`
	CustomTestsPath    string             `yaml:"custom_tests_path"`
	MaxConcurrentTests int                `yaml:"max_concurrent_tests"`
	RequestsPerSecond  float64            `yaml:"requests_per_second"`
	BatchSize          int                `yaml:"batch_size"`
}

// DefaultTests returns the test execution defaults.
func DefaultTests() TestsConfig {
	return TestsConfig{
		SeverityFilter:     append([]scanner.Severity(nil), scanner.AllSeverities...),
		TestSuitesPath:     "./test_suites",
		MaxConcurrentTests: 5,
		BatchSize:          10,
	}
}

// ScanConfig is the root configuration aggregate.
type ScanConfig struct {
	LLM       provider.Config `yaml:"llm"`
	Tests     TestsConfig     `yaml:"tests"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// Default returns a ScanConfig with every section at its defaults.
func Default() *ScanConfig {
	return &ScanConfig{
		LLM:       provider.DefaultConfig(),
		Tests:     DefaultTests(),
		Reporting: DefaultReporting(),
	}
}

// Load reads a UTF-8 YAML document from path and constructs a validated
// ScanConfig. Missing keys take their defaults. File errors wrap the
// underlying path error (errors.Is with fs.ErrNotExist works); malformed
// YAML yields *ParseError; constraint violations yield *ValidationError.
func Load(path string) (*ScanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes severity spellings and checks every field constraint.
func (c *ScanConfig) Validate() error {
	r := &c.Reporting

	formatOK := false
	for _, f := range allowedFormats {
		if r.Format == f {
			formatOK = true
			break
		}
	}
	if !formatOK {
		return &ValidationError{
			Field:  "reporting.format",
			Reason: fmt.Sprintf("%q is not one of json, html, pdf, markdown", r.Format),
		}
	}

	if r.OutputDir == "" {
		return &ValidationError{Field: "reporting.output_dir", Reason: "must not be empty"}
	}

	if r.MaxExamplesPerVuln < 1 {
		return &ValidationError{
			Field:  "reporting.max_examples_per_vuln",
			Reason: fmt.Sprintf("must be >= 1, got %d", r.MaxExamplesPerVuln),
		}
	}

	for i, s := range r.SeverityLevels {
		sev, ok := scanner.ParseSeverity(string(s))
		if !ok {
			return &ValidationError{
				Field:  "reporting.severity_levels",
				Reason: fmt.Sprintf("unknown severity %q", s),
			}
		}
		r.SeverityLevels[i] = sev
	}

	t := &c.Tests
	if t.MaxConcurrentTests < 1 || t.MaxConcurrentTests > 50 {
		return &ValidationError{
			Field:  "tests.max_concurrent_tests",
			Reason: fmt.Sprintf("must be between 1 and 50, got %d", t.MaxConcurrentTests),
		}
	}
	if t.RequestsPerSecond < 0 {
		return &ValidationError{
			Field:  "tests.requests_per_second",
			Reason: fmt.Sprintf("must be >= 0, got %g", t.RequestsPerSecond),
		}
	}
	if t.BatchSize < 1 {
		return &ValidationError{
			Field:  "tests.batch_size",
			Reason: fmt.Sprintf("must be >= 1, got %d", t.BatchSize),
		}
	}
	for i, s := range t.SeverityFilter {
		sev, ok := scanner.ParseSeverity(string(s))
		if !ok {
			return &ValidationError{
				Field:  "tests.severity_filter",
				Reason: fmt.Sprintf("unknown severity %q", s),
			}
		}
		t.SeverityFilter[i] = sev
	}

	return nil
}

// Save serializes the configuration to YAML at path, creating or truncating
// the file. Credential-bearing adapter fields are redacted first; resolved
// secrets never reach disk.
func (c *ScanConfig) Save(path string) error {
	out := *c
	out.LLM = c.LLM.Redacted()

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
