// Package report renders scan results to the terminal and to JSON, Markdown,
// and HTML files, honoring the reporting preferences from the scan config.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
)

var (
	separator = strings.Repeat("━", 46)

	colorCritical = color.New(color.FgRed, color.Bold)
	colorHigh     = color.New(color.FgRed)
	colorMedium   = color.New(color.FgYellow)
	colorLow      = color.New(color.FgCyan)
	colorHeader   = color.New(color.FgBlue, color.Bold)
	colorGood     = color.New(color.FgGreen)
)

func severityColor(s scanner.Severity) *color.Color {
	switch s {
	case scanner.SeverityCritical:
		return colorCritical
	case scanner.SeverityHigh:
		return colorHigh
	case scanner.SeverityMedium:
		return colorMedium
	default:
		return colorLow
	}
}

func scoreColor(score float64) *color.Color {
	switch {
	case score < 0.3:
		return colorGood
	case score < 0.7:
		return colorMedium
	default:
		return colorHigh
	}
}

// Write renders the result in the configured format into the configured
// output directory and returns the written path. The terminal format is not
// handled here; call PrintTerminal for that.
func Write(result *scanner.ScanResult, cfg config.ReportingConfig) (string, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	switch cfg.Format {
	case config.FormatJSON:
		path := filepath.Join(cfg.OutputDir, "scan_results.json")
		return path, WriteJSON(result, cfg, path)
	case config.FormatMarkdown:
		path := filepath.Join(cfg.OutputDir, "scan_report.md")
		return path, WriteMarkdown(result, cfg, path)
	case config.FormatHTML:
		path := filepath.Join(cfg.OutputDir, "scan_report.html")
		return path, WriteHTML(result, cfg, path)
	case config.FormatPDF:
		return "", fmt.Errorf("pdf output is accepted in config but no renderer is available yet; use json, html, or markdown")
	default:
		return "", fmt.Errorf("unknown report format %q", cfg.Format)
	}
}

// PrintTerminal outputs a colored security report to stdout.
func PrintTerminal(result *scanner.ScanResult, cfg config.ReportingConfig) {
	duration := result.EndTime.Sub(result.StartTime)

	fmt.Println(separator)
	fmt.Println("  LLMmap — LLM Security Scan Report")
	fmt.Printf("  Target: %s\n", result.Target)
	if result.Model != "" {
		fmt.Printf("  Model: %s\n", result.Model)
	}
	fmt.Printf("  Duration: %.1fs\n", duration.Seconds())
	fmt.Println(separator)

	s := result.Summary
	fmt.Println()
	colorHeader.Println("[SUMMARY]")
	fmt.Printf("  Total tests: %d\n", s.TotalTests)
	fmt.Printf("  Safe responses: %d\n", s.TotalTests-s.VulnerableCount)
	fmt.Printf("  Vulnerable responses: %d\n", s.VulnerableCount)
	if s.TotalTests > 0 {
		fmt.Printf("  Vulnerability rate: %.1f%%\n", float64(s.VulnerableCount)/float64(s.TotalTests)*100)
	}
	fmt.Print("  Average hack score: ")
	scoreColor(s.AvgHackScore).Printf("%.3f\n", s.AvgHackScore)

	if len(result.Stats) > 0 {
		fmt.Println()
		colorHeader.Println("[CATEGORIES]")
		fmt.Printf("  %-24s %6s %10s %10s %10s\n", "Category", "Tests", "Avg Hack", "Max Hack", "Avg Time")
		for _, cat := range sortedCategories(result) {
			cs := result.Stats[cat]
			fmt.Printf("  %-24s %6d ", cs.Category, cs.Total)
			scoreColor(cs.AvgHackScore).Printf("%10.3f", cs.AvgHackScore)
			fmt.Printf(" %10.3f %9.2fs\n", cs.MaxHackScore, cs.AvgResponseTime)
		}
	}

	if s.Cons != "" {
		fmt.Println()
		colorHigh.Println("[WEAKNESSES]")
		fmt.Printf("  %s\n", s.Cons)
	}
	if s.Pros != "" {
		fmt.Println()
		colorGood.Println("[STRENGTHS]")
		fmt.Printf("  %s\n", s.Pros)
	}

	if cfg.IncludeRecommendations && len(s.Recommendations) > 0 {
		fmt.Println()
		colorMedium.Println("[RECOMMENDATIONS]")
		for i, rec := range s.Recommendations {
			fmt.Printf("  %d. %s\n", i+1, rec)
		}
	}

	printVulnerable(result, cfg)

	if len(result.Insights) > 0 {
		fmt.Println()
		colorHeader.Println("[COMBINED RISKS]")
		for _, in := range result.Insights {
			fmt.Printf("  [%s] ", in.ID)
			severityColor(in.Severity).Printf("%s", in.Severity)
			fmt.Printf(" %s\n    %s\n", in.Title, in.Description)
		}
	}

	if critical := result.CriticalResults(); len(critical) > 0 {
		fmt.Println()
		colorCritical.Printf("CRITICAL: %d high-risk vulnerabilities found!\n", len(critical))
	}
	fmt.Println()
	fmt.Println(separator)
}

func printVulnerable(result *scanner.ScanResult, cfg config.ReportingConfig) {
	vulnerable := selectFindings(result, cfg)
	fmt.Println()
	if len(vulnerable) == 0 {
		colorGood.Println("[OK] No vulnerable tests at the selected severity levels")
		return
	}

	colorHigh.Printf("[VULNERABLE] %d tests:\n", len(vulnerable))
	perCategory := make(map[string]int)
	for _, r := range vulnerable {
		if cfg.IncludeExamples && perCategory[r.Category] >= cfg.MaxExamplesPerVuln {
			continue
		}
		perCategory[r.Category]++

		fmt.Printf("\n  %s: %s\n", r.TestID, r.TestName)
		fmt.Printf("  Category: %s, Severity: %s\n", r.Category, r.Severity)
		fmt.Print("  Hack Score: ")
		scoreColor(r.HackScore).Printf("%.3f\n", r.HackScore)
		if r.Error != "" {
			fmt.Printf("  Error: %s\n", r.Error)
		} else if cfg.IncludeExamples && r.ResponseContent != "" {
			fmt.Printf("  Response: %s\n", preview(r.ResponseContent, 150))
		}
	}
}

// selectFindings returns vulnerable results whose severity is selected by
// the reporting config.
func selectFindings(result *scanner.ScanResult, cfg config.ReportingConfig) []scanner.TestResult {
	var out []scanner.TestResult
	for _, r := range result.VulnerableResults() {
		if cfg.Includes(r.Severity) {
			out = append(out, r)
		}
	}
	return out
}

func sortedCategories(result *scanner.ScanResult) []string {
	cats := make([]string, 0, len(result.Stats))
	for cat := range result.Stats {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// jsonReport is the serialized shape of a scan run.
type jsonReport struct {
	ScanDate string                            `json:"scan_date"`
	Target   string                            `json:"target"`
	Model    string                            `json:"model,omitempty"`
	Summary  scanner.EvaluationSummary         `json:"summary"`
	Results  []jsonResult                      `json:"results"`
	Stats    map[string]*scanner.CategoryStats `json:"category_stats"`
	Insights []scanner.Insight                 `json:"insights,omitempty"`
}

type jsonResult struct {
	TestID          string  `json:"test_id"`
	TestName        string  `json:"test_name"`
	Category        string  `json:"category"`
	Severity        string  `json:"severity"`
	HackScore       float64 `json:"hack_score"`
	ResponseTime    float64 `json:"response_time"`
	Error           string  `json:"error,omitempty"`
	Prompt          string  `json:"prompt"`
	ResponsePreview string  `json:"response_preview,omitempty"`
}

// WriteJSON writes the scan result as indented JSON to path.
func WriteJSON(result *scanner.ScanResult, cfg config.ReportingConfig, path string) error {
	doc := jsonReport{
		ScanDate: result.StartTime.Format(time.RFC3339),
		Target:   result.Target,
		Model:    result.Model,
		Summary:  result.Summary,
		Stats:    result.Stats,
		Insights: result.Insights,
	}
	if !cfg.IncludeRecommendations {
		doc.Summary.Recommendations = nil
	}
	for _, r := range result.Results {
		jr := jsonResult{
			TestID:       r.TestID,
			TestName:     r.TestName,
			Category:     r.Category,
			Severity:     string(r.Severity),
			HackScore:    r.HackScore,
			ResponseTime: r.ResponseTime.Seconds(),
			Error:        r.Error,
			Prompt:       r.PromptUsed,
		}
		if cfg.IncludeExamples && r.ResponseContent != "" {
			jr.ResponsePreview = preview(r.ResponseContent, 200)
		}
		doc.Results = append(doc.Results, jr)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}

// WriteMarkdown writes the scan result as a Markdown report to path.
func WriteMarkdown(result *scanner.ScanResult, cfg config.ReportingConfig, path string) error {
	var b strings.Builder
	s := result.Summary

	b.WriteString("# LLMmap Security Report\n\n")
	fmt.Fprintf(&b, "**Target:** %s  \n", result.Target)
	if result.Model != "" {
		fmt.Fprintf(&b, "**Model:** %s  \n", result.Model)
	}
	fmt.Fprintf(&b, "**Scan Date:** %s  \n", result.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Duration:** %.1fs  \n\n", result.EndTime.Sub(result.StartTime).Seconds())

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Total tests | %d |\n", s.TotalTests)
	fmt.Fprintf(&b, "| Vulnerable responses | %d |\n", s.VulnerableCount)
	fmt.Fprintf(&b, "| Average hack score | %.3f |\n", s.AvgHackScore)
	fmt.Fprintf(&b, "| Max hack score | %.3f |\n", s.MaxHackScore)
	b.WriteString("\n")

	if len(result.Stats) > 0 {
		b.WriteString("## Categories\n\n")
		b.WriteString("| Category | Tests | Vulnerable | Avg Hack | Max Hack | Avg Time |\n")
		b.WriteString("|----------|-------|------------|----------|----------|----------|\n")
		for _, cat := range sortedCategories(result) {
			cs := result.Stats[cat]
			fmt.Fprintf(&b, "| %s | %d | %d | %.3f | %.3f | %.2fs |\n",
				cs.Category, cs.Total, cs.VulnerableCount, cs.AvgHackScore, cs.MaxHackScore, cs.AvgResponseTime)
		}
		b.WriteString("\n")
	}

	if s.Cons != "" {
		fmt.Fprintf(&b, "## Weaknesses\n\n%s\n\n", s.Cons)
	}
	if s.Pros != "" {
		fmt.Fprintf(&b, "## Strengths\n\n%s\n\n", s.Pros)
	}
	if cfg.IncludeRecommendations && len(s.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for i, rec := range s.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
		b.WriteString("\n")
	}

	vulnerable := selectFindings(result, cfg)
	if len(vulnerable) > 0 {
		b.WriteString("## Vulnerable Tests\n\n")
		perCategory := make(map[string]int)
		for _, r := range vulnerable {
			fmt.Fprintf(&b, "### %s: %s\n", r.TestID, r.TestName)
			fmt.Fprintf(&b, "**Category:** %s  \n", r.Category)
			fmt.Fprintf(&b, "**Severity:** %s  \n", r.Severity)
			fmt.Fprintf(&b, "**Hack Score:** %.3f  \n", r.HackScore)
			fmt.Fprintf(&b, "**Prompt:** %s  \n", preview(r.PromptUsed, 200))
			if cfg.IncludeExamples && r.ResponseContent != "" && perCategory[r.Category] < cfg.MaxExamplesPerVuln {
				perCategory[r.Category]++
				fmt.Fprintf(&b, "**Response:** %s\n", preview(r.ResponseContent, 200))
			}
			b.WriteString("\n")
		}
	}

	if len(result.Insights) > 0 {
		b.WriteString("## Combined Risks\n\n")
		for _, in := range result.Insights {
			fmt.Fprintf(&b, "### %s: %s\n", in.ID, in.Title)
			fmt.Fprintf(&b, "**Severity:** %s  \n", in.Severity)
			fmt.Fprintf(&b, "**Categories:** %s  \n", strings.Join(in.Categories, ", "))
			fmt.Fprintf(&b, "%s\n\n", in.Description)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}
