package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
)

//go:embed templates/report.html
var htmlTemplate string

type htmlFinding struct {
	TestID    string
	TestName  string
	Category  string
	Severity  scanner.Severity
	HackScore float64
	Prompt    string
	Response  string
}

type htmlData struct {
	Target          string
	Model           string
	ScanDate        string
	Duration        string
	Summary         scanner.EvaluationSummary
	VulnRate        float64
	Categories      []*scanner.CategoryStats
	Findings        []htmlFinding
	Insights        []scanner.Insight
	Recommendations []string
	GeneratedAt     string
}

// WriteHTML writes the scan result as a standalone HTML report to path.
func WriteHTML(result *scanner.ScanResult, cfg config.ReportingConfig, path string) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"score": func(f float64) string { return fmt.Sprintf("%.3f", f) },
		"sevClass": func(s scanner.Severity) string {
			switch s {
			case scanner.SeverityCritical:
				return "critical"
			case scanner.SeverityHigh:
				return "high"
			case scanner.SeverityMedium:
				return "medium"
			default:
				return "low"
			}
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}

	data := htmlData{
		Target:      result.Target,
		Model:       result.Model,
		ScanDate:    result.StartTime.Format("2006-01-02 15:04:05"),
		Duration:    fmt.Sprintf("%.1fs", result.EndTime.Sub(result.StartTime).Seconds()),
		Summary:     result.Summary,
		GeneratedAt: time.Now().Format(time.RFC1123),
		Insights:    result.Insights,
	}
	if result.Summary.TotalTests > 0 {
		data.VulnRate = float64(result.Summary.VulnerableCount) / float64(result.Summary.TotalTests) * 100
	}
	for _, cat := range sortedCategories(result) {
		data.Categories = append(data.Categories, result.Stats[cat])
	}
	if cfg.IncludeRecommendations {
		data.Recommendations = result.Summary.Recommendations
	}

	perCategory := make(map[string]int)
	for _, r := range selectFindings(result, cfg) {
		f := htmlFinding{
			TestID:    r.TestID,
			TestName:  r.TestName,
			Category:  r.Category,
			Severity:  r.Severity,
			HackScore: r.HackScore,
			Prompt:    preview(r.PromptUsed, 300),
		}
		if cfg.IncludeExamples && r.ResponseContent != "" && perCategory[r.Category] < cfg.MaxExamplesPerVuln {
			perCategory[r.Category]++
			f.Response = preview(r.ResponseContent, 300)
		}
		data.Findings = append(data.Findings, f)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	defer out.Close()

	if err := tmpl.Execute(out, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
