package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/evaluator"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/provider"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/report"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/suite"
)

var (
	target        string
	model         string
	configFile    string
	adapterFile   string
	apiKey        string
	outputFormat  string
	outputDir     string
	categories    []string
	severityMin   string
	concurrency   int
	rps           float64
	suitesPath    string
	customPath    string
	judgeAdapter  string
	dryRun        bool
	failOn        string
	verbose       bool
	quiet         bool
	noColor       bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run LLM security test suites against a target endpoint",
	Long:  `Run adversarial test suites against an LLM API endpoint, score every response with an LLM judge, and report vulnerable behavior per category.`,
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&target, "target", "t", "", "Target LLM API endpoint URL")
	scanCmd.Flags().StringVarP(&model, "model", "m", "", "Model name sent to the target API")
	scanCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML scan config (CLI flags override config)")
	scanCmd.Flags().StringVar(&adapterFile, "adapter", "", "Path to a separate adapter template YAML (overrides the llm section)")
	scanCmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the target (or set the env var named in the adapter config)")
	scanCmd.Flags().StringVarP(&outputFormat, "format", "F", "", "Report format: json, html, pdf, markdown (default from config)")
	scanCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for report files (default from config)")
	scanCmd.Flags().StringSliceVarP(&categories, "categories", "l", nil, "Test categories to run (default: all)")
	scanCmd.Flags().StringVarP(&severityMin, "severity", "s", "", "Only run tests at or above: critical, high, medium, low")
	scanCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Max concurrent test queries (default from config)")
	scanCmd.Flags().Float64Var(&rps, "rps", 0, "Request rate limit in requests per second (0 = unlimited)")
	scanCmd.Flags().StringVar(&suitesPath, "test-suites", "", "Directory with test suite JSON files")
	scanCmd.Flags().StringVar(&customPath, "custom-tests", "", "Additional directory with custom test JSON files")
	scanCmd.Flags().StringVar(&judgeAdapter, "judge-adapter", "", "Adapter template YAML for the judge model (default: same as target)")
	scanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the tests that would run and exit")
	scanCmd.Flags().StringVar(&failOn, "fail-on", "high", "Exit code 1 on vulnerable findings at or above this severity: critical, high, medium, low, none")
	scanCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	scanCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress banner and progress output")
	scanCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")

	rootCmd.AddCommand(scanCmd)
}

// loadScanConfig builds the effective config: file values first, then CLI
// flag overrides for flags explicitly set.
func loadScanConfig(cmd *cobra.Command) (*config.ScanConfig, error) {
	cfgPath := configFile
	if cfgPath == "" {
		for _, candidate := range []string{"llmmap.yaml", "llmmap.yml", ".llmmap.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
				break
			}
		}
	}

	var cfg *config.ScanConfig
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if adapterFile != "" {
		adapterCfg, err := provider.LoadConfig(adapterFile, map[string]string{"api_key": apiKey})
		if err != nil {
			return nil, fmt.Errorf("adapter config: %w", err)
		}
		cfg.LLM = *adapterCfg
	}

	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	if changed("target") {
		cfg.LLM.Endpoint.URL = target
	}
	if changed("model") {
		cfg.LLM.Request.ModelParameters.Model.Default = model
	}
	if changed("format") {
		cfg.Reporting.Format = outputFormat
	}
	if changed("output-dir") {
		cfg.Reporting.OutputDir = outputDir
	}
	if changed("categories") {
		cfg.Tests.EnabledCategories = config.CategoryList(categories)
	}
	if changed("severity") {
		sev, ok := scanner.ParseSeverity(severityMin)
		if !ok {
			return nil, fmt.Errorf("unknown severity %q", severityMin)
		}
		var filter []scanner.Severity
		for _, s := range scanner.AllSeverities {
			if s.Rank() >= sev.Rank() {
				filter = append(filter, s)
			}
		}
		cfg.Tests.SeverityFilter = filter
	}
	if changed("concurrency") {
		cfg.Tests.MaxConcurrentTests = concurrency
	}
	if changed("rps") {
		cfg.Tests.RequestsPerSecond = rps
	}
	if changed("test-suites") {
		cfg.Tests.TestSuitesPath = suitesPath
	}
	if changed("custom-tests") {
		cfg.Tests.CustomTestsPath = customPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if adapterFile == "" {
		if err := cfg.LLM.Resolve(map[string]string{"api_key": apiKey}); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return cfg, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if noColor {
		color.NoColor = true
	}

	cfg, err := loadScanConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.LLM.Endpoint.URL == "" {
		return fmt.Errorf("no target endpoint: set --target, llm.endpoint.url in the config, or --adapter")
	}

	cases, warnings, err := suite.Load(cfg.Tests)
	if err != nil {
		return fmt.Errorf("load test suites: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  [!] %s\n", w)
	}
	total := suite.Count(cases)
	if total == 0 {
		return fmt.Errorf("no tests match the enabled categories and severity filter")
	}

	if dryRun {
		printDryRun(cases, total)
		return nil
	}

	var logger *zap.Logger
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()
	}

	adapter := provider.New(cfg.LLM)

	judge := adapter
	if judgeAdapter != "" {
		judgeCfg, err := provider.LoadConfig(judgeAdapter, map[string]string{"api_key": apiKey})
		if err != nil {
			return fmt.Errorf("judge adapter config: %w", err)
		}
		judge = provider.New(*judgeCfg)
	}

	engine := scanner.New(adapter, evaluator.New(judge), scanner.Options{
		MaxConcurrent:     cfg.Tests.MaxConcurrentTests,
		RequestsPerSecond: cfg.Tests.RequestsPerSecond,
		BatchSize:         cfg.Tests.BatchSize,
		Logger:            logger,
	})

	if !quiet {
		fmt.Fprintf(os.Stderr, "llmmap v%s — LLM Security Scanner\n", version)
		fmt.Fprintf(os.Stderr, "Target: %s\n", cfg.LLM.Endpoint.URL)
		fmt.Fprintf(os.Stderr, "Tests:  %d across %d categories\n\n", total, len(cases))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Workers only bump the counter; the spinner suffix is written from a
	// single goroutine.
	progress := newScanProgress(total)
	stopTick := make(chan struct{})

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = progress.message()
		s.Start()
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stopTick:
					return
				case <-ticker.C:
					s.Suffix = progress.message()
				}
			}
		}()
	}

	result, err := engine.Run(ctx, cases, progress.update)

	close(stopTick)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if !quiet {
		report.PrintTerminal(result, cfg.Reporting)
	}

	path, err := report.Write(result, cfg.Reporting)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", path)

	if shouldFail(result, failOn) {
		os.Exit(1)
	}
	return nil
}

// scanProgress tracks completed tests across engine workers.
type scanProgress struct {
	done  atomic.Int64
	total int
}

func newScanProgress(total int) *scanProgress {
	return &scanProgress{total: total}
}

// update is the engine progress callback; it may be called concurrently.
func (p *scanProgress) update(done, total int) {
	p.done.Store(int64(done))
}

func (p *scanProgress) message() string {
	return fmt.Sprintf(" Running tests (%d/%d)...", p.done.Load(), p.total)
}

func printDryRun(cases map[string][]scanner.TestCase, total int) {
	fmt.Printf("Would run %d tests:\n", total)
	for category, tcs := range cases {
		fmt.Printf("\n%s (%d):\n", category, len(tcs))
		for _, tc := range tcs {
			fmt.Printf("  %-10s %-8s %s\n", tc.ID, tc.Severity, tc.Name)
		}
	}
}

// shouldFail reports whether the scan found vulnerable results at or above
// the fail-on severity threshold.
func shouldFail(result *scanner.ScanResult, failOn string) bool {
	if strings.ToLower(failOn) == "none" {
		return false
	}
	threshold, ok := scanner.ParseSeverity(failOn)
	if !ok {
		threshold = scanner.SeverityHigh
	}
	for _, r := range result.VulnerableResults() {
		if r.Severity.Rank() >= threshold.Rank() {
			return true
		}
	}
	return false
}
