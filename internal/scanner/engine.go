// Package scanner executes security test suites against an LLM endpoint
// through the provider adapter and aggregates scored results.
package scanner

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/evaluator"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/provider"
)

// Options tunes the scan engine.
type Options struct {
	// MaxConcurrent bounds the number of in-flight queries. Minimum 1.
	MaxConcurrent int
	// RequestsPerSecond throttles queries across all workers; 0 disables.
	RequestsPerSecond float64
	// BatchSize is how many results are sent to the evaluator per batch.
	BatchSize int
	// Logger receives debug events; nil disables logging.
	Logger *zap.Logger
}

// Engine runs test cases against a target adapter and scores the responses
// with the evaluator.
type Engine struct {
	adapter   *provider.Adapter
	evaluator *evaluator.Evaluator
	opts      Options
	limiter   *rate.Limiter
	log       *zap.Logger
}

// New builds an Engine. The evaluator may share the target adapter or use a
// separate judge endpoint.
func New(adapter *provider.Adapter, eval *evaluator.Evaluator, opts Options) *Engine {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Engine{
		adapter:   adapter,
		evaluator: eval,
		opts:      opts,
		limiter:   limiter,
		log:       log,
	}
}

// Run executes every test case, evaluates the responses, and returns the
// aggregated scan result. Duplicate test IDs across categories run once.
// progress, if non-nil, is called after each completed test.
func (e *Engine) Run(ctx context.Context, cases map[string][]TestCase, progress func(done, total int)) (*ScanResult, error) {
	all := dedupe(cases)
	result := &ScanResult{
		Target:    e.adapter.Config().Endpoint.URL,
		Model:     e.adapter.Model(),
		StartTime: time.Now(),
		Stats:     make(map[string]*CategoryStats),
	}

	results := make([]TestResult, len(all))
	var done int
	var mu sync.Mutex

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.opts.MaxConcurrent; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.execute(ctx, all[i])
				mu.Lock()
				done++
				d := done
				mu.Unlock()
				if progress != nil {
					progress(d, len(all))
				}
			}
		}()
	}

	for i := range all {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	result.Results = results
	e.evaluate(ctx, result)

	for i := range result.Results {
		r := result.Results[i]
		cs, ok := result.Stats[r.Category]
		if !ok {
			cs = &CategoryStats{Category: r.Category}
			result.Stats[r.Category] = cs
		}
		cs.Add(r)
	}
	for _, cs := range result.Stats {
		cs.Finalize()
	}

	result.Insights = DetectInsights(result)
	result.EndTime = time.Now()
	return result, nil
}

// execute runs a single test case and captures timing and errors.
func (e *Engine) execute(ctx context.Context, tc TestCase) TestResult {
	res := TestResult{
		TestID:       tc.ID,
		TestName:     tc.Name,
		Category:     tc.Category,
		Severity:     tc.Severity,
		PromptUsed:   tc.UserPrompt(),
		SystemPrompt: tc.SystemPrompt(),
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	start := time.Now()
	resp, err := e.adapter.Query(ctx, tc.UserPrompt(), tc.SystemPrompt(), tc.ModelOptions())
	res.ResponseTime = time.Since(start)
	res.ResponseSeconds = res.ResponseTime.Seconds()

	switch {
	case err != nil:
		res.Error = err.Error()
		e.log.Debug("test query failed",
			zap.String("test_id", tc.ID),
			zap.Error(err))
	case !resp.Success:
		res.Error = resp.ErrorMessage
	default:
		res.ResponseContent = resp.Content
		e.log.Debug("test query ok",
			zap.String("test_id", tc.ID),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", res.ResponseTime))
	}
	return res
}

// evaluate scores all responses in batches and fills in the summary.
func (e *Engine) evaluate(ctx context.Context, result *ScanResult) {
	var recommendations []string
	var pros, cons string

	for lo := 0; lo < len(result.Results); lo += e.opts.BatchSize {
		hi := lo + e.opts.BatchSize
		if hi > len(result.Results) {
			hi = len(result.Results)
		}

		batch := result.Results[lo:hi]
		samples := make([]evaluator.Sample, len(batch))
		for i, r := range batch {
			samples[i] = evaluator.Sample{Prompt: r.PromptUsed, Response: r.ResponseContent}
		}

		verdict := e.evaluator.EvaluateBatch(ctx, samples)
		for i, score := range verdict.Scores(len(batch)) {
			result.Results[lo+i].HackScore = score
		}
		recommendations = append(recommendations, verdict.Recommends...)
		if verdict.Pros != "" {
			pros = verdict.Pros
		}
		if verdict.Cons != "" {
			cons = verdict.Cons
		}
	}

	summary := EvaluationSummary{
		Recommendations: recommendations,
		Pros:            pros,
		Cons:            cons,
		TotalTests:      len(result.Results),
	}
	var sum float64
	for _, r := range result.Results {
		sum += r.HackScore
		if r.HackScore > summary.MaxHackScore {
			summary.MaxHackScore = r.HackScore
		}
		if r.Vulnerable() {
			summary.VulnerableCount++
		}
	}
	if len(result.Results) > 0 {
		summary.AvgHackScore = sum / float64(len(result.Results))
	}
	result.Summary = summary
}

// dedupe flattens the category map, keeping the first occurrence of each ID.
// Categories are visited in sorted order so a duplicate ID lands in the same
// category on every run.
func dedupe(cases map[string][]TestCase) []TestCase {
	categories := make([]string, 0, len(cases))
	for category := range cases {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	seen := make(map[string]bool)
	var all []TestCase
	for _, category := range categories {
		for _, tc := range cases[category] {
			if seen[tc.ID] {
				continue
			}
			seen[tc.ID] = true
			all = append(all, tc)
		}
	}
	return all
}
