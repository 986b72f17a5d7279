package suite

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mapping maps canonical test fields to source dataset field names.
type Mapping map[string]string

// DefaultMapping assumes the dataset already uses the suite schema.
func DefaultMapping() Mapping {
	return Mapping{
		"id":            "id",
		"name":          "name",
		"description":   "description",
		"category":      "category",
		"severity":      "severity",
		"user_prompt":   "user_prompt",
		"system_prompt": "system_prompt",
		"temperature":   "temperature",
		"max_tokens":    "max_tokens",
	}
}

// ImportOptions controls dataset import.
type ImportOptions struct {
	// OutputDir receives the generated suite file. Default "test_suites".
	OutputDir string
	// Filename is the output file name without extension. Default "parsed".
	Filename string
	// Mapping remaps source fields; nil uses DefaultMapping.
	Mapping Mapping
	// Limit caps the number of imported tests; 0 means no limit.
	Limit int
}

// Import reads an external dataset (JSON or CSV, local file or HTTP URL),
// converts each record into a suite test via the field mapping, and writes a
// normalized suite file. Records missing id or user_prompt are skipped.
// Returns the number of imported tests.
func Import(source string, opts ImportOptions) (int, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = "test_suites"
	}
	if opts.Filename == "" {
		opts.Filename = "parsed"
	}
	mapping := opts.Mapping
	if mapping == nil {
		mapping = DefaultMapping()
	}

	records, err := loadRecords(source)
	if err != nil {
		return 0, err
	}

	var tests []map[string]any
	for i, record := range records {
		if opts.Limit > 0 && i >= opts.Limit {
			break
		}
		test, ok := transformRecord(record, mapping)
		if ok {
			tests = append(tests, test)
		}
	}
	if len(tests) == 0 {
		return 0, fmt.Errorf("no usable tests in source %s", source)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	name := strings.TrimSuffix(opts.Filename, ".json") + ".json"
	outPath := filepath.Join(opts.OutputDir, name)

	data, err := json.MarshalIndent(map[string]any{"tests": tests}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal suite: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return 0, fmt.Errorf("write suite file: %w", err)
	}
	return len(tests), nil
}

// loadRecords fetches and decodes the source dataset. JSON is detected
// first; anything that fails JSON decoding is treated as CSV.
func loadRecords(source string) ([]map[string]any, error) {
	var data []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("fetch source: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch source: status %d", resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
	} else {
		var err error
		data, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
	}

	if records, err := decodeJSONRecords(data); err == nil {
		return records, nil
	}
	return decodeCSVRecords(data)
}

func decodeJSONRecords(data []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Tests []map[string]any `json:"tests"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Tests != nil {
		return wrapped.Tests, nil
	}
	var single map[string]any
	if err := json.Unmarshal(data, &single); err == nil && len(single) > 0 {
		return []map[string]any{single}, nil
	}
	return nil, fmt.Errorf("not JSON")
}

func decodeCSVRecords(data []byte) ([]map[string]any, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv has no data rows")
	}

	header := rows[0]
	var records []map[string]any
	for _, row := range rows[1:] {
		record := make(map[string]any, len(header))
		for i, field := range header {
			if i < len(row) {
				record[field] = row[i]
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// transformRecord builds a normalized suite test from a source record.
func transformRecord(record map[string]any, mapping Mapping) (map[string]any, bool) {
	get := func(field string) (any, bool) {
		src, ok := mapping[field]
		if !ok || src == "" {
			return nil, false
		}
		v, ok := record[src]
		return v, ok
	}
	getString := func(field, fallback string) string {
		if v, ok := get(field); ok {
			if s, isStr := v.(string); isStr && s != "" {
				return s
			}
		}
		return fallback
	}

	id := getString("id", "")
	userPrompt := getString("user_prompt", "")
	if id == "" || userPrompt == "" {
		return nil, false
	}

	payload := map[string]any{
		"system_prompt": getString("system_prompt", ""),
		"user_prompt":   userPrompt,
		"temperature":   0.7,
		"max_tokens":    500,
	}
	if v, ok := get("temperature"); ok {
		payload["temperature"] = v
	}
	if v, ok := get("max_tokens"); ok {
		payload["max_tokens"] = v
	}

	return map[string]any{
		"id":          id,
		"name":        getString("name", "Unnamed Test"),
		"description": getString("description", ""),
		"category":    getString("category", "prompt_injection"),
		"severity":    strings.ToLower(getString("severity", "medium")),
		"payload":     payload,
		"expected":    map[string]any{"contains": "", "blocked": false},
	}, true
}
