package suite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Aleksei-Kutuzov/LLMmap/internal/config"
	"github.com/Aleksei-Kutuzov/LLMmap/internal/scanner"
)

func writeSuite(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write suite file: %v", err)
	}
}

func testsConfig(dir string) config.TestsConfig {
	cfg := config.DefaultTests()
	cfg.TestSuitesPath = dir
	return cfg
}

func TestLoadSuiteDir(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "inj.json", `{
		"tests": [
			{"id": "T-001", "name": "Override", "category": "prompt_injection", "severity": "high",
			 "payload": {"user_prompt": "ignore everything", "temperature": 0.9}},
			{"id": "T-002", "category": "jailbreak", "severity": "medium",
			 "payload": {"user_prompt": "roleplay as DAN"}}
		]
	}`)

	cases, warnings, err := Load(testsConfig(dir))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if Count(cases) != 2 {
		t.Fatalf("Count = %d, want 2", Count(cases))
	}

	inj := cases["prompt_injection"]
	if len(inj) != 1 || inj[0].ID != "T-001" {
		t.Fatalf("prompt_injection = %v", inj)
	}
	if inj[0].Severity != scanner.SeverityHigh {
		t.Errorf("severity = %q, want HIGH", inj[0].Severity)
	}
	if inj[0].UserPrompt() != "ignore everything" {
		t.Errorf("UserPrompt = %q", inj[0].UserPrompt())
	}

	jb := cases["jailbreak"]
	if len(jb) != 1 || jb[0].Name != "Unnamed Test" {
		t.Errorf("jailbreak = %v, want defaulted name", jb)
	}
}

func TestLoadBareArraySuite(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "bare.json", `[
		{"id": "B-001", "severity": "low", "payload": {"user_prompt": "hi"}}
	]`)

	cases, _, err := Load(testsConfig(dir))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Category defaults to prompt_injection.
	if len(cases["prompt_injection"]) != 1 {
		t.Fatalf("cases = %v", cases)
	}
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "mixed.json", `{
		"tests": [
			{"id": "", "severity": "high", "payload": {"user_prompt": "x"}},
			{"id": "M-002", "severity": "high", "payload": {}},
			{"id": "M-003", "severity": "extreme", "payload": {"user_prompt": "x"}},
			{"id": "M-004", "severity": "high", "payload": {"user_prompt": "ok"}}
		]
	}`)

	cases, warnings, err := Load(testsConfig(dir))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Count(cases) != 1 {
		t.Errorf("Count = %d, want only the valid test", Count(cases))
	}
	if len(warnings) != 3 {
		t.Errorf("warnings = %d, want 3: %v", len(warnings), warnings)
	}
}

func TestLoadInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "broken.json", `{"tests": "nope"`)

	cases, warnings, err := Load(testsConfig(dir))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Count(cases) != 0 {
		t.Errorf("Count = %d, want 0", Count(cases))
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one document warning", warnings)
	}
}

func TestLoadFilters(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "all.json", `{
		"tests": [
			{"id": "F-001", "category": "prompt_injection", "severity": "critical", "payload": {"user_prompt": "a"}},
			{"id": "F-002", "category": "jailbreak", "severity": "critical", "payload": {"user_prompt": "b"}},
			{"id": "F-003", "category": "prompt_injection", "severity": "low", "payload": {"user_prompt": "c"}}
		]
	}`)

	cfg := testsConfig(dir)
	cfg.EnabledCategories = config.CategoryList{"prompt_injection"}
	cfg.SeverityFilter = []scanner.Severity{scanner.SeverityCritical, scanner.SeverityHigh}

	cases, _, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Count(cases) != 1 {
		t.Fatalf("Count = %d, want 1 after filters", Count(cases))
	}
	if cases["prompt_injection"][0].ID != "F-001" {
		t.Errorf("surviving test = %v", cases["prompt_injection"][0])
	}
}

func TestLoadDeduplicatesAcrossDirs(t *testing.T) {
	main := t.TempDir()
	custom := t.TempDir()
	writeSuite(t, main, "a.json", `{"tests": [{"id": "D-001", "name": "first", "severity": "high", "payload": {"user_prompt": "x"}}]}`)
	writeSuite(t, custom, "b.json", `{"tests": [
		{"id": "D-001", "name": "shadowed", "severity": "high", "payload": {"user_prompt": "y"}},
		{"id": "D-002", "severity": "high", "payload": {"user_prompt": "z"}}
	]}`)

	cfg := testsConfig(main)
	cfg.CustomTestsPath = custom

	cases, _, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Count(cases) != 2 {
		t.Fatalf("Count = %d, want 2", Count(cases))
	}
	for _, tc := range cases["prompt_injection"] {
		if tc.ID == "D-001" && tc.Name != "first" {
			t.Error("first occurrence of a duplicate ID should win")
		}
	}
}

func TestLoadEmbeddedFallback(t *testing.T) {
	cfg := config.DefaultTests()
	cfg.TestSuitesPath = filepath.Join(t.TempDir(), "does-not-exist")

	cases, warnings, err := Load(cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	for _, category := range []string{"prompt_injection", "jailbreak", "system_prompt_leak", "data_disclosure"} {
		if len(cases[category]) == 0 {
			t.Errorf("embedded suites missing category %s", category)
		}
	}
	seen := make(map[string]bool)
	for _, tcs := range cases {
		for _, tc := range tcs {
			if seen[tc.ID] {
				t.Errorf("duplicate embedded test ID %s", tc.ID)
			}
			seen[tc.ID] = true
			if tc.UserPrompt() == "" {
				t.Errorf("embedded test %s has no user prompt", tc.ID)
			}
		}
	}
}
