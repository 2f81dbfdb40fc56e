package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"membench"
)

func sampleResult(scenario, adapter string, success bool) membench.ScenarioResult {
	return membench.ScenarioResult{
		ScenarioName: scenario,
		AdapterName:  adapter,
		Trials: []membench.TrialResult{
			{TrialID: 0, Success: success, Metrics: map[string]any{"accuracy": 1.0}, TimingMillis: 12.5},
			{TrialID: 1, Success: true, Metrics: map[string]any{"accuracy": 0.5}, TimingMillis: 8.0},
		},
		Aggregate:   map[string]any{"success_rate": 0.5, "total_trials": 2.0},
		StartedAt:   "2026-08-25T10:00:00Z",
		CompletedAt: "2026-08-25T10:01:00Z",
	}
}

func TestWriterLayout(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.WriteManifest(map[string]any{"adapters": []string{"baseline"}}); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	res := sampleResult("niah", "baseline", true)
	if err := w.WriteScenarioResult(res); err != nil {
		t.Fatalf("WriteScenarioResult: %v", err)
	}
	suite := membench.SuiteResult{
		Results:     []membench.ScenarioResult{res},
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
	}
	if err := w.WriteSuiteResult(suite); err != nil {
		t.Fatalf("WriteSuiteResult: %v", err)
	}

	for _, rel := range []string{
		"manifest.json",
		"suite_result.json",
		"index.db",
		filepath.Join("raw", "niah_baseline.json"),
		filepath.Join("raw", "niah_baseline.jsonl"),
	} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("missing artifact %s: %v", rel, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "raw", "niah_baseline.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("jsonl lines = %d, want 2", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("jsonl line not valid json: %v", err)
	}
	if first["scenario"] != "niah" || first["adapter"] != "baseline" {
		t.Errorf("jsonl line missing identity fields: %v", first)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteScenarioResult(sampleResult("niah", "baseline", true)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteScenarioResult(sampleResult("niah", "chronicle", false)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteScenarioResult(sampleResult("determinism", "chronicle", true)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	// A junk file in raw/ must not break loading.
	if err := os.WriteFile(filepath.Join(dir, "raw", "broken.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded["niah"]) != 2 {
		t.Errorf("niah results = %d, want 2", len(loaded["niah"]))
	}
	if len(loaded["determinism"]) != 1 {
		t.Errorf("determinism results = %d, want 1", len(loaded["determinism"]))
	}
	for _, res := range loaded["niah"] {
		if len(res.Trials) != 2 {
			t.Errorf("trials = %d, want 2", len(res.Trials))
		}
	}
}

func TestLoadMissingRunDir(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "never-ran"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty map, got %d entries", len(loaded))
	}
}

func TestIndexRecordsRunsAndResults(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	res := sampleResult("fact_correction", "vector_rag", true)
	if err := w.WriteScenarioResult(res); err != nil {
		t.Fatal(err)
	}
	suite := membench.SuiteResult{
		Results:     []membench.ScenarioResult{res},
		StartedAt:   "2026-08-25T10:00:00Z",
		CompletedAt: "2026-08-25T10:05:00Z",
	}
	if err := w.WriteSuiteResult(suite); err != nil {
		t.Fatal(err)
	}

	runs, err := w.index.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].ID != w.RunID() {
		t.Errorf("run id = %q, want %q", runs[0].ID, w.RunID())
	}
	if runs[0].CompletedAt == "" {
		t.Error("run not marked completed")
	}
	if runs[0].ResultCount != 1 {
		t.Errorf("result count = %d, want 1", runs[0].ResultCount)
	}

	rows, err := w.index.Results(w.RunID())
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("result rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Scenario != "fact_correction" || row.Adapter != "vector_rag" || row.Trials != 2 {
		t.Errorf("unexpected row: %+v", row)
	}
	if !row.SuccessRate.Valid || row.SuccessRate.Float64 != 0.5 {
		t.Errorf("success rate = %+v, want 0.5", row.SuccessRate)
	}
}
