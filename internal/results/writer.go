// Package results owns the persisted layout of a benchmark run: a
// manifest written up front, one JSON plus one JSONL file per
// (scenario, adapter) pair under raw/, a suite result at the end, and a
// SQLite index of past runs for querying without re-parsing the files.
package results

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"membench"
)

const (
	manifestFile    = "manifest.json"
	suiteResultFile = "suite_result.json"
	rawDir          = "raw"
	indexFile       = "index.db"
)

// Writer persists one run's artifacts under a single output directory.
type Writer struct {
	dir   string
	runID string
	log   *slog.Logger
	index *Index
}

// NewWriter creates the run directory layout and opens the run index.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Join(dir, rawDir), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	index, err := OpenIndex(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, err
	}
	return &Writer{
		dir:   dir,
		runID: uuid.NewString(),
		log:   slog.With("component", "results"),
		index: index,
	}, nil
}

// RunID identifies this run in the index.
func (w *Writer) RunID() string { return w.runID }

// Dir is the run's output directory.
func (w *Writer) Dir() string { return w.dir }

// WriteManifest records the run parameters before any scenario runs, so
// a partial run is still attributable.
func (w *Writer) WriteManifest(manifest map[string]any) error {
	return w.writeJSON(filepath.Join(w.dir, manifestFile), manifest)
}

// WriteScenarioResult persists one (scenario, adapter) result as JSON
// and JSONL, and records its summary row in the index.
func (w *Writer) WriteScenarioResult(res membench.ScenarioResult) error {
	stem := fmt.Sprintf("%s_%s", res.ScenarioName, res.AdapterName)

	if err := w.writeJSON(filepath.Join(w.dir, rawDir, stem+".json"), res); err != nil {
		return err
	}

	lines, err := res.JSONL()
	if err != nil {
		return fmt.Errorf("render jsonl for %s: %w", stem, err)
	}
	path := filepath.Join(w.dir, rawDir, stem+".jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := w.index.RecordResult(w.runID, res); err != nil {
		// The files are the source of truth; a failed index row is
		// logged, not fatal.
		w.log.Warn("index record failed", "scenario", res.ScenarioName, "adapter", res.AdapterName, "err", err)
	}

	w.log.Info("result persisted", "scenario", res.ScenarioName, "adapter", res.AdapterName)
	return nil
}

// WriteSuiteResult persists the whole-run result and closes out the
// run's index row.
func (w *Writer) WriteSuiteResult(suite membench.SuiteResult) error {
	if err := w.writeJSON(filepath.Join(w.dir, suiteResultFile), suite); err != nil {
		return err
	}
	if err := w.index.RecordRun(w.runID, suite); err != nil {
		w.log.Warn("index run record failed", "err", err)
	}
	return nil
}

// Close releases the index handle.
func (w *Writer) Close() error {
	return w.index.Close()
}

func (w *Writer) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads every persisted scenario result from a run directory,
// keyed by scenario name. Unreadable files are skipped with a warning,
// matching the tolerance a reporting consumer needs over partial runs.
func Load(dir string) (map[string][]membench.ScenarioResult, error) {
	entries, err := os.ReadDir(filepath.Join(dir, rawDir))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]membench.ScenarioResult{}, nil
		}
		return nil, fmt.Errorf("read run directory: %w", err)
	}

	log := slog.With("component", "results")
	out := make(map[string][]membench.ScenarioResult)

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, rawDir, name))
		if err != nil {
			log.Warn("skipping unreadable result", "file", name, "err", err)
			continue
		}
		var res membench.ScenarioResult
		if err := json.Unmarshal(data, &res); err != nil {
			log.Warn("skipping malformed result", "file", name, "err", err)
			continue
		}
		out[res.ScenarioName] = append(out[res.ScenarioName], res)
	}
	return out, nil
}

// LoadSuite reads the suite result of a completed run.
func LoadSuite(dir string) (membench.SuiteResult, error) {
	data, err := os.ReadFile(filepath.Join(dir, suiteResultFile))
	if err != nil {
		return membench.SuiteResult{}, fmt.Errorf("read suite result: %w", err)
	}
	var suite membench.SuiteResult
	if err := json.Unmarshal(data, &suite); err != nil {
		return membench.SuiteResult{}, fmt.Errorf("decode suite result: %w", err)
	}
	return suite, nil
}
