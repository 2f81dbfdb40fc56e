package membench

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TrialResult records one trial's outcome. Immutable once produced; the
// metrics schema is scenario-defined.
type TrialResult struct {
	TrialID      int            `json:"trial_id"`
	Success      bool           `json:"success"`
	Metrics      map[string]any `json:"metrics"`
	RawOutput    string         `json:"raw_output,omitempty"`
	Error        string         `json:"error,omitempty"`
	TimingMillis float64        `json:"timing_ms"`
}

// ScenarioResult is the ordered trial sequence for one (scenario, adapter)
// pair plus the aggregate computed once all trials completed.
type ScenarioResult struct {
	ScenarioName string         `json:"scenario_name"`
	AdapterName  string         `json:"adapter_name"`
	Trials       []TrialResult  `json:"trials"`
	Aggregate    map[string]any `json:"aggregate"`
	Config       map[string]any `json:"config,omitempty"`
	StartedAt    string         `json:"started_at,omitempty"`
	CompletedAt  string         `json:"completed_at,omitempty"`
}

// JSONL renders one line per trial, each line self-describing with the
// scenario and adapter names. This is the persisted line-delimited layout
// reporting consumes.
func (r ScenarioResult) JSONL() (string, error) {
	var b strings.Builder
	for _, t := range r.Trials {
		line := map[string]any{
			"scenario":  r.ScenarioName,
			"adapter":   r.AdapterName,
			"trial_id":  t.TrialID,
			"success":   t.Success,
			"metrics":   t.Metrics,
			"timing_ms": t.TimingMillis,
		}
		if t.RawOutput != "" {
			line["raw_output"] = t.RawOutput
		}
		if t.Error != "" {
			line["error"] = t.Error
		}
		data, err := json.Marshal(line)
		if err != nil {
			return "", fmt.Errorf("marshal trial %d: %w", t.TrialID, err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// SuiteResult owns the scenario results of one full run. The
// (scenario, adapter) pairs inside are globally unique.
type SuiteResult struct {
	Results     []ScenarioResult `json:"results"`
	StartedAt   string           `json:"started_at"`
	CompletedAt string           `json:"completed_at"`
	Config      map[string]any   `json:"config,omitempty"`
}
