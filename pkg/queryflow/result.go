package queryflow

import (
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// MaxRetriesMessage is the summary of a run that used up its retry budget.
const MaxRetriesMessage = "Maximum retry attempts exceeded. Please modify your prompt and try again."

// Status is the terminal status of a run.
type Status string

const (
	// StatusSucceeded means a query ran and its result was interpreted.
	StatusSucceeded Status = "succeeded"
	// StatusEmpty means a query ran but interpretation produced nothing.
	StatusEmpty Status = "empty"
	// StatusMaxRetriesExceeded means every attempt was rejected.
	StatusMaxRetriesExceeded Status = "max_retries_exceeded"
)

// Interpretation is the narrative produced from a query result.
type Interpretation struct {
	Summary            string          `json:"summary"`
	Columns            []string        `json:"columns,omitempty"`
	Recommendations    []string        `json:"recommendations,omitempty"`
	NextActions        []string        `json:"next_actions,omitempty"`
	VisualizationHints map[string]bool `json:"visualization_hints,omitempty"`
}

// IsZero reports whether the interpretation carries nothing.
func (i *Interpretation) IsZero() bool {
	return i == nil || (i.Summary == "" &&
		len(i.Columns) == 0 &&
		len(i.Recommendations) == 0 &&
		len(i.NextActions) == 0 &&
		len(i.VisualizationHints) == 0)
}

// Data is the tabular part of a successful result.
type Data struct {
	Columns []string   `json:"columns"`
	Rows    []rows.Row `json:"rows"`
	// Truncated is set when the store had more rows than Rows holds.
	Truncated bool `json:"truncated,omitempty"`
}

// Result is the terminal payload of a run.
type Result struct {
	RunID              string          `json:"run_id"`
	Status             Status          `json:"status"`
	Summary            string          `json:"summary,omitempty"`
	Data               *Data           `json:"data,omitempty"`
	Recommendations    []string        `json:"recommendations,omitempty"`
	NextActions        []string        `json:"next_actions,omitempty"`
	VisualizationHints map[string]bool `json:"visualization_hints,omitempty"`
	RetryCount         int             `json:"retry_count"`
	Trace              []TraceEntry    `json:"trace"`

	// State is the final workflow state, kept for auditing.
	State State `json:"-"`
}

func buildResult(runID string, s State) *Result {
	res := &Result{
		RunID:      runID,
		Status:     s.Status,
		RetryCount: s.RetryCount,
		Trace:      append([]TraceEntry(nil), s.Trace...),
		State:      s,
	}

	switch s.Status {
	case StatusSucceeded:
		in := s.Interpretation
		columns := in.Columns
		if len(columns) == 0 {
			columns = s.Columns
		}
		res.Summary = in.Summary
		res.Data = &Data{
			Columns:   append([]string(nil), columns...),
			Rows:      rows.Clone(s.QueryResults),
			Truncated: s.Truncated,
		}
		res.Recommendations = in.Recommendations
		res.NextActions = in.NextActions
		res.VisualizationHints = in.VisualizationHints
	case StatusMaxRetriesExceeded:
		res.Summary = MaxRetriesMessage
	}
	return res
}
