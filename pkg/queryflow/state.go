package queryflow

import (
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// State is the data a single run carries between steps.
//
// A run owns its State exclusively. Step functions receive it by value and
// return the updated copy; slices that only grow (ErrorHistory, Trace) are
// appended copy-on-write so an earlier snapshot never observes later entries.
type State struct {
	UserPrompt        string `json:"user_prompt"`
	SchemaDescription string `json:"schema_description"`

	// LogicalPlan and QueryText are overwritten by every generation.
	LogicalPlan string `json:"logical_plan"`
	QueryText   string `json:"query_text"`

	// ErrorHistory holds one message per rejected execution, oldest first.
	ErrorHistory []string `json:"error_history"`

	// ErrorAnalysis is replaced by every diagnosis.
	ErrorAnalysis ErrorAnalysis `json:"error_analysis"`
	Diagnosed     bool          `json:"diagnosed"`

	// Columns and QueryResults describe the most recent successful
	// execution and are cleared when an execution fails.
	Columns      []string   `json:"columns"`
	QueryResults []rows.Row `json:"query_results"`
	Truncated    bool       `json:"truncated,omitempty"`
	HasError     bool       `json:"has_error"`

	RetryCount int `json:"retry_count"`

	// Attempts counts generations.
	Attempts int `json:"attempts"`

	Trace []TraceEntry `json:"trace"`

	// Status and Interpretation are set by the terminal steps.
	Status         Status          `json:"status,omitempty"`
	Interpretation *Interpretation `json:"interpretation,omitempty"`
}

func newState(prompt string) State {
	return State{
		UserPrompt:   prompt,
		ErrorHistory: []string{},
		QueryResults: []rows.Row{},
		Trace:        []TraceEntry{},
	}
}

// ErrorAnalysis is the structured diagnosis of a failed query.
type ErrorAnalysis struct {
	ErrorType            string       `json:"error_type"`
	AffectedColumns      []string     `json:"affected_columns"`
	AffectedTables       []string     `json:"affected_tables"`
	SuggestedCorrections []Correction `json:"suggested_corrections"`
}

// Correction is one suggested change to a failed query.
type Correction struct {
	Action string `json:"action"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// IsEmpty reports whether a carries no diagnosis.
func (a ErrorAnalysis) IsEmpty() bool {
	return a.ErrorType == "" &&
		len(a.AffectedColumns) == 0 &&
		len(a.AffectedTables) == 0 &&
		len(a.SuggestedCorrections) == 0
}

// normalized returns a deep copy of a with the column and table lists
// deduplicated, keeping first occurrences in order.
func (a ErrorAnalysis) normalized() ErrorAnalysis {
	out := ErrorAnalysis{
		ErrorType:       a.ErrorType,
		AffectedColumns: dedupe(a.AffectedColumns),
		AffectedTables:  dedupe(a.AffectedTables),
	}
	if a.SuggestedCorrections != nil {
		out.SuggestedCorrections = append([]Correction(nil), a.SuggestedCorrections...)
	}
	return out
}

func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// appendShared appends without writing into a backing array another
// snapshot may share.
func appendShared[T any](s []T, v T) []T {
	return append(s[:len(s):len(s)], v)
}
