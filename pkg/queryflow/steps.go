package queryflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/queryflow/pkg/queryflow/observability"
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// Each step receives the state by value with the event that triggered it,
// and returns the updated state with the event it emits.

func (f *Flow) start(ctx *executionContext, s State, _ Event, cfg *runConfig) (State, Event, error) {
	desc, err := f.schema.Load(ctx)
	if err != nil {
		return s, EventNone, upstream(StepStart, "schema", err)
	}

	s.SchemaDescription = desc
	s.record(cfg.now(), StepStart, "Loaded schema description", map[string]any{
		"schema_chars": len(desc),
	})
	return s, EventInitialLoad, nil
}

func (f *Flow) generate(ctx *executionContext, s State, trigger Event, cfg *runConfig) (State, Event, error) {
	gen, err := f.generator.Generate(ctx, GenerateRequest{
		Schema:        s.SchemaDescription,
		Prompt:        s.UserPrompt,
		Now:           cfg.now(),
		PriorAnalysis: s.ErrorAnalysis.normalized(),
		Trigger:       trigger,
	})

	out := classifyGeneration(gen, err)
	switch out.Kind {
	case OutcomeSuccess:
	case OutcomeEmpty:
		return s, EventNone, upstream(StepGenerate, "generation",
			fmt.Errorf("%w: empty query text", ErrMalformedOutput))
	case OutcomeRejected, OutcomeFault:
		return s, EventNone, upstream(StepGenerate, "generation", out.Err)
	}

	s.Attempts++
	s.LogicalPlan = out.Value.Plan
	s.QueryText = out.Value.Query
	s.record(cfg.now(), StepGenerate, fmt.Sprintf("Generated query (attempt %d)", s.Attempts), map[string]any{
		"trigger":       trigger.String(),
		"attempt":       s.Attempts,
		"plan_preview":  preview(out.Value.Plan),
		"query_preview": preview(out.Value.Query),
	})
	return s, EventGenerated, nil
}

func (f *Flow) execute(ctx *executionContext, s State, _ Event, cfg *runConfig) (State, Event, error) {
	rs, err := f.executor.Execute(ctx, s.QueryText)
	if err != nil && ctx.Err() != nil {
		return s, EventNone, err
	}

	out := classifyExecution(s.QueryText, rs, err)
	switch out.Kind {
	case OutcomeSuccess, OutcomeEmpty:
		s.HasError = false
		s.Columns = out.Value.Columns
		s.QueryResults = out.Value.Rows
		s.Truncated = out.Value.Truncated
		msg := fmt.Sprintf("Query returned %d rows", len(out.Value.Rows))
		if s.Truncated {
			msg = fmt.Sprintf("Query returned more than %d rows, result truncated", len(out.Value.Rows))
		}
		s.record(cfg.now(), StepExecute, msg, map[string]any{
			"row_count": len(out.Value.Rows),
			"columns":   append([]string(nil), out.Value.Columns...),
			"truncated": s.Truncated,
		})
	case OutcomeRejected:
		msg := out.Err.Error()
		observability.LogQueryRejected(ctx.Logger(), s.RetryCount, out.Err)
		s.HasError = true
		s.Columns = nil
		s.QueryResults = []rows.Row{}
		s.Truncated = false
		s.ErrorHistory = appendShared(s.ErrorHistory, msg)
		s.record(cfg.now(), StepExecute, "Query rejected by data store", map[string]any{
			"error":         preview(msg),
			"error_count":   len(s.ErrorHistory),
			"query_preview": preview(s.QueryText),
		})
	case OutcomeFault:
		return s, EventNone, upstream(StepExecute, "execution", out.Err)
	}
	return s, EventExecuted, nil
}

func (f *Flow) route(ctx *executionContext, s State, _ Event, cfg *runConfig) (State, Event, error) {
	d := Route(cfg.policy, cfg.maxRetries, s.RetryCount, s.HasError)
	s.RetryCount = d.RetryCount

	var msg string
	switch d.Event {
	case EventBudgetExhausted:
		msg = fmt.Sprintf("Retry budget exhausted (%d/%d)", s.RetryCount, cfg.maxRetries)
	case EventRetryNeeded:
		msg = fmt.Sprintf("Query failed, diagnosing (retry %d/%d)", s.RetryCount, cfg.maxRetries)
	default:
		msg = "Query succeeded, interpreting"
	}

	observability.LogRouteDecision(ctx.Logger(), d.Event.String(), s.RetryCount, cfg.maxRetries, s.HasError)
	s.record(cfg.now(), StepRoute, msg, map[string]any{
		"decision":    d.Event.String(),
		"retry_count": s.RetryCount,
		"max_retries": cfg.maxRetries,
		"has_error":   s.HasError,
	})
	return s, d.Event, nil
}

func (f *Flow) analyzeError(ctx *executionContext, s State, _ Event, cfg *runConfig) (State, Event, error) {
	analysis, err := f.diagnoser.Diagnose(ctx, DiagnoseRequest{
		Prompt:       s.UserPrompt,
		Plan:         s.LogicalPlan,
		Query:        s.QueryText,
		ErrorHistory: append([]string(nil), s.ErrorHistory...),
		Schema:       s.SchemaDescription,
	})

	out := classifyAnalysis(analysis, err)
	switch out.Kind {
	case OutcomeSuccess:
		s.ErrorAnalysis = out.Value.normalized()
		s.record(cfg.now(), StepAnalyzeError, "Diagnosed query failure", map[string]any{
			"error_type":       s.ErrorAnalysis.ErrorType,
			"affected_columns": len(s.ErrorAnalysis.AffectedColumns),
			"affected_tables":  len(s.ErrorAnalysis.AffectedTables),
			"corrections":      len(s.ErrorAnalysis.SuggestedCorrections),
		})
	case OutcomeEmpty:
		s.ErrorAnalysis = ErrorAnalysis{}
		s.record(cfg.now(), StepAnalyzeError, "Diagnosis returned no analysis", nil)
	case OutcomeRejected, OutcomeFault:
		return s, EventNone, upstream(StepAnalyzeError, "diagnosis", out.Err)
	}
	s.Diagnosed = true
	return s, EventErrorRecovered, nil
}

func (f *Flow) interpret(ctx *executionContext, s State, _ Event, cfg *runConfig) (State, Event, error) {
	sample := rows.Head(s.QueryResults, cfg.interpretRowLimit)
	in, err := f.interpreter.Interpret(ctx, InterpretRequest{
		Prompt:    s.UserPrompt,
		Query:     s.QueryText,
		Rows:      sample,
		TotalRows: len(s.QueryResults),
		Truncated: s.Truncated,
		Schema:    s.SchemaDescription,
		Now:       cfg.now(),
	})

	out := classifyInterpretation(in, err)
	switch out.Kind {
	case OutcomeSuccess:
		s.Status = StatusSucceeded
		s.Interpretation = out.Value
		s.record(cfg.now(), StepInterpret, "Interpreted query result", map[string]any{
			"rows_sent":       len(sample),
			"rows_total":      len(s.QueryResults),
			"summary_preview": preview(out.Value.Summary),
		})
	case OutcomeEmpty:
		s.Status = StatusEmpty
		s.Interpretation = nil
		s.record(cfg.now(), StepInterpret, "Interpretation returned no output", map[string]any{
			"rows_sent":  len(sample),
			"rows_total": len(s.QueryResults),
		})
	case OutcomeRejected, OutcomeFault:
		return s, EventNone, upstream(StepInterpret, "interpretation", out.Err)
	}
	return s, EventInterpreted, nil
}

func (f *Flow) maxRetriesExceeded(_ *executionContext, s State, _ Event, cfg *runConfig) (State, Event, error) {
	s.Status = StatusMaxRetriesExceeded
	s.record(cfg.now(), StepMaxRetriesExceeded, MaxRetriesMessage, map[string]any{
		"retry_count": s.RetryCount,
		"error_count": len(s.ErrorHistory),
	})
	return s, EventFailureReported, nil
}

func classifyGeneration(g Generation, err error) Outcome[Generation] {
	if err != nil {
		return Fault[Generation](err)
	}
	if strings.TrimSpace(g.Query) == "" {
		return Empty[Generation]()
	}
	return Success(g)
}

// classifyExecution separates store rejections from service faults and
// normalizes the rows of a successful execution. Rows that cannot be
// normalized count as a rejection of the query that produced them.
func classifyExecution(query string, rs ResultSet, err error) Outcome[ResultSet] {
	if err != nil {
		var qe *QueryError
		if errors.As(err, &qe) {
			return Rejected[ResultSet](qe)
		}
		return Fault[ResultSet](err)
	}

	normalized, err := rows.NormalizeAll(rs.Rows, rs.ColumnTypes)
	if err != nil {
		return Rejected[ResultSet](&QueryError{Query: query, Err: fmt.Errorf("normalize result: %w", err)})
	}
	columns := rs.Columns
	if len(columns) == 0 && len(normalized) > 0 {
		columns = columnsOf(normalized[0])
	}
	out := ResultSet{Columns: append([]string{}, columns...), Rows: normalized, Truncated: rs.Truncated}
	if len(normalized) == 0 {
		return Outcome[ResultSet]{Kind: OutcomeEmpty, Value: out}
	}
	return Success(out)
}

func classifyAnalysis(a *ErrorAnalysis, err error) Outcome[ErrorAnalysis] {
	switch {
	case err != nil:
		return Fault[ErrorAnalysis](err)
	case a == nil || a.IsEmpty():
		return Empty[ErrorAnalysis]()
	}
	return Success(*a)
}

func classifyInterpretation(in *Interpretation, err error) Outcome[*Interpretation] {
	switch {
	case err != nil:
		return Fault[*Interpretation](err)
	case in.IsZero():
		return Empty[*Interpretation]()
	}
	c := *in
	return Success(&c)
}

// columnsOf returns the keys of r in sorted order. Used when an executor
// reports rows without column order.
func columnsOf(r rows.Row) []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
