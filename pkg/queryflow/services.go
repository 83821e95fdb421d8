package queryflow

import (
	"context"
	"time"

	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// SchemaSource loads the description of the data store's tables and columns.
type SchemaSource interface {
	Load(ctx context.Context) (string, error)
}

// Generator turns a request into a logical plan and query text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
}

// Executor runs query text against the data store.
//
// A query the store refuses must be reported as a *QueryError; the run
// records it and may retry. Any other error stops the run.
type Executor interface {
	Execute(ctx context.Context, query string) (ResultSet, error)
}

// Diagnoser explains why queries failed. A nil analysis means it had
// nothing to say.
type Diagnoser interface {
	Diagnose(ctx context.Context, req DiagnoseRequest) (*ErrorAnalysis, error)
}

// Interpreter turns a query result into a narrative. A nil interpretation
// means it produced nothing.
type Interpreter interface {
	Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error)
}

// GenerateRequest is the input to a generation call.
type GenerateRequest struct {
	Schema string
	Prompt string
	Now    time.Time
	// PriorAnalysis is empty on the first attempt.
	PriorAnalysis ErrorAnalysis
	// Trigger is EventInitialLoad or EventErrorRecovered.
	Trigger Event
}

// Generation is the output of a generation call.
type Generation struct {
	Plan  string `json:"logical_plan"`
	Query string `json:"query"`
}

// ResultSet is the raw output of an execution call.
type ResultSet struct {
	Columns []string
	// ColumnTypes maps column names to driver type names. Optional.
	ColumnTypes map[string]string
	Rows        []rows.Row
	// Truncated reports that the store had more rows than Rows holds.
	Truncated bool
}

// DiagnoseRequest is the input to a diagnosis call.
type DiagnoseRequest struct {
	Prompt       string
	Plan         string
	Query        string
	ErrorHistory []string
	Schema       string
}

// InterpretRequest is the input to an interpretation call.
type InterpretRequest struct {
	Prompt string
	Query  string
	// Rows holds at most the configured interpretation row limit.
	Rows      []rows.Row
	TotalRows int
	// Truncated reports that TotalRows is a row cap, not the full count.
	Truncated bool
	Schema    string
	Now       time.Time
}

// SchemaFunc adapts a function to SchemaSource.
type SchemaFunc func(ctx context.Context) (string, error)

func (f SchemaFunc) Load(ctx context.Context) (string, error) { return f(ctx) }

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (Generation, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (Generation, error) {
	return f(ctx, req)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, query string) (ResultSet, error)

func (f ExecutorFunc) Execute(ctx context.Context, query string) (ResultSet, error) {
	return f(ctx, query)
}

// DiagnoserFunc adapts a function to Diagnoser.
type DiagnoserFunc func(ctx context.Context, req DiagnoseRequest) (*ErrorAnalysis, error)

func (f DiagnoserFunc) Diagnose(ctx context.Context, req DiagnoseRequest) (*ErrorAnalysis, error) {
	return f(ctx, req)
}

// InterpreterFunc adapts a function to Interpreter.
type InterpreterFunc func(ctx context.Context, req InterpretRequest) (*Interpretation, error)

func (f InterpreterFunc) Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error) {
	return f(ctx, req)
}
