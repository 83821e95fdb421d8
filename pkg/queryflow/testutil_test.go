package queryflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

var testNow = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// testCtx creates a plain test context.
func testCtx() Context {
	return NewContext(context.Background())
}

// execResult is one scripted executor response.
type execResult struct {
	rs  ResultSet
	err error
}

func rejected(msg string) execResult {
	return execResult{err: &QueryError{Query: "q", Err: errors.New(msg)}}
}

func succeeded(rs ...rows.Row) execResult {
	return execResult{rs: ResultSet{Columns: []string{"region", "revenue"}, Rows: rs}}
}

// script is a set of fake services that answer from canned responses and
// record every call. Responses beyond the end of a list repeat the last one.
type script struct {
	mu sync.Mutex

	schema    string
	schemaErr error

	generations []Generation
	genErr      error

	execs []execResult

	analysis *ErrorAnalysis
	diagErr  error

	interp    *Interpretation
	interpErr error

	genReqs    []GenerateRequest
	queries    []string
	diagReqs   []DiagnoseRequest
	interpReqs []InterpretRequest
}

func newScript(execs ...execResult) *script {
	return &script{
		schema: "sales(region TEXT, revenue DECIMAL)",
		generations: []Generation{
			{Plan: "sum revenue by region", Query: "SELECT region, SUM(revenue) AS revenue FROM sales GROUP BY region"},
		},
		execs: execs,
		analysis: &ErrorAnalysis{
			ErrorType:       "unknown_column",
			AffectedColumns: []string{"regon"},
			AffectedTables:  []string{"sales"},
			SuggestedCorrections: []Correction{
				{Action: "rename_column", From: "regon", To: "region"},
			},
		},
		interp: &Interpretation{
			Summary:            "EMEA leads revenue.",
			Columns:            []string{"region", "revenue"},
			Recommendations:    []string{"APAC is declining"},
			NextActions:        []string{"Break down EMEA by country"},
			VisualizationHints: map[string]bool{"bar": true},
		},
	}
}

func pick[T any](list []T, i int) T {
	var zero T
	if len(list) == 0 {
		return zero
	}
	return list[min(i, len(list)-1)]
}

func (s *script) services() Services {
	return Services{
		Schema: SchemaFunc(func(context.Context) (string, error) {
			return s.schema, s.schemaErr
		}),
		Generator: GeneratorFunc(func(_ context.Context, req GenerateRequest) (Generation, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.genReqs = append(s.genReqs, req)
			if s.genErr != nil {
				return Generation{}, s.genErr
			}
			return pick(s.generations, len(s.genReqs)-1), nil
		}),
		Executor: ExecutorFunc(func(_ context.Context, query string) (ResultSet, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.queries = append(s.queries, query)
			r := pick(s.execs, len(s.queries)-1)
			return r.rs, r.err
		}),
		Diagnoser: DiagnoserFunc(func(_ context.Context, req DiagnoseRequest) (*ErrorAnalysis, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.diagReqs = append(s.diagReqs, req)
			return s.analysis, s.diagErr
		}),
		Interpreter: InterpreterFunc(func(_ context.Context, req InterpretRequest) (*Interpretation, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.interpReqs = append(s.interpReqs, req)
			return s.interp, s.interpErr
		}),
	}
}

func (s *script) flow() *Flow {
	f, err := New(s.services())
	if err != nil {
		panic(err)
	}
	return f
}

func traceSteps(trace []TraceEntry) []Step {
	out := make([]Step, len(trace))
	for i, e := range trace {
		out[i] = e.Step
	}
	return out
}

var sampleRows = []rows.Row{
	{"region": "EMEA", "revenue": 1200.5},
	{"region": "APAC", "revenue": 800.0},
}
