package benchmarks

import (
	"context"
	"fmt"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

// resultRows builds a result set of n rows.
func resultRows(n int) queryflow.ResultSet {
	rs := queryflow.ResultSet{Columns: []string{"region", "revenue", "orders"}}
	for i := 0; i < n; i++ {
		rs.Rows = append(rs.Rows, rows.Row{
			"region":  fmt.Sprintf("region-%d", i),
			"revenue": float64(i) * 10.5,
			"orders":  int64(i),
		})
	}
	return rs
}

// newFlow builds a flow whose executor rejects the first failures queries
// and then returns n rows.
func newFlow(failures, n int) *queryflow.Flow {
	rs := resultRows(n)
	calls := 0
	flow, err := queryflow.New(queryflow.Services{
		Schema: queryflow.SchemaFunc(func(context.Context) (string, error) {
			return "sales(region TEXT, revenue REAL, orders INTEGER)", nil
		}),
		Generator: queryflow.GeneratorFunc(func(context.Context, queryflow.GenerateRequest) (queryflow.Generation, error) {
			return queryflow.Generation{Plan: "plan", Query: "SELECT region, revenue, orders FROM sales"}, nil
		}),
		Executor: queryflow.ExecutorFunc(func(_ context.Context, query string) (queryflow.ResultSet, error) {
			calls++
			if failures > 0 && calls%(failures+1) != 0 {
				return queryflow.ResultSet{}, &queryflow.QueryError{Query: query, Err: fmt.Errorf("no such column")}
			}
			return rs, nil
		}),
		Diagnoser: queryflow.DiagnoserFunc(func(context.Context, queryflow.DiagnoseRequest) (*queryflow.ErrorAnalysis, error) {
			return &queryflow.ErrorAnalysis{ErrorType: "unknown column", AffectedColumns: []string{"revenue"}}, nil
		}),
		Interpreter: queryflow.InterpreterFunc(func(context.Context, queryflow.InterpretRequest) (*queryflow.Interpretation, error) {
			return &queryflow.Interpretation{Summary: "summary"}, nil
		}),
	})
	if err != nil {
		panic(err)
	}
	return flow
}

func runID(i int) string {
	return fmt.Sprintf("run-%d", i)
}
