package llm_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
	"github.com/randalmurphal/queryflow/pkg/queryflow/llm"
	"github.com/randalmurphal/queryflow/pkg/queryflow/rows"
)

var testNow = time.Date(2025, time.March, 7, 14, 30, 0, 0, time.UTC)

func TestGenerator_Generate(t *testing.T) {
	mock := llm.NewMockChatModel("```json\n" +
		`{"logical_plan": "sum amount by region", "query": "SELECT region, SUM(amount) FROM sales GROUP BY region"}` +
		"\n```")
	g := llm.NewGenerator(mock)

	gen, err := g.Generate(context.Background(), queryflow.GenerateRequest{
		Schema:  "sales(region, amount)",
		Prompt:  "revenue by region",
		Now:     testNow,
		Trigger: queryflow.EventInitialLoad,
	})
	require.NoError(t, err)
	assert.Equal(t, "sum amount by region", gen.Plan)
	assert.Equal(t, "SELECT region, SUM(amount) FROM sales GROUP BY region", gen.Query)

	call := mock.LastCall()
	require.NotNil(t, call)
	require.Len(t, call.Messages, 2)
	assert.Equal(t, schema.System, call.Messages[0].Role)
	assert.Contains(t, call.Messages[0].Content, `"logical_plan"`)
	assert.Equal(t, schema.User, call.Messages[1].Role)
	assert.Contains(t, call.Messages[1].Content, "sales(region, amount)")
	assert.Contains(t, call.Messages[1].Content, "revenue by region")
	assert.Contains(t, call.Messages[1].Content, "March 07, 2025 at 14:30 UTC")
	assert.NotContains(t, call.Messages[1].Content, "previous query failed")

	require.NotNil(t, call.Options.Temperature)
	assert.Equal(t, llm.DefaultGenerateTemperature, *call.Options.Temperature)
}

func TestGenerator_PriorAnalysis(t *testing.T) {
	mock := llm.NewMockChatModel(`{"logical_plan": "p", "query": "SELECT 1"}`)
	g := llm.NewGenerator(mock, llm.WithTemperature(0.5))

	_, err := g.Generate(context.Background(), queryflow.GenerateRequest{
		Schema: "s",
		Prompt: "p",
		Now:    testNow,
		PriorAnalysis: queryflow.ErrorAnalysis{
			ErrorType:       "no such column: revenue",
			AffectedColumns: []string{"revenue"},
		},
		Trigger: queryflow.EventErrorRecovered,
	})
	require.NoError(t, err)

	call := mock.LastCall()
	assert.Contains(t, call.Messages[1].Content, "previous query failed")
	assert.Contains(t, call.Messages[1].Content, "no such column: revenue")
	assert.Equal(t, float32(0.5), *call.Options.Temperature)
}

func TestGenerator_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "prose", reply: "I cannot help with that."},
		{name: "broken json", reply: `{"logical_plan": "p", "query": }`},
		{name: "missing query", reply: `{"logical_plan": "p"}`},
		{name: "empty query", reply: `{"logical_plan": "p", "query": ""}`},
		{name: "wrong type", reply: `{"logical_plan": "p", "query": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := llm.NewGenerator(llm.NewMockChatModel(tt.reply))

			_, err := g.Generate(context.Background(), queryflow.GenerateRequest{Prompt: "p", Now: testNow})
			require.Error(t, err)
			assert.ErrorIs(t, err, queryflow.ErrMalformedOutput)

			var ue *queryflow.UpstreamError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, "generation", ue.Service)
			assert.Equal(t, http.StatusBadGateway, ue.StatusCode)
		})
	}
}

func TestGenerator_ModelError(t *testing.T) {
	modelErr := &llm.CallError{Op: "chat", StatusCode: http.StatusServiceUnavailable, Err: errors.New("overloaded")}
	g := llm.NewGenerator(llm.NewMockChatModel("").WithError(modelErr))

	_, err := g.Generate(context.Background(), queryflow.GenerateRequest{Prompt: "p", Now: testNow})

	var ue *queryflow.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
	assert.ErrorIs(t, err, modelErr)
}

func TestDiagnoser_Diagnose(t *testing.T) {
	mock := llm.NewMockChatModel(`{
		"error_type": "no such column: revenue",
		"affected_columns": ["revenue"],
		"affected_tables": ["sales"],
		"suggested_corrections": [{"action": "replace_column", "from": "revenue", "to": "amount"}],
		"confidence": "high"
	}`)
	d := llm.NewDiagnoser(mock)

	a, err := d.Diagnose(context.Background(), queryflow.DiagnoseRequest{
		Prompt:       "revenue by region",
		Plan:         "sum revenue",
		Query:        "SELECT SUM(revenue) FROM sales",
		ErrorHistory: []string{"first failure", "no such column: revenue"},
		Schema:       "sales(region, amount)",
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "no such column: revenue", a.ErrorType)
	assert.Equal(t, []string{"revenue"}, a.AffectedColumns)
	assert.Equal(t, []string{"sales"}, a.AffectedTables)
	assert.Equal(t, []queryflow.Correction{{Action: "replace_column", From: "revenue", To: "amount"}}, a.SuggestedCorrections)

	user := mock.LastCall().Messages[1].Content
	assert.Contains(t, user, "1. first failure")
	assert.Contains(t, user, "2. no such column: revenue")
	assert.Contains(t, user, "SELECT SUM(revenue) FROM sales")
	assert.Equal(t, llm.DefaultDiagnoseTemperature, *mock.LastCall().Options.Temperature)
}

func TestDiagnoser_Empty(t *testing.T) {
	for _, reply := range []string{"", "  ", "{}", `{"affected_columns": []}`} {
		d := llm.NewDiagnoser(llm.NewMockChatModel(reply))

		a, err := d.Diagnose(context.Background(), queryflow.DiagnoseRequest{ErrorHistory: []string{"e"}})
		require.NoError(t, err, reply)
		assert.Nil(t, a, reply)
	}
}

func TestDiagnoser_Malformed(t *testing.T) {
	d := llm.NewDiagnoser(llm.NewMockChatModel(`{"suggested_corrections": [{"from": "a"}]}`))

	_, err := d.Diagnose(context.Background(), queryflow.DiagnoseRequest{})
	assert.ErrorIs(t, err, queryflow.ErrMalformedOutput)
}

func TestInterpreter_Interpret(t *testing.T) {
	mock := llm.NewMockChatModel(`Here you go:
{
	"summary": "North leads with **200.5**.",
	"data": {"columns": ["region", "total"]},
	"recommendations": ["Expand north"],
	"next_actions": ["Break down by month"],
	"visualization_hints": {"bar_chart": true, "line_chart": false}
}`)
	i := llm.NewInterpreter(mock)

	in, err := i.Interpret(context.Background(), queryflow.InterpretRequest{
		Prompt:    "revenue by region",
		Query:     "SELECT region, SUM(amount) AS total FROM sales GROUP BY region",
		Rows:      []rows.Row{{"region": "north", "total": 200.5}},
		TotalRows: 3,
		Schema:    "sales(region, amount)",
		Now:       testNow,
	})
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "North leads with **200.5**.", in.Summary)
	assert.Equal(t, []string{"region", "total"}, in.Columns)
	assert.Equal(t, []string{"Expand north"}, in.Recommendations)
	assert.Equal(t, []string{"Break down by month"}, in.NextActions)
	assert.Equal(t, map[string]bool{"bar_chart": true, "line_chart": false}, in.VisualizationHints)

	user := mock.LastCall().Messages[1].Content
	assert.Contains(t, user, "(1 of 3 rows)")
	assert.NotContains(t, user, "row cap")
	assert.Contains(t, user, `"region": "north"`)
	assert.Equal(t, llm.DefaultInterpretTemperature, *mock.LastCall().Options.Temperature)
}

func TestInterpreter_TruncatedResult(t *testing.T) {
	mock := llm.NewMockChatModel(`{"summary": "Partial view."}`)
	i := llm.NewInterpreter(mock)

	_, err := i.Interpret(context.Background(), queryflow.InterpretRequest{
		Prompt:    "all orders",
		Rows:      []rows.Row{{"id": int64(1)}},
		TotalRows: 10000,
		Truncated: true,
		Now:       testNow,
	})
	require.NoError(t, err)

	user := mock.LastCall().Messages[1].Content
	assert.Contains(t, user, "(1 of 10000+ rows)")
	assert.Contains(t, user, "row cap")
}

func TestInterpreter_Empty(t *testing.T) {
	for _, reply := range []string{"", "{}", `{"data": {"columns": []}}`} {
		i := llm.NewInterpreter(llm.NewMockChatModel(reply))

		in, err := i.Interpret(context.Background(), queryflow.InterpretRequest{Now: testNow})
		require.NoError(t, err, reply)
		assert.Nil(t, in, reply)
	}
}

func TestInterpreter_Malformed(t *testing.T) {
	i := llm.NewInterpreter(llm.NewMockChatModel(`{"visualization_hints": {"bar_chart": "yes"}}`))

	_, err := i.Interpret(context.Background(), queryflow.InterpretRequest{Now: testNow})
	assert.ErrorIs(t, err, queryflow.ErrMalformedOutput)
}

func TestRoles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := llm.NewGenerator(llm.NewMockChatModel(`{}`)).Generate(ctx, queryflow.GenerateRequest{Now: testNow})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoles_InFlow(t *testing.T) {
	chat := llm.NewMockChatModel("").WithResponses(
		`{"logical_plan": "count rows", "query": "SELECT COUNT(*) AS n FROM sales"}`,
		`{"summary": "There are 4 sales.", "data": {"columns": ["n"]}}`,
	)

	flow, err := queryflow.New(queryflow.Services{
		Schema:      queryflow.SchemaFunc(func(context.Context) (string, error) { return "sales(id)", nil }),
		Generator:   llm.NewGenerator(chat),
		Diagnoser:   llm.NewDiagnoser(chat),
		Interpreter: llm.NewInterpreter(chat),
		Executor: queryflow.ExecutorFunc(func(context.Context, string) (queryflow.ResultSet, error) {
			return queryflow.ResultSet{Columns: []string{"n"}, Rows: []rows.Row{{"n": int64(4)}}}, nil
		}),
	})
	require.NoError(t, err)

	res, err := flow.Run(queryflow.NewContext(context.Background()), "how many sales?")
	require.NoError(t, err)
	assert.Equal(t, queryflow.StatusSucceeded, res.Status)
	assert.Equal(t, "There are 4 sales.", res.Summary)
	assert.Equal(t, 2, chat.CallCount())
}
