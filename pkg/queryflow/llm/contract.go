package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

// generationOutput is what the generation role must return.
type generationOutput struct {
	LogicalPlan string `json:"logical_plan" jsonschema:"minLength=1,description=Step by step plan naming the tables and columns and filters and aggregations the query needs"`
	Query       string `json:"query" jsonschema:"minLength=1,description=A single read-only SQL statement implementing the plan"`
}

// analysisOutput is what the diagnosis role must return.
type analysisOutput struct {
	ErrorType            string             `json:"error_type,omitempty" jsonschema:"description=The exact reason for the failure as stated by the data store"`
	AffectedColumns      []string           `json:"affected_columns,omitempty" jsonschema:"description=Columns that caused the failure"`
	AffectedTables       []string           `json:"affected_tables,omitempty" jsonschema:"description=Tables that caused the failure"`
	SuggestedCorrections []correctionOutput `json:"suggested_corrections,omitempty" jsonschema:"description=Corrections the query planner can apply directly"`
}

type correctionOutput struct {
	Action string `json:"action" jsonschema:"description=What to change such as replace_column or add_filter"`
	From   string `json:"from,omitempty" jsonschema:"description=The failing fragment"`
	To     string `json:"to,omitempty" jsonschema:"description=Its replacement"`
}

func (a analysisOutput) toAnalysis() *queryflow.ErrorAnalysis {
	out := &queryflow.ErrorAnalysis{
		ErrorType:       a.ErrorType,
		AffectedColumns: a.AffectedColumns,
		AffectedTables:  a.AffectedTables,
	}
	for _, c := range a.SuggestedCorrections {
		out.SuggestedCorrections = append(out.SuggestedCorrections, queryflow.Correction(c))
	}
	return out
}

// interpretationOutput is what the interpretation role must return.
type interpretationOutput struct {
	Summary            string          `json:"summary,omitempty" jsonschema:"description=A concise summary in Markdown"`
	Data               dataColumns     `json:"data,omitempty" jsonschema:"description=The columns a table of the results should show"`
	Recommendations    []string        `json:"recommendations,omitempty" jsonschema:"description=Actionable recommendations based on the results"`
	NextActions        []string        `json:"next_actions,omitempty" jsonschema:"description=Follow-up questions or steps for the user"`
	VisualizationHints map[string]bool `json:"visualization_hints,omitempty" jsonschema:"description=Chart kinds that suit the data such as bar_chart or line_chart"`
}

func (o interpretationOutput) toInterpretation() *queryflow.Interpretation {
	return &queryflow.Interpretation{
		Summary:            o.Summary,
		Columns:            o.Data.Columns,
		Recommendations:    o.Recommendations,
		NextActions:        o.NextActions,
		VisualizationHints: o.VisualizationHints,
	}
}

type dataColumns struct {
	Columns []string `json:"columns,omitempty" jsonschema:"description=Column names in display order"`
}

// contract pairs an output type's JSON schema text with its compiled
// validator.
type contract struct {
	text   string
	schema *gojsonschema.Schema
}

var (
	generationContract     = mustContract(&generationOutput{})
	analysisContract       = mustContract(&analysisOutput{})
	interpretationContract = mustContract(&interpretationOutput{})
)

func mustContract(v any) contract {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(v)
	s.Version = ""

	text, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("marshal output schema: %v", err))
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(text))
	if err != nil {
		panic(fmt.Sprintf("compile output schema: %v", err))
	}
	return contract{text: string(text), schema: compiled}
}

// decode extracts the JSON object from a model reply, validates it against
// the contract and unmarshals it into out.
func (c contract) decode(reply string, out any) error {
	raw, err := extractJSON(reply)
	if err != nil {
		return err
	}

	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", queryflow.ErrMalformedOutput, err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("%w: validation errors: %s", queryflow.ErrMalformedOutput, strings.Join(problems, "; "))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", queryflow.ErrMalformedOutput, err)
	}
	return nil
}

var errNoJSON = errors.New("reply contains no JSON object")

// extractJSON returns the outermost JSON object in a reply, tolerating
// Markdown fences and surrounding prose.
func extractJSON(reply string) ([]byte, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: %w", queryflow.ErrMalformedOutput, errNoJSON)
	}
	raw := []byte(reply[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: reply JSON is not well formed", queryflow.ErrMalformedOutput)
	}
	return raw, nil
}
