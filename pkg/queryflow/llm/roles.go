package llm

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

// DateLayout is how the current date appears in prompts.
const DateLayout = "January 02, 2006 at 15:04 MST"

// Default sampling temperatures per role.
const (
	DefaultGenerateTemperature  float32 = 0.15
	DefaultDiagnoseTemperature  float32 = 0.25
	DefaultInterpretTemperature float32 = 0.45
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	ParseFS(promptFS, "prompts/*.tmpl"))

// Option configures a role.
type Option func(*role)

// WithTemperature overrides the role's sampling temperature.
func WithTemperature(t float32) Option {
	return func(r *role) { r.temperature = t }
}

// WithLogger sets the logger for model call diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *role) {
		if l != nil {
			r.logger = l
		}
	}
}

// role is one prompt-and-contract pairing over a chat model.
type role struct {
	service     string
	template    string
	contract    contract
	model       model.BaseChatModel
	temperature float32
	logger      *slog.Logger
}

func newRole(service, tmpl string, c contract, m model.BaseChatModel, temp float32, opts []Option) role {
	r := role{
		service:     service,
		template:    tmpl,
		contract:    c,
		model:       m,
		temperature: temp,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

type envelope struct {
	Contract string
	In       any
}

// messages renders the role's system and user prompts.
func (r role) messages(in any) ([]*schema.Message, error) {
	env := envelope{Contract: r.contract.text, In: in}

	var system, user bytes.Buffer
	if err := prompts.ExecuteTemplate(&system, r.template+".system", env); err != nil {
		return nil, fmt.Errorf("render %s system prompt: %w", r.template, err)
	}
	if err := prompts.ExecuteTemplate(&user, r.template+".user", env); err != nil {
		return nil, fmt.Errorf("render %s user prompt: %w", r.template, err)
	}
	return []*schema.Message{
		schema.SystemMessage(system.String()),
		schema.UserMessage(user.String()),
	}, nil
}

// complete sends the rendered prompts and returns the reply text.
func (r role) complete(ctx context.Context, in any) (string, error) {
	msgs, err := r.messages(in)
	if err != nil {
		return "", err
	}

	start := time.Now()
	reply, err := r.model.Generate(ctx, msgs, model.WithTemperature(r.temperature))
	if err != nil {
		return "", upstream(r.service, err)
	}
	if reply == nil {
		return "", nil
	}

	r.logger.Debug("model call completed",
		slog.String("role", r.service),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.Int("reply_chars", len(reply.Content)),
	)
	return reply.Content, nil
}

// Generator writes a logical plan and query text with a chat model.
type Generator struct {
	role
}

// NewGenerator creates a Generator over m.
func NewGenerator(m model.BaseChatModel, opts ...Option) *Generator {
	return &Generator{newRole("generation", "generate", generationContract, m, DefaultGenerateTemperature, opts)}
}

type generateInput struct {
	Schema        string
	Prompt        string
	Date          string
	PriorAnalysis string
}

// Generate implements queryflow.Generator.
func (g *Generator) Generate(ctx context.Context, req queryflow.GenerateRequest) (queryflow.Generation, error) {
	in := generateInput{
		Schema: req.Schema,
		Prompt: req.Prompt,
		Date:   req.Now.UTC().Format(DateLayout),
	}
	if !req.PriorAnalysis.IsEmpty() {
		b, err := json.MarshalIndent(req.PriorAnalysis, "", "  ")
		if err != nil {
			return queryflow.Generation{}, fmt.Errorf("encode prior analysis: %w", err)
		}
		in.PriorAnalysis = string(b)
	}

	reply, err := g.complete(ctx, in)
	if err != nil {
		return queryflow.Generation{}, err
	}

	var out generationOutput
	if err := g.contract.decode(reply, &out); err != nil {
		return queryflow.Generation{}, upstream(g.service, err)
	}
	return queryflow.Generation{
		Plan:  strings.TrimSpace(out.LogicalPlan),
		Query: strings.TrimSpace(out.Query),
	}, nil
}

// Diagnoser explains failed queries with a chat model.
type Diagnoser struct {
	role
}

// NewDiagnoser creates a Diagnoser over m.
func NewDiagnoser(m model.BaseChatModel, opts ...Option) *Diagnoser {
	return &Diagnoser{newRole("diagnosis", "diagnose", analysisContract, m, DefaultDiagnoseTemperature, opts)}
}

type diagnoseInput struct {
	Schema string
	Prompt string
	Plan   string
	Query  string
	Errors []string
}

// Diagnose implements queryflow.Diagnoser. A reply with no fields yields a
// nil analysis.
func (d *Diagnoser) Diagnose(ctx context.Context, req queryflow.DiagnoseRequest) (*queryflow.ErrorAnalysis, error) {
	reply, err := d.complete(ctx, diagnoseInput{
		Schema: req.Schema,
		Prompt: req.Prompt,
		Plan:   req.Plan,
		Query:  req.Query,
		Errors: req.ErrorHistory,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply) == "" {
		return nil, nil
	}

	var out analysisOutput
	if err := d.contract.decode(reply, &out); err != nil {
		return nil, upstream(d.service, err)
	}
	a := out.toAnalysis()
	if a.IsEmpty() {
		return nil, nil
	}
	return a, nil
}

// Interpreter narrates query results with a chat model.
type Interpreter struct {
	role
}

// NewInterpreter creates an Interpreter over m.
func NewInterpreter(m model.BaseChatModel, opts ...Option) *Interpreter {
	return &Interpreter{newRole("interpretation", "interpret", interpretationContract, m, DefaultInterpretTemperature, opts)}
}

type interpretInput struct {
	Schema    string
	Prompt    string
	Query     string
	Date      string
	Rows      string
	Shown     int
	Total     int
	Truncated bool
}

// Interpret implements queryflow.Interpreter. A blank reply or one with no
// fields yields a nil interpretation.
func (i *Interpreter) Interpret(ctx context.Context, req queryflow.InterpretRequest) (*queryflow.Interpretation, error) {
	rowsJSON, err := json.MarshalIndent(req.Rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}

	reply, err := i.complete(ctx, interpretInput{
		Schema:    req.Schema,
		Prompt:    req.Prompt,
		Query:     req.Query,
		Date:      req.Now.UTC().Format(DateLayout),
		Rows:      string(rowsJSON),
		Shown:     len(req.Rows),
		Total:     req.TotalRows,
		Truncated: req.Truncated,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply) == "" {
		return nil, nil
	}

	var out interpretationOutput
	if err := i.contract.decode(reply, &out); err != nil {
		return nil, upstream(i.service, err)
	}
	in := out.toInterpretation()
	if in.IsZero() {
		return nil, nil
	}
	return in, nil
}
