package queryflow

import (
	"fmt"
)

// Services groups the collaborators a Flow depends on.
type Services struct {
	Schema      SchemaSource
	Generator   Generator
	Executor    Executor
	Diagnoser   Diagnoser
	Interpreter Interpreter
}

// Flow runs the query workflow. It holds no per-run state and is safe for
// concurrent use; every call to Run owns its own State.
type Flow struct {
	schema      SchemaSource
	generator   Generator
	executor    Executor
	diagnoser   Diagnoser
	interpreter Interpreter
}

// New creates a Flow. Every service is required.
func New(svc Services) (*Flow, error) {
	missing := ""
	switch {
	case svc.Schema == nil:
		missing = "schema source"
	case svc.Generator == nil:
		missing = "generator"
	case svc.Executor == nil:
		missing = "executor"
	case svc.Diagnoser == nil:
		missing = "diagnoser"
	case svc.Interpreter == nil:
		missing = "interpreter"
	}
	if missing != "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingService, missing)
	}

	return &Flow{
		schema:      svc.Schema,
		generator:   svc.Generator,
		executor:    svc.Executor,
		diagnoser:   svc.Diagnoser,
		interpreter: svc.Interpreter,
	}, nil
}
