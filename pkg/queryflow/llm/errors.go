package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

// ErrUnsupportedProvider indicates a ModelConfig names no known provider.
var ErrUnsupportedProvider = errors.New("unsupported model provider")

// CallError reports a failed model call with the HTTP status it maps to.
type CallError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// upstream converts a role failure into the error the run reports.
func upstream(service string, err error) error {
	status := http.StatusBadGateway
	var ce *CallError
	if errors.As(err, &ce) && ce.StatusCode != 0 {
		status = ce.StatusCode
	}
	return &queryflow.UpstreamError{
		Service:    service,
		StatusCode: status,
		Message:    err.Error(),
		Err:        err,
	}
}
