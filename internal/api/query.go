package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/randalmurphal/queryflow/internal/service"
	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

// QueryRequest is the body of POST /api/v1/query.
type QueryRequest struct {
	UserQuery string `json:"user_query" validate:"required"`
	// MaxRetries overrides the configured budget when positive.
	MaxRetries int `json:"max_retries" validate:"min=0,max=10"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		badRequest(w, r, validationDetail(err))
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	res, err := s.runner.Run(ctx, service.Request{
		Prompt:     req.UserQuery,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		s.runError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	infos, err := s.runner.Checkpoints(r.Context(), runID)
	switch {
	case errors.Is(err, service.ErrCheckpointingDisabled):
		notFound(w, r, "checkpointing is disabled")
		return
	case err != nil:
		internalError(w, r, err)
		return
	case len(infos) == 0:
		notFound(w, r, fmt.Sprintf("no checkpoints for run %s", runID))
		return
	}
	respondJSON(w, http.StatusOK, infos)
}

// runError maps a failed run onto a problem response.
func (s *Server) runError(w http.ResponseWriter, r *http.Request, err error) {
	status := queryflow.StatusCode(err)

	var ue *queryflow.UpstreamError
	switch {
	case status == http.StatusBadRequest:
		badRequest(w, r, err.Error())
	case status == http.StatusGatewayTimeout:
		s.logger.Warn("query run timed out", "error", err)
		writeProblem(w, r, status, "timeout", "the query run was cancelled before it finished")
	case errors.As(err, &ue):
		s.logger.Error("upstream service failed", "service", ue.Service, "step", ue.Step, "error", err)
		writeProblem(w, r, status, "upstream_error", fmt.Sprintf("%s service failed: %s", ue.Service, ue.Message))
	default:
		s.logger.Error("query run failed", "error", err)
		internalError(w, r, err)
	}
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		if fe.Param() != "" {
			msgs[i] = fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}
