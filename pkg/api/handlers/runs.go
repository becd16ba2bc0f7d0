package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/goclaw/reactor/pkg/api/middleware"
	"github.com/goclaw/reactor/pkg/api/models"
	"github.com/goclaw/reactor/pkg/api/response"
	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/reactor"
	"github.com/goclaw/reactor/pkg/workflow"
)

const maxRunRequestBytes = 1 << 20

// Executor runs a built workflow to completion.
type Executor interface {
	Execute(ctx context.Context, wf *reactor.Workflow, inputs map[string]any, opts ...reactor.RunOption) *reactor.ExecutionResult
}

// RunHandler serves the workflow catalog and starts runs.
type RunHandler struct {
	catalog   *workflow.Catalog
	executor  Executor
	logger    logger.Logger
	validator *validator.Validate
}

// NewRunHandler creates a run handler.
func NewRunHandler(catalog *workflow.Catalog, exec Executor, log logger.Logger) *RunHandler {
	if log == nil {
		log = logger.Global()
	}
	return &RunHandler{
		catalog:   catalog,
		executor:  exec,
		logger:    log,
		validator: validator.New(),
	}
}

// ListWorkflows handles GET /workflows.
func (h *RunHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Names()
	resp := models.WorkflowListResponse{
		Workflows: make([]models.WorkflowSummary, 0, len(names)),
		Total:     len(names),
	}
	for _, name := range names {
		if def, ok := h.catalog.Definition(name); ok {
			resp.Workflows = append(resp.Workflows, summarize(def))
		}
	}
	response.JSON(w, http.StatusOK, resp)
}

// GetWorkflow handles GET /workflows/{workflow}, including the schedule plan.
func (h *RunHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "workflow")
	def, ok := h.catalog.Definition(name)
	wf, built := h.catalog.Get(name)
	if !ok || !built {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "workflow not found", middleware.GetRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, models.WorkflowDetail{
		WorkflowSummary: summarize(def),
		Plan:            models.SummarizePlan(wf.Plan()),
	})
}

// StartRun handles POST /runs/{workflow}. The run executes synchronously
// and the response carries its final state. An empty body runs the
// workflow with no inputs.
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	name := chi.URLParam(r, "workflow")

	wf, ok := h.catalog.Get(name)
	if !ok {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "workflow not found", requestID)
		return
	}

	var req models.RunRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRunRequestBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", requestID)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), requestID)
		return
	}

	var opts []reactor.RunOption
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "timeout must be a positive duration", requestID)
			return
		}
		opts = append(opts, reactor.RunTimeout(d))
	}
	if req.MaxConcurrency > 0 {
		opts = append(opts, reactor.MaxConcurrency(req.MaxConcurrency))
	}
	if req.RunID != "" {
		opts = append(opts, reactor.RunID(req.RunID))
	}

	for _, input := range wf.Inputs() {
		if _, ok := req.Inputs[input]; !ok {
			response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
				"missing workflow input", map[string]any{"input": input}, requestID)
			return
		}
	}

	result := h.executor.Execute(ctx, wf, req.Inputs, opts...)
	h.logger.InfoContext(ctx, "run finished via api",
		"run_id", result.RunID,
		"workflow", result.Workflow,
		"status", result.Status.String(),
		"request_id", requestID,
	)
	response.JSON(w, http.StatusOK, models.FromResult(result))
}

func summarize(def *workflow.Definition) models.WorkflowSummary {
	steps := make([]string, 0, len(def.Steps))
	for _, s := range def.Steps {
		steps = append(steps, s.Name)
	}
	inputs := def.Inputs
	if inputs == nil {
		inputs = []string{}
	}
	return models.WorkflowSummary{
		Name:        def.Name,
		Description: def.Description,
		Inputs:      inputs,
		Steps:       steps,
		Return:      def.Return,
		Source:      def.Source,
	}
}
