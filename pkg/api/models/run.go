// Package models defines API request/response data structures.
package models

import (
	"github.com/goclaw/reactor/pkg/dag"
	"github.com/goclaw/reactor/pkg/reactor"
)

// RunRequest starts a workflow run.
type RunRequest struct {
	// Inputs supplies a value for every declared workflow input.
	Inputs map[string]any `json:"inputs,omitempty"`

	// RunID overrides the generated run identifier.
	RunID string `json:"run_id,omitempty" validate:"omitempty,max=128"`

	// MaxConcurrency bounds parallel steps for this run. Zero keeps the executor default.
	MaxConcurrency int `json:"max_concurrency,omitempty" validate:"omitempty,min=1,max=1024"`

	// Timeout bounds the whole run, as a Go duration string.
	Timeout string `json:"timeout,omitempty"`
}

// StepResponse is the outcome of one step.
type StepResponse struct {
	Step       string  `json:"step"`
	State      string  `json:"state"`
	Success    bool    `json:"success"`
	Value      any     `json:"value,omitempty"`
	Error      string  `json:"error,omitempty"`
	Attempts   int     `json:"attempts"`
	DurationMS float64 `json:"duration_ms"`
	Continued  bool    `json:"continued,omitempty"`
}

// RollbackResponse lists what an aborted run undid.
type RollbackResponse struct {
	Undone []string `json:"undone"`
	Errors []string `json:"errors,omitempty"`
}

// RunResponse is the final state of a run.
type RunResponse struct {
	RunID       string                  `json:"run_id"`
	Workflow    string                  `json:"workflow"`
	Status      string                  `json:"status"`
	ReturnValue any                     `json:"return_value,omitempty"`
	Error       string                  `json:"error,omitempty"`
	DurationMS  float64                 `json:"duration_ms"`
	Steps       map[string]StepResponse `json:"steps"`
	Rollback    *RollbackResponse       `json:"rollback,omitempty"`
}

// FromResult converts an execution result to its API form.
func FromResult(result *reactor.ExecutionResult) RunResponse {
	resp := RunResponse{
		RunID:       result.RunID,
		Workflow:    result.Workflow,
		Status:      result.Status.String(),
		ReturnValue: result.ReturnValue,
		DurationMS:  float64(result.Duration.Microseconds()) / 1000,
		Steps:       make(map[string]StepResponse, len(result.StepResults)),
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	for name, sr := range result.StepResults {
		resp.Steps[name] = StepResponse{
			Step:       sr.Step,
			State:      sr.State.String(),
			Success:    sr.Success,
			Value:      sr.Value,
			Error:      sr.Error,
			Attempts:   sr.Attempts,
			DurationMS: float64(sr.Duration.Microseconds()) / 1000,
			Continued:  sr.Continued,
		}
	}
	if result.Rollback != nil {
		rb := &RollbackResponse{Undone: append([]string{}, result.Rollback.Undone...)}
		for _, err := range result.Rollback.Errors {
			rb.Errors = append(rb.Errors, err.Error())
		}
		resp.Rollback = rb
	}
	return resp
}

// WorkflowSummary describes a loaded workflow. Steps keep declaration order.
type WorkflowSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Inputs      []string `json:"inputs"`
	Steps       []string `json:"steps"`
	Return      string   `json:"return"`
	Source      string   `json:"source,omitempty"`
}

// PlanSummary describes how a workflow's steps will be scheduled. Order
// holds only the steps needed for the return value.
type PlanSummary struct {
	Order        []string   `json:"order"`
	Layers       [][]string `json:"layers"`
	MaxParallel  int        `json:"max_parallel"`
	CriticalPath []string   `json:"critical_path"`
}

// SummarizePlan converts a compiled plan into its API form.
func SummarizePlan(p *dag.Plan) PlanSummary {
	return PlanSummary{
		Order:        p.RequiredNames(),
		Layers:       p.Layers(),
		MaxParallel:  p.MaxParallel(),
		CriticalPath: p.CriticalPath(),
	}
}

// WorkflowDetail is a workflow summary plus its compiled plan.
type WorkflowDetail struct {
	WorkflowSummary
	Plan PlanSummary `json:"plan"`
}

// WorkflowListResponse lists every loaded workflow.
type WorkflowListResponse struct {
	Workflows []WorkflowSummary `json:"workflows"`
	Total     int               `json:"total"`
}

