// Package tools exposes the workflow operations as named tools with
// declared input schemas, the shape remote callers discover and invoke.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sumire/recursiveflow/internal/domain"
	"github.com/sumire/recursiveflow/internal/metrics"
)

// Workflow is the engine surface the tools delegate to.
type Workflow interface {
	StartJob(ctx context.Context, goal string) (*domain.JobResponse, error)
	SetPlan(ctx context.Context, jobID string, todos []string) (*domain.JobResponse, error)
	SelectNextTodo(ctx context.Context, jobID string) (*domain.JobResponse, error)
	PlanTodoExecution(ctx context.Context, jobID string, tools []string) (*domain.JobResponse, error)
	ReportExecution(ctx context.Context, jobID, tool string, result []byte) (*domain.JobResponse, error)
	CompleteTodo(ctx context.Context, jobID string, todoID int) (*domain.JobResponse, error)
	FinishJob(ctx context.Context, jobID string) (*domain.JobResponse, error)
}

// Tool describes one invocable operation.
type Tool struct {
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`

	handler func(ctx context.Context, r *Registry, args json.RawMessage) (*domain.JobResponse, error)
}

// Result is the outcome of a tool call: either a job response or a
// caller-facing error message. Tool errors are results, not Go errors.
type Result struct {
	Response *domain.JobResponse
	Message  string
	IsError  bool
}

// MarshalJSON encodes the success envelope {context, nextAction} or the
// error envelope {message, isError}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsError {
		return json.Marshal(struct {
			Message string `json:"message"`
			IsError bool   `json:"isError"`
		}{r.Message, true})
	}
	return json.Marshal(r.Response)
}

// Registry holds the workflow tools in lifecycle order.
type Registry struct {
	workflow Workflow
	validate *Validator
	metrics  *metrics.Metrics
	tools    []Tool
	byName   map[string]int
}

// NewRegistry registers the seven workflow tools. m may be nil.
func NewRegistry(workflow Workflow, m *metrics.Metrics) *Registry {
	r := &Registry{
		workflow: workflow,
		validate: NewValidator(),
		metrics:  m,
		byName:   make(map[string]int),
	}
	for _, tool := range workflowTools() {
		r.byName[tool.Name] = len(r.tools)
		r.tools = append(r.tools, tool)
	}
	return r
}

// List returns the registered tools in lifecycle order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Call decodes and validates args and runs the named tool. It returns an
// error only for unknown tools, invalid arguments, or unexpected failures.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (*Result, error) {
	started := time.Now()

	idx, ok := r.byName[name]
	if !ok {
		r.metrics.ObserveToolCall("unknown", metrics.OutcomeUnknown, time.Since(started))
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}

	resp, err := r.tools[idx].handler(ctx, r, args)
	switch {
	case err == nil:
		r.metrics.ObserveToolCall(name, metrics.OutcomeOK, time.Since(started))
		return &Result{Response: resp}, nil
	case errors.Is(err, domain.ErrJobNotFound):
		r.metrics.ObserveToolCall(name, metrics.OutcomeToolError, time.Since(started))
		return &Result{Message: "Job not found", IsError: true}, nil
	case errors.Is(err, domain.ErrNoActiveTodo):
		r.metrics.ObserveToolCall(name, metrics.OutcomeToolError, time.Since(started))
		return &Result{Message: "Job or current todo not found", IsError: true}, nil
	case isInvalid(err):
		r.metrics.ObserveToolCall(name, metrics.OutcomeInvalid, time.Since(started))
		return nil, err
	default:
		r.metrics.ObserveToolCall(name, metrics.OutcomeToolError, time.Since(started))
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
}

func isInvalid(err error) bool {
	var validationErr *domain.ValidationError
	return errors.As(err, &validationErr) || errors.Is(err, domain.ErrInvalidInput)
}
