package tools

import (
	"context"
	"encoding/json"

	"github.com/sumire/recursiveflow/internal/domain"
)

type startJobArgs struct {
	Goal string `json:"goal" validate:"required"`
}

type jobArgs struct {
	JobID string `json:"jobId" validate:"required"`
}

type setPlanArgs struct {
	JobID string   `json:"jobId" validate:"required"`
	Todos []string `json:"todos" validate:"required"`
}

type planTodoExecutionArgs struct {
	JobID string   `json:"jobId" validate:"required"`
	Tools []string `json:"tools" validate:"required"`
}

type reportExecutionArgs struct {
	JobID  string          `json:"jobId" validate:"required"`
	Tool   string          `json:"tool" validate:"required"`
	Result json.RawMessage `json:"result"`
}

type completeTodoArgs struct {
	JobID  string `json:"jobId" validate:"required"`
	TodoID *int   `json:"todoId" validate:"required"`
}

var jobIDProperty = map[string]any{
	"type":        "string",
	"description": "The unique identifier of the job",
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func stringArray(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func workflowTools() []Tool {
	return []Tool{
		{
			Name:        "startJob",
			Title:       "Start Job",
			Description: "Starts a new job with a given goal.",
			InputSchema: objectSchema(map[string]any{
				"goal": map[string]any{"type": "string", "description": "The main objective to accomplish"},
			}, "goal"),
			handler: func(ctx context.Context, r *Registry, raw json.RawMessage) (*domain.JobResponse, error) {
				args, err := bind[startJobArgs](r.validate, raw)
				if err != nil {
					return nil, err
				}
				return r.workflow.StartJob(ctx, args.Goal)
			},
		},
		{
			Name:        "setPlan",
			Title:       "Set Plan",
			Description: "Sets the plan (todos) for a job.",
			InputSchema: objectSchema(map[string]any{
				"jobId": jobIDProperty,
				"todos": stringArray("Array of todo descriptions in execution order"),
			}, "jobId", "todos"),
			handler: func(ctx context.Context, r *Registry, raw json.RawMessage) (*domain.JobResponse, error) {
				args, err := bind[setPlanArgs](r.validate, raw)
				if err != nil {
					return nil, err
				}
				return r.workflow.SetPlan(ctx, args.JobID, args.Todos)
			},
		},
		{
			Name:        "selectNextTodo",
			Title:       "Select Next Todo",
			Description: "Selects the next todo to execute.",
			InputSchema: objectSchema(map[string]any{"jobId": jobIDProperty}, "jobId"),
			handler: func(ctx context.Context, r *Registry, raw json.RawMessage) (*domain.JobResponse, error) {
				args, err := bind[jobArgs](r.validate, raw)
				if err != nil {
					return nil, err
				}
				return r.workflow.SelectNextTodo(ctx, args.JobID)
			},
		},
		{
			Name:        "planTodoExecution",
			Title:       "Plan Todo Execution",
			Description: "Plans the execution of a todo by defining a sequence of tools.",
			InputSchema: objectSchema(map[string]any{
				"jobId": jobIDProperty,
				"tools": stringArray("Array of tool names to execute in sequence"),
			}, "jobId", "tools"),
			handler: func(ctx context.Context, r *Registry, raw json.RawMessage) (*domain.JobResponse, error) {
				args, err := bind[planTodoExecutionArgs](r.validate, raw)
				if err != nil {
					return nil, err
				}
				return r.workflow.PlanTodoExecution(ctx, args.JobID, args.Tools)
			},
		},
		{
			Name:        "reportExecution",
			Title:       "Report Execution",
			Description: "Reports the result of a tool execution.",
			InputSchema: objectSchema(map[string]any{
				"jobId":  jobIDProperty,
				"tool":   map[string]any{"type": "string", "description": "Name of the tool that was executed"},
				"result": map[string]any{"description": "Result from the tool execution"},
			}, "jobId", "tool"),
			handler: func(ctx context.Context, r *Registry, raw json.RawMessage) (*domain.JobResponse, error) {
				args, err := bind[reportExecutionArgs](r.validate, raw)
				if err != nil {
					return nil, err
				}
				return r.workflow.ReportExecution(ctx, args.JobID, args.Tool, args.Result)
			},
		},
		{
			Name:        "completeTodo",
			Title:       "Complete Todo",
			Description: "Marks a todo as complete.",
			InputSchema: objectSchema(map[string]any{
				"jobId":  jobIDProperty,
				"todoId": map[string]any{"type": "number", "description": "The ID of the todo to mark as complete"},
			}, "jobId", "todoId"),
			handler: func(ctx context.Context, r *Registry, raw json.RawMessage) (*domain.JobResponse, error) {
				args, err := bind[completeTodoArgs](r.validate, raw)
				if err != nil {
					return nil, err
				}
				return r.workflow.CompleteTodo(ctx, args.JobID, *args.TodoID)
			},
		},
		{
			Name:        "finishJob",
			Title:       "Finish Job",
			Description: "Completes the job and generates final report with all accumulated results.",
			InputSchema: objectSchema(map[string]any{"jobId": jobIDProperty}, "jobId"),
			handler: func(ctx context.Context, r *Registry, raw json.RawMessage) (*domain.JobResponse, error) {
				args, err := bind[jobArgs](r.validate, raw)
				if err != nil {
					return nil, err
				}
				return r.workflow.FinishJob(ctx, args.JobID)
			},
		},
	}
}
