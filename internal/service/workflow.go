package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumire/recursiveflow/internal/domain"
)

// JobStore defines the job data access interface consumed by WorkflowService.
type JobStore interface {
	FindByID(ctx context.Context, id string) (*domain.JobContext, error)
	Save(ctx context.Context, job domain.JobContext) error
	List(ctx context.Context) []domain.JobContext
	Update(ctx context.Context, id string, fn func(job *domain.JobContext) error) (*domain.JobContext, error)
}

// Option customizes a WorkflowService.
type Option func(*WorkflowService)

// WithClock injects a deterministic clock for execution timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *WorkflowService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides how new job IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *WorkflowService) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WorkflowService drives jobs through planning, execution and completion.
// It never performs tool work itself; every operation returns the updated
// job and the action the caller should take next.
type WorkflowService struct {
	jobs  JobStore
	clock func() time.Time
	newID func() string
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(jobs JobStore, opts ...Option) *WorkflowService {
	s := &WorkflowService{
		jobs:  jobs,
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartJob creates a job in the planning state.
func (s *WorkflowService) StartJob(ctx context.Context, goal string) (*domain.JobResponse, error) {
	if strings.TrimSpace(goal) == "" {
		return nil, &domain.ValidationError{Field: "goal", Message: "must not be empty"}
	}

	job := domain.JobContext{
		ID:               s.newID(),
		Goal:             goal,
		Status:           domain.JobStatusPlanning,
		Todos:            []domain.Todo{},
		ExecutionHistory: []domain.ExecutionRecord{},
		Thoughts:         []string{},
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}

	slog.Debug("job started", "job_id", job.ID)
	return respond(job.Clone(), domain.Next(domain.ActionSetPlan)), nil
}

// SetPlan replaces the job's todos and moves it into execution.
// Todo IDs are assigned by position starting at 1.
func (s *WorkflowService) SetPlan(ctx context.Context, jobID string, todos []string) (*domain.JobResponse, error) {
	job, err := s.jobs.Update(ctx, jobID, func(job *domain.JobContext) error {
		job.Todos = make([]domain.Todo, len(todos))
		for i, text := range todos {
			job.Todos[i] = domain.Todo{ID: i + 1, Text: text}
		}
		job.Status = job.Status.Advance(domain.JobStatusExecuting)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set plan: %w", err)
	}

	slog.Debug("plan set", "job_id", jobID, "todos", len(todos))
	return respond(*job, domain.Next(domain.ActionSelectNextTodo)), nil
}

// SelectNextTodo puts the first pending todo in flight. When every todo is
// done the job is ready to finish.
func (s *WorkflowService) SelectNextTodo(ctx context.Context, jobID string) (*domain.JobResponse, error) {
	found := false
	job, err := s.jobs.Update(ctx, jobID, func(job *domain.JobContext) error {
		for _, todo := range job.Todos {
			if todo.Done {
				continue
			}
			job.CurrentTodo = &domain.CurrentTodo{
				TodoID:   todo.ID,
				TodoText: todo.Text,
				ToolPlan: []string{},
			}
			found = true
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select next todo: %w", err)
	}

	if !found {
		slog.Debug("no pending todos", "job_id", jobID)
		return respond(*job, domain.Next(domain.ActionFinishJob)), nil
	}
	slog.Debug("todo selected", "job_id", jobID, "todo_id", job.CurrentTodo.TodoID)
	return respond(*job, domain.Next(domain.ActionPlanTodoExecution)), nil
}

// PlanTodoExecution sets the ordered tool plan for the current todo and
// rewinds its cursor. An empty plan sends the caller straight to completeTodo.
func (s *WorkflowService) PlanTodoExecution(ctx context.Context, jobID string, tools []string) (*domain.JobResponse, error) {
	job, err := s.jobs.Update(ctx, jobID, func(job *domain.JobContext) error {
		if job.CurrentTodo == nil {
			return domain.ErrNoActiveTodo
		}
		plan := make([]string, len(tools))
		copy(plan, tools)
		job.CurrentTodo.ToolPlan = plan
		job.CurrentTodo.CurrentToolIndex = 0
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("plan todo execution: %w", err)
	}

	next := nextAfterCursor(job.CurrentTodo)
	slog.Debug("todo execution planned", "job_id", jobID, "tools", len(tools), "next_action", *next)
	return respond(*job, next), nil
}

// ReportExecution appends the reported result to the execution history and
// advances the current todo's cursor.
func (s *WorkflowService) ReportExecution(ctx context.Context, jobID, tool string, result []byte) (*domain.JobResponse, error) {
	now := s.clock().UTC()
	job, err := s.jobs.Update(ctx, jobID, func(job *domain.JobContext) error {
		cur := job.CurrentTodo
		if cur == nil {
			return domain.ErrNoActiveTodo
		}
		job.ExecutionHistory = append(job.ExecutionHistory, domain.ExecutionRecord{
			Tool:      tool,
			Result:    append([]byte(nil), result...),
			Timestamp: now,
		})
		if cur.CurrentToolIndex < len(cur.ToolPlan) {
			cur.CurrentToolIndex++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("report execution: %w", err)
	}

	next := nextAfterCursor(job.CurrentTodo)
	slog.Debug("execution reported", "job_id", jobID, "tool", tool, "next_action", *next)
	return respond(*job, next), nil
}

// CompleteTodo marks the todo with the given ID as done and clears the
// current todo. The ID does not have to match the in-flight todo, and an
// unknown ID only clears the cursor.
func (s *WorkflowService) CompleteTodo(ctx context.Context, jobID string, todoID int) (*domain.JobResponse, error) {
	matched := false
	job, err := s.jobs.Update(ctx, jobID, func(job *domain.JobContext) error {
		for i := range job.Todos {
			if job.Todos[i].ID == todoID {
				job.Todos[i].Done = true
				matched = true
				break
			}
		}
		job.CurrentTodo = nil
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete todo: %w", err)
	}

	slog.Debug("todo completed", "job_id", jobID, "todo_id", todoID, "matched", matched)
	return respond(*job, domain.Next(domain.ActionSelectNextTodo)), nil
}

// FinishJob marks the job complete and synthesizes its final report.
// Calling it again rebuilds the report from the current state.
func (s *WorkflowService) FinishJob(ctx context.Context, jobID string) (*domain.JobResponse, error) {
	job, err := s.jobs.Update(ctx, jobID, func(job *domain.JobContext) error {
		job.Status = job.Status.Advance(domain.JobStatusComplete)
		report := BuildFinalReport(*job)
		job.FinalReport = &report
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finish job: %w", err)
	}

	slog.Info("job finished", "job_id", jobID, "executions", job.FinalReport.TotalExecutions)
	return respond(*job, nil), nil
}

// GetJob returns a snapshot of a single job.
func (s *WorkflowService) GetJob(ctx context.Context, jobID string) (*domain.JobContext, error) {
	return s.jobs.FindByID(ctx, jobID)
}

// ListJobs returns snapshots of every job in creation order.
func (s *WorkflowService) ListJobs(ctx context.Context) []domain.JobContext {
	return s.jobs.List(ctx)
}

// nextAfterCursor returns the tool at the cursor or completeTodo once the
// plan is exhausted. A blank tool name also yields completeTodo.
func nextAfterCursor(cur *domain.CurrentTodo) *domain.NextAction {
	if tool, ok := cur.NextTool(); ok && tool != "" {
		return domain.Next(domain.NextAction(tool))
	}
	return domain.Next(domain.ActionCompleteTodo)
}

func respond(job domain.JobContext, next *domain.NextAction) *domain.JobResponse {
	return &domain.JobResponse{Context: job, NextAction: next}
}
