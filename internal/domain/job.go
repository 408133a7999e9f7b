package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPlanning  JobStatus = "planning"
	JobStatusExecuting JobStatus = "executing"
	JobStatusComplete  JobStatus = "complete"
)

// rank orders statuses so transitions can be checked for regression.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPlanning:
		return 0
	case JobStatusExecuting:
		return 1
	case JobStatusComplete:
		return 2
	default:
		return -1
	}
}

// Advance returns the later of s and next. Status never moves backwards.
func (s JobStatus) Advance(next JobStatus) JobStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Todo is a single ordered sub-task within a job's plan.
type Todo struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// CurrentTodo tracks the todo that is in flight and how far its tool plan has progressed.
type CurrentTodo struct {
	TodoID           int      `json:"todoId"`
	TodoText         string   `json:"todoText"`
	ToolPlan         []string `json:"toolPlan"`
	CurrentToolIndex int      `json:"currentToolIndex"`
}

// NextTool returns the tool at the cursor, if any remain.
func (c *CurrentTodo) NextTool() (string, bool) {
	if c.CurrentToolIndex < 0 || c.CurrentToolIndex >= len(c.ToolPlan) {
		return "", false
	}
	return c.ToolPlan[c.CurrentToolIndex], true
}

// TimestampLayout renders execution timestamps as UTC ISO-8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ExecutionRecord is an append-only log entry for a reported tool execution.
// Result is opaque to the engine; the caller decides its shape.
type ExecutionRecord struct {
	Tool      string          `json:"tool"`
	Result    json.RawMessage `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON encodes Timestamp with TimestampLayout.
func (r ExecutionRecord) MarshalJSON() ([]byte, error) {
	type record ExecutionRecord
	return json.Marshal(struct {
		record
		Timestamp string `json:"timestamp"`
	}{record(r), r.Timestamp.UTC().Format(TimestampLayout)})
}

// HasResult reports whether the recorded result is a truthy value.
// Absent, null, false, zero and empty-string results count as no result.
func (r ExecutionRecord) HasResult() bool {
	raw := bytes.TrimSpace(r.Result)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case 'n':
		return false
	case 'f':
		return !bytes.Equal(raw, []byte("false"))
	case '"':
		return !bytes.Equal(raw, []byte(`""`))
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		n, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return true
		}
		return n != 0
	}
	return true
}

// ExecutionSummary is the condensed view of an ExecutionRecord in a final report.
type ExecutionSummary struct {
	Tool      string `json:"tool"`
	Timestamp string `json:"timestamp"`
	HasResult bool   `json:"hasResult"`
}

// FinalReport is synthesized when a job finishes.
type FinalReport struct {
	Objective            string             `json:"objective"`
	CompletedTodos       []Todo             `json:"completedTodos"`
	TotalExecutions      int                `json:"totalExecutions"`
	ExecutionSummary     []ExecutionSummary `json:"executionSummary"`
	FullExecutionHistory []ExecutionRecord  `json:"fullExecutionHistory"`
}

// JobContext is the aggregate root for one pursuit of a goal.
type JobContext struct {
	ID               string            `json:"id"`
	Goal             string            `json:"goal"`
	Status           JobStatus         `json:"status"`
	Todos            []Todo            `json:"todos"`
	CurrentTodo      *CurrentTodo      `json:"currentTodo,omitempty"`
	ExecutionHistory []ExecutionRecord `json:"executionHistory"`
	Thoughts         []string          `json:"thoughts"`
	FinalReport      *FinalReport      `json:"finalReport,omitempty"`
}

// Clone returns a deep copy of the job so callers cannot alias stored state.
func (j JobContext) Clone() JobContext {
	out := j
	out.Todos = cloneSlice(j.Todos)
	out.ExecutionHistory = cloneSlice(j.ExecutionHistory)
	out.Thoughts = cloneSlice(j.Thoughts)
	if j.CurrentTodo != nil {
		cur := *j.CurrentTodo
		cur.ToolPlan = cloneSlice(j.CurrentTodo.ToolPlan)
		out.CurrentTodo = &cur
	}
	if j.FinalReport != nil {
		rep := *j.FinalReport
		rep.CompletedTodos = cloneSlice(j.FinalReport.CompletedTodos)
		rep.ExecutionSummary = cloneSlice(j.FinalReport.ExecutionSummary)
		rep.FullExecutionHistory = cloneSlice(j.FinalReport.FullExecutionHistory)
		out.FinalReport = &rep
	}
	return out
}

// cloneSlice copies s, keeping empty slices non-nil so they encode as [].
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}

// NextAction names the operation or external tool the caller should invoke next.
type NextAction string

const (
	ActionSetPlan           NextAction = "setPlan"
	ActionSelectNextTodo    NextAction = "selectNextTodo"
	ActionPlanTodoExecution NextAction = "planTodoExecution"
	ActionCompleteTodo      NextAction = "completeTodo"
	ActionFinishJob         NextAction = "finishJob"
)

// Next wraps a NextAction for use in a JobResponse.
func Next(a NextAction) *NextAction {
	return &a
}

// JobResponse is returned by every successful workflow operation.
// A nil NextAction marks the terminal step and encodes as null.
type JobResponse struct {
	Context    JobContext  `json:"context"`
	NextAction *NextAction `json:"nextAction"`
}
