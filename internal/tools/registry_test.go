package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sumire/recursiveflow/internal/domain"
	"github.com/sumire/recursiveflow/internal/metrics"
	"github.com/sumire/recursiveflow/internal/repository"
	"github.com/sumire/recursiveflow/internal/service"
)

type registryHarness struct {
	registry *Registry
	store    *repository.JobStore
	reg      *prometheus.Registry
}

func newRegistryHarness(t *testing.T) registryHarness {
	t.Helper()
	store := repository.NewJobStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, store)
	return registryHarness{
		registry: NewRegistry(service.NewWorkflowService(store), m),
		store:    store,
		reg:      reg,
	}
}

func (h registryHarness) call(t *testing.T, name, args string) *Result {
	t.Helper()
	res, err := h.registry.Call(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s(%s): %v", name, args, err)
	}
	return res
}

func toolCallCount(t *testing.T, reg *prometheus.Registry, tool, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "recursiveflow_tool_calls_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["tool"] == tool && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRegistryListsToolsInLifecycleOrder(t *testing.T) {
	h := newRegistryHarness(t)
	want := []string{"startJob", "setPlan", "selectNextTodo", "planTodoExecution", "reportExecution", "completeTodo", "finishJob"}
	got := h.registry.List()
	if len(got) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(got))
	}
	for i, tool := range got {
		if tool.Name != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], tool.Name)
		}
		if tool.Title == "" || tool.Description == "" || tool.InputSchema["type"] != "object" {
			t.Fatalf("tool %s missing metadata: %+v", tool.Name, tool)
		}
	}
}

func TestRegistryDrivesFullLifecycle(t *testing.T) {
	h := newRegistryHarness(t)

	started := h.call(t, "startJob", `{"goal":"ship feature"}`)
	id := started.Response.Context.ID

	h.call(t, "setPlan", `{"jobId":"`+id+`","todos":["design"]}`)
	h.call(t, "selectNextTodo", `{"jobId":"`+id+`"}`)
	planned := h.call(t, "planTodoExecution", `{"jobId":"`+id+`","tools":["writeSpec"]}`)
	if *planned.Response.NextAction != "writeSpec" {
		t.Fatalf("expected writeSpec, got %v", *planned.Response.NextAction)
	}
	reported := h.call(t, "reportExecution", `{"jobId":"`+id+`","tool":"writeSpec","result":{"ok":true}}`)
	if string(reported.Response.Context.ExecutionHistory[0].Result) != `{"ok":true}` {
		t.Fatalf("result not passed through: %s", reported.Response.Context.ExecutionHistory[0].Result)
	}
	h.call(t, "completeTodo", `{"jobId":"`+id+`","todoId":1}`)
	finished := h.call(t, "finishJob", `{"jobId":"`+id+`"}`)

	raw, err := json.Marshal(finished)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var envelope struct {
		Context struct {
			Status      string `json:"status"`
			FinalReport struct {
				TotalExecutions int `json:"totalExecutions"`
			} `json:"finalReport"`
		} `json:"context"`
		NextAction *string `json:"nextAction"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Context.Status != "complete" || envelope.NextAction != nil || envelope.Context.FinalReport.TotalExecutions != 1 {
		t.Fatalf("unexpected envelope %s", raw)
	}

	if got := toolCallCount(t, h.reg, "finishJob", metrics.OutcomeOK); got != 1 {
		t.Fatalf("expected one finishJob call recorded, got %v", got)
	}
}

func TestRegistryMapsDomainErrorsToEnvelopes(t *testing.T) {
	h := newRegistryHarness(t)

	missing := h.call(t, "selectNextTodo", `{"jobId":"nope"}`)
	if !missing.IsError || missing.Message != "Job not found" {
		t.Fatalf("unexpected result %+v", missing)
	}
	raw, _ := json.Marshal(missing)
	if string(raw) != `{"message":"Job not found","isError":true}` {
		t.Fatalf("unexpected envelope %s", raw)
	}

	started := h.call(t, "startJob", `{"goal":"g"}`)
	noTodo := h.call(t, "reportExecution", `{"jobId":"`+started.Response.Context.ID+`","tool":"x"}`)
	if !noTodo.IsError || noTodo.Message != "Job or current todo not found" {
		t.Fatalf("unexpected result %+v", noTodo)
	}
	if got := toolCallCount(t, h.reg, "reportExecution", metrics.OutcomeToolError); got != 1 {
		t.Fatalf("expected one tool_error recorded, got %v", got)
	}
}

func TestRegistryRejectsInvalidArguments(t *testing.T) {
	h := newRegistryHarness(t)

	tests := []struct {
		name  string
		tool  string
		args  string
		field string
	}{
		{"empty goal", "startJob", `{"goal":""}`, "goal"},
		{"missing goal", "startJob", ``, "goal"},
		{"missing job id", "selectNextTodo", `{}`, "jobId"},
		{"missing todos", "setPlan", `{"jobId":"a"}`, "todos"},
		{"missing tools", "planTodoExecution", `{"jobId":"a"}`, "tools"},
		{"missing tool name", "reportExecution", `{"jobId":"a","result":1}`, "tool"},
		{"missing todo id", "completeTodo", `{"jobId":"a"}`, "todoId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.registry.Call(context.Background(), tt.tool, json.RawMessage(tt.args))
			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if validationErr.Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, validationErr.Field)
			}
		})
	}

	_, err := h.registry.Call(context.Background(), "completeTodo", json.RawMessage(`{"jobId":"a","todoId":"one"}`))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for wrong type, got %v", err)
	}
	if n := len(h.store.List(context.Background())); n != 0 {
		t.Fatalf("invalid calls created %d jobs", n)
	}
}

func TestRegistryAcceptsEmptyLists(t *testing.T) {
	h := newRegistryHarness(t)
	id := h.call(t, "startJob", `{"goal":"g"}`).Response.Context.ID

	planned := h.call(t, "setPlan", `{"jobId":"`+id+`","todos":[]}`)
	if len(planned.Response.Context.Todos) != 0 {
		t.Fatalf("expected empty plan")
	}
	next := h.call(t, "selectNextTodo", `{"jobId":"`+id+`"}`)
	if *next.Response.NextAction != domain.ActionFinishJob {
		t.Fatalf("expected finishJob for empty plan, got %s", *next.Response.NextAction)
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	h := newRegistryHarness(t)
	_, err := h.registry.Call(context.Background(), "launchRockets", nil)
	if !errors.Is(err, domain.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestRegistryWorksWithoutMetrics(t *testing.T) {
	registry := NewRegistry(service.NewWorkflowService(repository.NewJobStore()), nil)
	res, err := registry.Call(context.Background(), "startJob", json.RawMessage(`{"goal":"g"}`))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v %+v", err, res)
	}
}
