package service

import (
	"time"

	"github.com/sumire/recursiveflow/internal/domain"
)

// BuildFinalReport summarizes a job's completed todos and execution history.
func BuildFinalReport(job domain.JobContext) domain.FinalReport {
	completed := make([]domain.Todo, 0, len(job.Todos))
	for _, todo := range job.Todos {
		if todo.Done {
			completed = append(completed, todo)
		}
	}

	summary := make([]domain.ExecutionSummary, len(job.ExecutionHistory))
	for i, rec := range job.ExecutionHistory {
		summary[i] = domain.ExecutionSummary{
			Tool:      rec.Tool,
			Timestamp: formatReportTime(rec.Timestamp),
			HasResult: rec.HasResult(),
		}
	}

	history := make([]domain.ExecutionRecord, len(job.ExecutionHistory))
	copy(history, job.ExecutionHistory)

	return domain.FinalReport{
		Objective:            job.Goal,
		CompletedTodos:       completed,
		TotalExecutions:      len(job.ExecutionHistory),
		ExecutionSummary:     summary,
		FullExecutionHistory: history,
	}
}

func formatReportTime(t time.Time) string {
	return t.UTC().Format(domain.TimestampLayout)
}
