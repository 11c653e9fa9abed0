package main

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/finance-sankey/internal/jobs"
	"github.com/dvloznov/finance-sankey/internal/jobs/inmemory"
)

func TestObjectURI(t *testing.T) {
	tests := []struct {
		prefix string
		source string
		want   string
	}{
		{"gs://b/graphs", "gs://budgets/fy23.json", "gs://b/graphs/budgets_fy23.json"},
		{"gs://b/graphs/", "data/jmu.json", "gs://b/graphs/data_jmu.json"},
		{"gs://b/graphs", "bq://proj/finance?from=2023-07-01", "gs://b/graphs/proj_finance.json"},
		{"gs://b/graphs", "postgres://user:secret@db:5432/budget?table=fy23", "gs://b/graphs/db_5432_budget.json"},
		{"gs://b", "file:///", "gs://b/graph.json"},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := objectURI(tt.prefix, tt.source); got != tt.want {
				t.Errorf("objectURI(%q, %q) = %q, want %q", tt.prefix, tt.source, got, tt.want)
			}
		})
	}
}

func TestWaitForJobs(t *testing.T) {
	store := inmemory.NewStore()
	ctx := context.Background()

	for id, status := range map[string]jobs.JobStatus{
		"ok":   jobs.JobStatusCompleted,
		"bad":  jobs.JobStatusFailed,
		"slow": jobs.JobStatusRunning,
	} {
		if err := store.SaveJob(ctx, &jobs.BuildGraphJob{JobID: id, Status: status}); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = store.UpdateJobStatus(ctx, "slow", jobs.JobStatusCompleted, "")
	}()

	if failed := waitForJobs(ctx, store, []string{"ok", "bad", "slow"}); failed != 1 {
		t.Errorf("waitForJobs() failed = %d, want 1", failed)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_ = store.SaveJob(ctx, &jobs.BuildGraphJob{JobID: "stuck", Status: jobs.JobStatusPending})
	if failed := waitForJobs(cancelled, store, []string{"ok", "stuck"}); failed != 1 {
		t.Errorf("waitForJobs() on cancelled context = %d, want 1", failed)
	}
}
