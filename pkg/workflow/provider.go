// Package workflow ingests CI workflow-run history: listing runs and
// jobs, fetching commit files, and waiting for an in-flight run to
// finish. This file defines the provider interface two backends
// satisfy (rest, githubv4); ingest.go implements the three-phase
// parallel fan-out (stage D) on top of it.
package workflow

import (
	"context"
	"time"

	"github.com/lechange-action/lechange/pkg/api"
)

// Provider is the set of operations the pipeline needs from a CI
// platform's workflow API. Both the REST and GraphQL backends implement
// it; the GraphQL backend answers these methods with errors and serves
// lookups only through its own commit-addressed methods.
type Provider interface {
	// ListWorkflowRuns lists runs for branch (empty = all branches),
	// optionally filtered by status ("queued", "in_progress", "completed").
	ListWorkflowRuns(ctx context.Context, owner, repo, branch, status string, perPage, page int) ([]api.WorkflowRun, error)

	// GetCommitFiles returns every file path touched by sha, transparently
	// paginating past GitHub's 300-file-per-page response limit.
	GetCommitFiles(ctx context.Context, owner, repo, sha string) ([]string, error)

	// GetWorkflowRun fetches a single run by id.
	GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (api.WorkflowRun, error)

	// ListWorkflowJobs lists the jobs belonging to a run.
	ListWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]api.WorkflowJob, error)

	// WaitForWorkflow polls runID with exponential backoff until it
	// reaches api.Completed or maxWait elapses, in which case it returns
	// a lcerror.KindWorkflowTimeout error.
	WaitForWorkflow(ctx context.Context, owner, repo string, runID int64, maxWait time.Duration) (api.WorkflowRun, error)
}
