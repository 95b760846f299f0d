// Package githubv4provider implements workflow.Provider against GitHub's
// GraphQL v4 API via shurcooL/githubv4. It exists alongside pkg/workflow/rest
// as an alternate transport. Only its commit-addressed methods
// (GetWorkflowRunForCommit, ListWorkflowJobsForCommit,
// WaitForWorkflowForCommit) query the API; the workflow.Provider methods
// themselves return KindWorkflow errors, so this backend cannot take the
// REST one's place in history ingestion.
package githubv4provider

import (
	"context"
	"net/http"
	"time"

	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/backoff"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/lcerror"
)

// Client is a workflow.Provider backed by the GraphQL v4 API.
type Client struct {
	v4       *githubv4.Client
	interner *interner.Interner
}

// New builds a Client. token may be empty for public, unauthenticated
// access at GitHub's lower GraphQL rate limit.
func New(token string, in *interner.Interner) *Client {
	var httpClient *http.Client
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), src)
	} else {
		httpClient = http.DefaultClient
	}
	return &Client{v4: githubv4.NewClient(httpClient), interner: in}
}

type checkRunNode struct {
	DatabaseID githubv4.Int
	Name       githubv4.String
	Status     githubv4.String
	Conclusion githubv4.String
	StartedAt  githubv4.DateTime
}

type workflowRunQuery struct {
	Repository struct {
		Object struct {
			Commit struct {
				CheckSuites struct {
					Nodes []struct {
						WorkflowRun struct {
							DatabaseID githubv4.Int
							Workflow   struct {
								Name githubv4.String
							}
						}
						Status     githubv4.String
						Conclusion githubv4.String
						CreatedAt  githubv4.DateTime
						CheckRuns  struct {
							Nodes []checkRunNode
						} `graphql:"checkRuns(first: 100)"`
					}
				} `graphql:"checkSuites(first: 50)"`
			} `graphql:"... on Commit"`
		} `graphql:"object(expression: $sha)"`
	} `graphql:"repository(owner: $owner, name: $repo)"`
}

func parseStatus(s githubv4.String) api.WorkflowStatus {
	switch string(s) {
	case "QUEUED":
		return api.Queued
	case "IN_PROGRESS":
		return api.InProgress
	default:
		return api.Completed
	}
}

func parseConclusion(s githubv4.String) api.WorkflowConclusion {
	switch string(s) {
	case "SUCCESS":
		return api.Success
	case "FAILURE":
		return api.Failure
	case "CANCELLED":
		return api.Cancelled
	case "SKIPPED":
		return api.Skipped
	case "TIMED_OUT":
		return api.TimedOut
	default:
		return api.Neutral
	}
}

// ListWorkflowRuns is not available cheaply over the check-suite-centric
// GraphQL schema without per-commit fan-out; the REST backend is the
// primary implementation for history ingestion (stage D's bulk listing).
// This backend targets the single-run lookup and wait path.
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, repo, branch, status string, perPage, page int) ([]api.WorkflowRun, error) {
	return nil, lcerror.New(lcerror.KindWorkflow, "ListWorkflowRuns is not supported by the GraphQL backend; use the REST provider for history ingestion")
}

// GetCommitFiles always returns a KindWorkflow error: GraphQL's
// associatedPullRequests/files connections don't cover commits outside
// a PR context reliably, so commit file listing is left to the REST
// provider.
func (c *Client) GetCommitFiles(ctx context.Context, owner, repo, sha string) ([]string, error) {
	return nil, lcerror.New(lcerror.KindWorkflow, "GetCommitFiles is not supported by the GraphQL backend; use the REST provider for commit file listing")
}

func (c *Client) runFromCheckSuites(q workflowRunQuery) (api.WorkflowRun, bool) {
	for _, cs := range q.Repository.Object.Commit.CheckSuites.Nodes {
		status := parseStatus(cs.Status)
		var conclusion *api.WorkflowConclusion
		if cs.Conclusion != "" {
			cc := parseConclusion(cs.Conclusion)
			conclusion = &cc
		}
		run := api.WorkflowRun{
			ID:         int64(cs.WorkflowRun.DatabaseID),
			Name:       c.interner.Intern(string(cs.WorkflowRun.Workflow.Name)),
			Status:     status,
			Conclusion: conclusion,
			CreatedAt:  cs.CreatedAt.Unix(),
		}
		return run, true
	}
	return api.WorkflowRun{}, false
}

// GetWorkflowRun always returns a KindWorkflow error: on this backend a
// run is found only through the check suites of its head commit, which
// GetWorkflowRunForCommit does.
func (c *Client) GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (api.WorkflowRun, error) {
	return api.WorkflowRun{}, lcerror.New(lcerror.KindWorkflow, "GetWorkflowRun by id requires a known head sha on the GraphQL backend; call GetWorkflowRunForCommit instead")
}

// GetWorkflowRunForCommit resolves the workflow run whose check suite is
// attached to sha, matching runID.
func (c *Client) GetWorkflowRunForCommit(ctx context.Context, owner, repo, sha string, runID int64) (api.WorkflowRun, error) {
	var q workflowRunQuery
	vars := map[string]interface{}{
		"owner": githubv4.String(owner),
		"repo":  githubv4.String(repo),
		"sha":   githubv4.String(sha),
	}
	if err := c.v4.Query(ctx, &q, vars); err != nil {
		return api.WorkflowRun{}, lcerror.Wrap(lcerror.KindWorkflow, err, "querying check suites for %s", sha)
	}
	for _, cs := range q.Repository.Object.Commit.CheckSuites.Nodes {
		if int64(cs.WorkflowRun.DatabaseID) != runID {
			continue
		}
		status := parseStatus(cs.Status)
		var conclusion *api.WorkflowConclusion
		if cs.Conclusion != "" {
			cc := parseConclusion(cs.Conclusion)
			conclusion = &cc
		}
		return api.WorkflowRun{
			ID:         runID,
			Name:       c.interner.Intern(string(cs.WorkflowRun.Workflow.Name)),
			Status:     status,
			Conclusion: conclusion,
			HeadSHA:    c.interner.Intern(sha),
			CreatedAt:  cs.CreatedAt.Unix(),
		}, nil
	}
	return api.WorkflowRun{}, lcerror.New(lcerror.KindWorkflow, "no check suite found for run %d at %s", runID, sha)
}

// ListWorkflowJobs always returns a KindWorkflow error: listing jobs
// needs the run's head sha, which ListWorkflowJobsForCommit takes.
func (c *Client) ListWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]api.WorkflowJob, error) {
	return nil, lcerror.New(lcerror.KindWorkflow, "ListWorkflowJobs by id requires a known head sha on the GraphQL backend; call ListWorkflowJobsForCommit instead")
}

// ListWorkflowJobsForCommit lists the check runs (jobs) under the check
// suite matching runID at sha.
func (c *Client) ListWorkflowJobsForCommit(ctx context.Context, owner, repo, sha string, runID int64) ([]api.WorkflowJob, error) {
	var q workflowRunQuery
	vars := map[string]interface{}{
		"owner": githubv4.String(owner),
		"repo":  githubv4.String(repo),
		"sha":   githubv4.String(sha),
	}
	if err := c.v4.Query(ctx, &q, vars); err != nil {
		return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "querying check runs for %s", sha)
	}
	for _, cs := range q.Repository.Object.Commit.CheckSuites.Nodes {
		if int64(cs.WorkflowRun.DatabaseID) != runID {
			continue
		}
		jobs := make([]api.WorkflowJob, 0, len(cs.CheckRuns.Nodes))
		for _, cr := range cs.CheckRuns.Nodes {
			status := parseStatus(cr.Status)
			var conclusion *api.WorkflowConclusion
			if cr.Conclusion != "" {
				cc := parseConclusion(cr.Conclusion)
				conclusion = &cc
			}
			jobs = append(jobs, api.WorkflowJob{
				ID:        int64(cr.DatabaseID),
				Name:      c.interner.Intern(string(cr.Name)),
				Status:    status,
				Conclusion: conclusion,
				RunID:     runID,
				StartedAt: cr.StartedAt.Unix(),
			})
		}
		return jobs, nil
	}
	return nil, lcerror.New(lcerror.KindWorkflow, "no check suite found for run %d at %s", runID, sha)
}

// WaitForWorkflow is not addressable by run id alone on this backend; use
// WaitForWorkflowForCommit, which polls GetWorkflowRunForCommit.
func (c *Client) WaitForWorkflow(ctx context.Context, owner, repo string, runID int64, maxWait time.Duration) (api.WorkflowRun, error) {
	return api.WorkflowRun{}, lcerror.New(lcerror.KindWorkflow, "WaitForWorkflow by id requires a known head sha on the GraphQL backend; call WaitForWorkflowForCommit instead")
}

// WaitForWorkflowForCommit polls the check suite for sha/runID with
// doubling backoff until it completes or maxWait elapses.
func (c *Client) WaitForWorkflowForCommit(ctx context.Context, owner, repo, sha string, runID int64, maxWait time.Duration) (api.WorkflowRun, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	sched := backoff.NewSchedule()
	for {
		run, err := c.GetWorkflowRunForCommit(ctx, owner, repo, sha, runID)
		if err != nil {
			if ctx.Err() != nil {
				return api.WorkflowRun{}, lcerror.New(lcerror.KindWorkflowTimeout,
					"workflow %d did not complete within %s. Consider increasing workflow_max_wait_seconds.", runID, maxWait)
			}
			return api.WorkflowRun{}, err
		}
		if run.Status == api.Completed {
			return run, nil
		}
		if err := sched.Sleep(ctx); err != nil {
			return api.WorkflowRun{}, lcerror.New(lcerror.KindWorkflowTimeout,
				"workflow %d did not complete within %s. Consider increasing workflow_max_wait_seconds.", runID, maxWait)
		}
	}
}
