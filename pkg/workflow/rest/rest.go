// Package rest implements workflow.Provider against GitHub's REST
// Actions API. Grounded line-for-line on the endpoint shapes, query
// parameters, pagination, and backoff schedule of the reference
// implementation's WorkflowApiClient.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/backoff"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/lcerror"
)

// Client is a workflow.Provider backed by GitHub's REST API.
type Client struct {
	http     *retryablehttp.Client
	baseURL  string
	token    string
	interner *interner.Interner
}

// New builds a Client. token may be empty for public, unauthenticated
// access at GitHub's lower rate limit.
func New(baseURL, token string, in *interner.Interner) *Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 3
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{http: client, baseURL: baseURL, token: token, interner: in}
}

// String redacts the token, matching WorkflowApiClient's custom Debug impl.
func (c *Client) String() string {
	tok := "<none>"
	if c.token != "" {
		tok = "<redacted>"
	}
	return fmt.Sprintf("rest.Client{baseURL=%s token=%s}", c.baseURL, tok)
}

func (c *Client) GoString() string { return c.String() }

func (c *Client) newRequest(ctx context.Context, url string, query map[string]string) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkRateLimit(resp *http.Response) error {
	if resp.StatusCode == http.StatusForbidden {
		remaining := resp.Header.Get("x-ratelimit-remaining")
		if remaining == "" {
			remaining = "0"
		}
		return lcerror.New(lcerror.KindRateLimitExceeded,
			"GitHub API rate limit exceeded. Remaining: %s. Consider using a token.", remaining)
	}
	return nil
}

func parseStatus(s string) api.WorkflowStatus {
	switch s {
	case "queued":
		return api.Queued
	case "in_progress":
		return api.InProgress
	default:
		return api.Completed
	}
}

func parseConclusion(s string) api.WorkflowConclusion {
	switch s {
	case "success":
		return api.Success
	case "failure":
		return api.Failure
	case "cancelled":
		return api.Cancelled
	case "skipped":
		return api.Skipped
	case "timed_out":
		return api.TimedOut
	default:
		return api.Neutral
	}
}

type githubWorkflowRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HeadBranch string `json:"head_branch"`
	HeadSHA    string `json:"head_sha"`
	CreatedAt  string `json:"created_at"`
}

func (c *Client) convertRun(run githubWorkflowRun) api.WorkflowRun {
	status := parseStatus(run.Status)
	var conclusion *api.WorkflowConclusion
	if run.Conclusion != "" {
		cc := parseConclusion(run.Conclusion)
		conclusion = &cc
	}
	createdAt := int64(0)
	if t, err := time.Parse(time.RFC3339, run.CreatedAt); err == nil {
		createdAt = t.Unix()
	}
	return api.WorkflowRun{
		ID:         run.ID,
		Name:       c.interner.Intern(run.Name),
		Status:     status,
		Conclusion: conclusion,
		Branch:     c.interner.Intern(run.HeadBranch),
		HeadSHA:    c.interner.Intern(run.HeadSHA),
		CreatedAt:  createdAt,
	}
}

type githubWorkflowJob struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Conclusion  string `json:"conclusion"`
	RunID       int64  `json:"run_id"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

func (c *Client) convertJob(job githubWorkflowJob, runID int64) api.WorkflowJob {
	status := parseStatus(job.Status)
	var conclusion *api.WorkflowConclusion
	if job.Conclusion != "" {
		cc := parseConclusion(job.Conclusion)
		conclusion = &cc
	}
	var startedAt, completedAt int64
	if t, err := time.Parse(time.RFC3339, job.StartedAt); err == nil {
		startedAt = t.Unix()
	}
	if t, err := time.Parse(time.RFC3339, job.CompletedAt); err == nil {
		completedAt = t.Unix()
	}
	return api.WorkflowJob{
		ID:          job.ID,
		Name:        c.interner.Intern(job.Name),
		Status:      status,
		Conclusion:  conclusion,
		RunID:       runID,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}
}

// ListWorkflowRuns: GET /repos/{owner}/{repo}/actions/runs
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, repo, branch, status string, perPage, page int) ([]api.WorkflowRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs", c.baseURL, owner, repo)
	query := map[string]string{
		"per_page": strconv.Itoa(perPage),
		"page":     strconv.Itoa(page),
	}
	if branch != "" {
		query["branch"] = branch
	}
	if status != "" {
		query["status"] = status
	}
	req, err := c.newRequest(ctx, url, query)
	if err != nil {
		return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "building list-runs request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "failed to fetch workflow runs")
	}
	defer resp.Body.Close()
	if err := checkRateLimit(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, lcerror.New(lcerror.KindWorkflow, "GitHub API returned error: %d", resp.StatusCode)
	}
	var body struct {
		TotalCount   int                 `json:"total_count"`
		WorkflowRuns []githubWorkflowRun `json:"workflow_runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "failed to parse workflow runs response")
	}
	runs := make([]api.WorkflowRun, 0, len(body.WorkflowRuns))
	for _, r := range body.WorkflowRuns {
		runs = append(runs, c.convertRun(r))
	}
	return runs, nil
}

// GetCommitFiles: GET /repos/{owner}/{repo}/commits/{sha}, transparently
// paginating past 300 files via the Link header, capped at 100 pages.
func (c *Client) GetCommitFiles(ctx context.Context, owner, repo, sha string) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.baseURL, owner, repo, sha)

	var allFiles []string
	page := 1
	for {
		req, err := c.newRequest(ctx, url, map[string]string{"per_page": "100", "page": strconv.Itoa(page)})
		if err != nil {
			return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "building commit request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "failed to fetch commit")
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, lcerror.New(lcerror.KindWorkflow, "GitHub API returned error for commit: %d", resp.StatusCode)
		}

		hasNext := linkHasNext(resp.Header.Get("Link"))

		var commit struct {
			Files []struct {
				Filename string `json:"filename"`
			} `json:"files"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&commit)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, lcerror.Wrap(lcerror.KindWorkflow, decodeErr, "failed to parse commit response")
		}
		for _, f := range commit.Files {
			allFiles = append(allFiles, f.Filename)
		}

		if !hasNext {
			break
		}
		page++
		if page > 100 {
			return nil, lcerror.New(lcerror.KindWorkflow, "commit has too many files (>10000)")
		}
	}
	return allFiles, nil
}

func linkHasNext(link string) bool {
	return link != "" && contains(link, `rel="next"`)
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

// GetWorkflowRun: GET /repos/{owner}/{repo}/actions/runs/{run_id}
func (c *Client) GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (api.WorkflowRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d", c.baseURL, owner, repo, runID)
	req, err := c.newRequest(ctx, url, nil)
	if err != nil {
		return api.WorkflowRun{}, lcerror.Wrap(lcerror.KindWorkflow, err, "building get-run request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return api.WorkflowRun{}, lcerror.Wrap(lcerror.KindWorkflow, err, "failed to fetch workflow run")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return api.WorkflowRun{}, lcerror.New(lcerror.KindWorkflow, "GitHub API error checking workflow: %d", resp.StatusCode)
	}
	var run githubWorkflowRun
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return api.WorkflowRun{}, lcerror.Wrap(lcerror.KindWorkflow, err, "failed to parse workflow run")
	}
	return c.convertRun(run), nil
}

// ListWorkflowJobs: GET /repos/{owner}/{repo}/actions/runs/{run_id}/jobs
func (c *Client) ListWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]api.WorkflowJob, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/jobs", c.baseURL, owner, repo, runID)
	req, err := c.newRequest(ctx, url, map[string]string{"per_page": "100"})
	if err != nil {
		return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "building list-jobs request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "failed to fetch workflow jobs")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, lcerror.New(lcerror.KindWorkflow, "GitHub API error fetching jobs: %d", resp.StatusCode)
	}
	var body struct {
		Jobs []githubWorkflowJob `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, lcerror.Wrap(lcerror.KindWorkflow, err, "failed to parse workflow jobs response")
	}
	jobs := make([]api.WorkflowJob, 0, len(body.Jobs))
	for _, j := range body.Jobs {
		jobs = append(jobs, c.convertJob(j, runID))
	}
	return jobs, nil
}

// WaitForWorkflow polls GetWorkflowRun with doubling backoff (1s, capped
// at 30s) until the run completes or maxWait elapses.
func (c *Client) WaitForWorkflow(ctx context.Context, owner, repo string, runID int64, maxWait time.Duration) (api.WorkflowRun, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	sched := backoff.NewSchedule()
	for {
		run, err := c.GetWorkflowRun(ctx, owner, repo, runID)
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
