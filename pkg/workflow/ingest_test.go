package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/patterns"
)

func TestMatchesWorkflowNameFilter(t *testing.T) {
	assert.True(t, matchesWorkflowNameFilter("", "anything"))
	assert.True(t, matchesWorkflowNameFilter("Deploy", "Deploy"))
	assert.False(t, matchesWorkflowNameFilter("Deploy", "deploy"))
	assert.True(t, matchesWorkflowNameFilter("Deploy *", "Deploy Staging"))
	assert.False(t, matchesWorkflowNameFilter("Deploy *", "Build Staging"))
	// More than one '*' falls back to exact equality.
	assert.False(t, matchesWorkflowNameFilter("*Deploy*Staging*", "XDeployYStagingZ"))
	assert.True(t, matchesWorkflowNameFilter("*Deploy*Staging*", "*Deploy*Staging*"))
}

func TestOverfetchPageSizeHeuristic(t *testing.T) {
	assert.Equal(t, 5, overfetchPageSize(5, false))
	assert.Equal(t, 50, overfetchPageSize(5, true))
	assert.Equal(t, 100, overfetchPageSize(50, true))
}

func TestExtractJobKeyGroupMapping(t *testing.T) {
	g := []patterns.Group{{Key: "dev"}, {Key: "prod"}}
	group, ok := groupForJobKey("Deploy [dev]", g)
	require.True(t, ok)
	assert.Equal(t, "dev", group.Key)

	_, ok = groupForJobKey("Deploy [staging]", g)
	assert.False(t, ok)

	_, ok = groupForJobKey("plain build", g)
	assert.False(t, ok)
}

func TestPartitionConservativeFallsBackWhenNoJobMatchesAnyGroup(t *testing.T) {
	in := interner.New()
	_ = in
	devMatcher, err := patterns.New([]string{"stacks/dev/**"}, nil, true)
	require.NoError(t, err)
	groups := []patterns.Group{{Key: "dev", Matcher: devMatcher}}

	files := []string{"stacks/dev/a.yaml", "README.md"}
	out := partitionConservative(files, []string{"Deploy [unknown]"}, groups, api.LevelJob)
	assert.ElementsMatch(t, files, out)
}

func TestPartitionConservativeAttributesMatchedAndUnattributed(t *testing.T) {
	devMatcher, err := patterns.New([]string{"stacks/dev/**"}, nil, true)
	require.NoError(t, err)
	prodMatcher, err := patterns.New([]string{"stacks/prod/**"}, nil, true)
	require.NoError(t, err)
	groups := []patterns.Group{
		{Key: "dev", Matcher: devMatcher},
		{Key: "prod", Matcher: prodMatcher},
	}

	files := []string{"stacks/dev/a.yaml", "stacks/prod/b.yaml", "README.md"}
	out := partitionConservative(files, []string{"Deploy [dev]"}, groups, api.LevelJob)
	assert.ElementsMatch(t, []string{"stacks/dev/a.yaml", "README.md"}, out)
}

func TestPartitionStrictExcludesUnmatched(t *testing.T) {
	devMatcher, err := patterns.New([]string{"stacks/dev/**"}, nil, true)
	require.NoError(t, err)
	groups := []patterns.Group{{Key: "dev", Matcher: devMatcher}}

	files := []string{"stacks/dev/a.yaml", "README.md"}
	out := partitionStrict(files, []string{"Deploy [dev]"}, groups)
	assert.Equal(t, []string{"stacks/dev/a.yaml"}, out)
}

func TestIngestReturnsEmptyWhenTrackingDisabled(t *testing.T) {
	result, err := Ingest(context.Background(), nil, interner.New(), "o", "r", "main", 100, nil, nil, nil, Config{TrackWorkflowFailures: false})
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	assert.Empty(t, result.Successes)
}

type stubProvider struct {
	runs  []api.WorkflowRun
	files map[int64][]string
	jobs  map[int64][]api.WorkflowJob
}

func (s *stubProvider) ListWorkflowRuns(ctx context.Context, owner, repo, branch, status string, perPage, page int) ([]api.WorkflowRun, error) {
	var out []api.WorkflowRun
	for _, r := range s.runs {
		if status == "completed" && r.Status != api.Completed {
			continue
		}
		if (status == "queued" || status == "in_progress") && r.Status.String() != status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubProvider) GetCommitFiles(ctx context.Context, owner, repo, sha string) ([]string, error) {
	for id, files := range s.files {
		_ = id
		return files, nil
	}
	return nil, nil
}

func (s *stubProvider) GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (api.WorkflowRun, error) {
	for _, r := range s.runs {
		if r.ID == runID {
			return r, nil
		}
	}
	return api.WorkflowRun{}, nil
}

func (s *stubProvider) ListWorkflowJobs(ctx context.Context, owner, repo string, runID int64) ([]api.WorkflowJob, error) {
	return s.jobs[runID], nil
}

func (s *stubProvider) WaitForWorkflow(ctx context.Context, owner, repo string, runID int64, maxWait time.Duration) (api.WorkflowRun, error) {
	return s.GetWorkflowRun(ctx, owner, repo, runID)
}

func TestIngestRunLevelFailure(t *testing.T) {
	in := interner.New()
	successConclusion := api.Success
	failConclusion := api.Failure
	run1 := api.WorkflowRun{ID: 1, Status: api.Completed, Conclusion: &failConclusion, HeadSHA: in.Intern("sha1"), CreatedAt: 100}
	_ = successConclusion

	p := &stubProvider{
		runs:  []api.WorkflowRun{run1},
		files: map[int64][]string{1: {"a.go"}},
		jobs:  map[int64][]api.WorkflowJob{},
	}

	result, err := Ingest(context.Background(), p, in, "o", "r", "main", 999, nil, nil, nil, Config{
		TrackWorkflowFailures:   true,
		WorkflowLookbackCommits: 5,
		WorkflowSuccessLookback: 5,
		FailureTrackingLevel:    api.LevelRun,
	})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, int64(1), result.Failures[0].Run.ID)
}

// TestIngestActiveOverlapBlocksGroup mirrors scenario S5: an in-flight
// run touching only the prod group must block prod's concurrency, while
// staging (also touched by the current run, but not by the in-flight
// one) stays unblocked.
func TestIngestActiveOverlapBlocksGroup(t *testing.T) {
	in := interner.New()
	active := api.WorkflowRun{ID: 1, Status: api.InProgress, HeadSHA: in.Intern("sha-active"), CreatedAt: 50}

	p := &stubProvider{
		runs:  []api.WorkflowRun{active},
		files: map[int64][]string{1: {"stacks/prod/config.yaml"}},
		jobs:  map[int64][]api.WorkflowJob{},
	}

	prodMatcher, err := patterns.New([]string{"stacks/prod/**"}, nil, true)
	require.NoError(t, err)
	stagingMatcher, err := patterns.New([]string{"stacks/staging/**"}, nil, true)
	require.NoError(t, err)
	groups := []patterns.Group{
		{Key: "prod", Matcher: prodMatcher},
		{Key: "staging", Matcher: stagingMatcher},
	}

	result, err := Ingest(context.Background(), p, in, "o", "r", "main", 10, nil, groups, []string{"prod", "staging"}, Config{
		TrackWorkflowFailures:  true,
		WaitForActiveWorkflows: true,
	})
	require.NoError(t, err)
	require.Contains(t, result.BlockedGroups, "prod")
	assert.Equal(t, []int64{1}, result.BlockedGroups["prod"])
	assert.NotContains(t, result.BlockedGroups, "staging")
}
