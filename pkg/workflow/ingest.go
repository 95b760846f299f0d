package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glob "github.com/ryanuber/go-glob"
	"golang.org/x/sync/errgroup"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/patterns"
)

// defaultWorkflowMaxWait is used when a caller leaves
// Config.WorkflowMaxWaitSeconds unset, matching the documented default.
const defaultWorkflowMaxWait = 300 * time.Second

func workflowMaxWait(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultWorkflowMaxWait
	}
	return time.Duration(seconds) * time.Second
}

// Config holds the workflow-ingestion knobs consumed by Ingest, taken
// directly from the configuration record's workflow fields.
type Config struct {
	TrackWorkflowFailures   bool
	WaitForActiveWorkflows  bool
	WorkflowLookbackCommits int
	WorkflowSuccessLookback int
	FailureTrackingLevel    api.FailureTrackingLevel
	WorkflowNameFilter      string
	WorkflowMaxWaitSeconds  int
}

// Result is the output of the three-phase fan-out: the failure and
// success records the CI decision engine consumes, plus blocked_groups
// for the concurrency annotation in stage F.
type Result struct {
	Failures      []api.WorkflowFailure
	Successes     []api.WorkflowSuccess
	BlockedGroups map[string][]int64 // group key -> blocking run ids
	Diagnostics   []api.Diagnostic
}

// matchesWorkflowNameFilter implements the single-`*` glob rule: a
// filter with no `*` is an exact match; a filter with exactly one `*`
// splits into prefix/suffix; anything more exotic falls back to exact
// equality, per the source's documented behavior.
func matchesWorkflowNameFilter(filter, name string) bool {
	if filter == "" {
		return true
	}
	if strings.Count(filter, "*") != 1 {
		return filter == name
	}
	return glob.Glob(filter, name)
}

// Ingest runs the three-phase parallel fan-out of §4.3: active-workflow
// overlap detection, recent-failure ingestion, and recent-success
// ingestion. groups is the full set of configured pattern groups;
// touchedGroupKeys names the groups the current diff actually matched
// (phase 1 only tests overlap against those).
func Ingest(
	ctx context.Context,
	provider Provider,
	in *interner.Interner,
	owner, repo, branch string,
	currentRunID int64,
	currentFiles []interner.Handle,
	groups []patterns.Group,
	touchedGroupKeys []string,
	cfg Config,
) (*Result, error) {
	result := &Result{BlockedGroups: map[string][]int64{}}
	if !cfg.TrackWorkflowFailures {
		return result, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if cfg.WaitForActiveWorkflows {
		eg.Go(func() error {
			diags, err := phaseActiveOverlap(egCtx, provider, in, owner, repo, currentRunID, currentFiles, groups, touchedGroupKeys, cfg, result)
			result.Diagnostics = append(result.Diagnostics, diags...)
			return err
		})
	}

	eg.Go(func() error {
		failures, diags, err := phaseFailures(egCtx, provider, in, owner, repo, branch, groups, cfg)
		result.Failures = failures
		result.Diagnostics = append(result.Diagnostics, diags...)
		return err
	})

	eg.Go(func() error {
		successes, diags, err := phaseSuccesses(egCtx, provider, in, owner, repo, branch, groups, cfg)
		result.Successes = successes
		result.Diagnostics = append(result.Diagnostics, diags...)
		return err
	})

	if err := eg.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// overfetchPageSize replicates the ×10 (capped at 100) over-fetch
// heuristic: when a name filter is set the provider returns runs across
// every workflow, so more pages must be pulled to find enough matches.
func overfetchPageSize(lookback int, nameFilterSet bool) int {
	if !nameFilterSet {
		return lookback
	}
	n := lookback * 10
	if n > 100 {
		n = 100
	}
	if n < lookback {
		n = lookback
	}
	return n
}

func phaseActiveOverlap(
	ctx context.Context,
	provider Provider,
	in *interner.Interner,
	owner, repo string,
	currentRunID int64,
	currentFiles []interner.Handle,
	groups []patterns.Group,
	touchedGroupKeys []string,
	cfg Config,
	result *Result,
) ([]api.Diagnostic, error) {
	var diags []api.Diagnostic

	perPage := overfetchPageSize(30, cfg.WorkflowNameFilter != "")
	var active []api.WorkflowRun
	for _, status := range []string{"queued", "in_progress"} {
		runs, err := provider.ListWorkflowRuns(ctx, owner, repo, "", status, perPage, 1)
		if err != nil {
			diags = append(diags, api.Diagnostic{
				Severity: api.SeverityWarning,
				Category: api.CategoryWorkflowAPI,
				Message:  fmt.Sprintf("listing %s runs: %v", status, err),
			})
			continue
		}
		active = append(active, runs...)
	}

	currentSet := make(map[interner.Handle]struct{}, len(currentFiles))
	for _, h := range currentFiles {
		currentSet[h] = struct{}{}
	}

	touched := make([]patterns.Group, 0, len(touchedGroupKeys))
	touchedSet := make(map[string]struct{}, len(touchedGroupKeys))
	for _, k := range touchedGroupKeys {
		touchedSet[k] = struct{}{}
	}
	for _, g := range groups {
		if _, ok := touchedSet[g.Key]; ok {
			touched = append(touched, g)
		}
	}

	maxWait := workflowMaxWait(cfg.WorkflowMaxWaitSeconds)

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for _, run := range active {
		run := run
		if run.ID >= currentRunID {
			continue // deadlock avoidance: never wait on a run that isn't strictly earlier
		}
		name, _ := in.Resolve(run.Name)
		if !matchesWorkflowNameFilter(cfg.WorkflowNameFilter, name) {
			continue
		}
		eg.Go(func() error {
			headSHA, _ := in.Resolve(run.HeadSHA)
			files, err := provider.GetCommitFiles(egCtx, owner, repo, headSHA)
			if err != nil {
				mu.Lock()
				diags = append(diags, api.Diagnostic{
					Severity: api.SeverityWarning,
					Category: api.CategoryWorkflowAPI,
					Message:  fmt.Sprintf("fetching files for run %d: %v", run.ID, err),
				})
				mu.Unlock()
				return nil
			}

			overlap := false
			for _, f := range files {
				if _, ok := currentSet[in.Intern(f)]; ok {
					overlap = true
					break
				}
			}

			var overlappingGroups []string
			for _, g := range touched {
				for _, f := range files {
					if g.Matcher.Matches(f) {
						overlappingGroups = append(overlappingGroups, g.Key)
						overlap = true
						break
					}
				}
			}

			if !overlap {
				return nil
			}
			mu.Lock()
			if len(overlappingGroups) == 0 {
				// file-level overlap only, no group breakdown available
			}
			for _, key := range overlappingGroups {
				result.BlockedGroups[key] = append(result.BlockedGroups[key], run.ID)
			}
			mu.Unlock()

			// blocked_groups is already recorded above; the wait below
			// only delays returning from this phase, per §5, until the
			// overlapping run settles or workflow_max_wait_seconds runs out.
			if _, err := provider.WaitForWorkflow(egCtx, owner, repo, run.ID, maxWait); err != nil {
				return err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return diags, err
	}
	return diags, nil
}

func phaseFailures(
	ctx context.Context,
	provider Provider,
	in *interner.Interner,
	owner, repo, branch string,
	groups []patterns.Group,
	cfg Config,
) ([]api.WorkflowFailure, []api.Diagnostic, error) {
	runs, diags, err := listRecentRuns(ctx, provider, in, owner, repo, branch, "failure", cfg.WorkflowLookbackCommits, cfg.WorkflowNameFilter)
	if err != nil {
		return nil, diags, err
	}

	var failures []api.WorkflowFailure
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for _, run := range runs {
		run := run
		eg.Go(func() error {
			failure, diag, err := fetchFailure(egCtx, provider, in, owner, repo, run, groups, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				diags = append(diags, api.Diagnostic{
					Severity: api.SeverityWarning,
					Category: api.CategoryWorkflowAPI,
					Message:  fmt.Sprintf("ingesting failed run %d: %v", run.ID, err),
				})
				return nil
			}
			if diag != nil {
				diags = append(diags, *diag)
			}
			failures = append(failures, failure)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, diags, err
	}
	return failures, diags, nil
}

func phaseSuccesses(
	ctx context.Context,
	provider Provider,
	in *interner.Interner,
	owner, repo, branch string,
	groups []patterns.Group,
	cfg Config,
) ([]api.WorkflowSuccess, []api.Diagnostic, error) {
	runs, diags, err := listRecentRuns(ctx, provider, in, owner, repo, branch, "success", cfg.WorkflowSuccessLookback, cfg.WorkflowNameFilter)
	if err != nil {
		return nil, diags, err
	}

	var successes []api.WorkflowSuccess
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for _, run := range runs {
		run := run
		eg.Go(func() error {
			success, diag, err := fetchSuccess(egCtx, provider, in, owner, repo, run, groups, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				diags = append(diags, api.Diagnostic{
					Severity: api.SeverityWarning,
					Category: api.CategoryWorkflowAPI,
					Message:  fmt.Sprintf("ingesting succeeded run %d: %v", run.ID, err),
				})
				return nil
			}
			if diag != nil {
				diags = append(diags, *diag)
			}
			successes = append(successes, success)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, diags, err
	}
	return successes, diags, nil
}

// listRecentRuns lists completed runs on branch with the given
// conclusion, applying the name filter and the ×10/cap-100 over-fetch
// heuristic, then trims to lookback matches. The name filter is applied
// here, client-side, against every candidate run's name; that is the
// entire reason the over-fetch heuristic exists (§9): the runs endpoint
// returns runs across all workflows in the repo, so without filtering
// here a name-scoped lookback would silently count unrelated workflows.
func listRecentRuns(ctx context.Context, provider Provider, in *interner.Interner, owner, repo, branch, conclusion string, lookback int, nameFilter string) ([]api.WorkflowRun, []api.Diagnostic, error) {
	var diags []api.Diagnostic
	perPage := overfetchPageSize(lookback, nameFilter != "")
	runs, err := provider.ListWorkflowRuns(ctx, owner, repo, branch, "completed", perPage, 1)
	if err != nil {
		diags = append(diags, api.Diagnostic{
			Severity: api.SeverityWarning,
			Category: api.CategoryWorkflowAPI,
			Message:  fmt.Sprintf("listing completed runs: %v", err),
		})
		return nil, diags, nil
	}

	var matched []api.WorkflowRun
	for _, r := range runs {
		if r.Conclusion == nil || r.Conclusion.String() != conclusion {
			continue
		}
		name, _ := in.Resolve(r.Name)
		if !matchesWorkflowNameFilter(nameFilter, name) {
			continue
		}
		matched = append(matched, r)
		if len(matched) >= lookback {
			break
		}
	}
	return matched, diags, nil
}

func fetchFailure(ctx context.Context, provider Provider, in *interner.Interner, owner, repo string, run api.WorkflowRun, groups []patterns.Group, cfg Config) (api.WorkflowFailure, *api.Diagnostic, error) {
	headSHA, _ := in.Resolve(run.HeadSHA)
	files, err := provider.GetCommitFiles(ctx, owner, repo, headSHA)
	if err != nil {
		return api.WorkflowFailure{}, nil, err
	}

	var failedJobNames []string
	if cfg.FailureTrackingLevel == api.LevelJob {
		jobs, err := provider.ListWorkflowJobs(ctx, owner, repo, run.ID)
		if err != nil {
			return api.WorkflowFailure{}, nil, err
		}
		for _, j := range jobs {
			if j.Conclusion != nil && *j.Conclusion == api.Failure {
				name, _ := in.Resolve(j.Name)
				failedJobNames = append(failedJobNames, name)
			}
		}
	}

	attributed := partitionConservative(files, failedJobNames, groups, cfg.FailureTrackingLevel)

	handles := make([]interner.Handle, 0, len(attributed))
	for _, f := range attributed {
		handles = append(handles, in.Intern(f))
	}
	jobHandles := make([]interner.Handle, 0, len(failedJobNames))
	for _, n := range failedJobNames {
		jobHandles = append(jobHandles, in.Intern(n))
	}

	return api.WorkflowFailure{Run: run, Files: handles, FailedJobs: jobHandles}, nil, nil
}

func fetchSuccess(ctx context.Context, provider Provider, in *interner.Interner, owner, repo string, run api.WorkflowRun, groups []patterns.Group, cfg Config) (api.WorkflowSuccess, *api.Diagnostic, error) {
	headSHA, _ := in.Resolve(run.HeadSHA)
	files, err := provider.GetCommitFiles(ctx, owner, repo, headSHA)
	if err != nil {
		return api.WorkflowSuccess{}, nil, err
	}

	var jobs []api.WorkflowJob
	var succeededJobNames []string
	if cfg.FailureTrackingLevel == api.LevelJob {
		jobs, err = provider.ListWorkflowJobs(ctx, owner, repo, run.ID)
		if err != nil {
			return api.WorkflowSuccess{}, nil, err
		}
		for _, j := range jobs {
			if j.Conclusion != nil && *j.Conclusion == api.Success {
				name, _ := in.Resolve(j.Name)
				succeededJobNames = append(succeededJobNames, name)
			}
		}
	}

	attributed := files
	if cfg.FailureTrackingLevel == api.LevelJob {
		attributed = partitionStrict(files, succeededJobNames, groups)
	}

	handles := make([]interner.Handle, 0, len(attributed))
	for _, f := range attributed {
		handles = append(handles, in.Intern(f))
	}

	return api.WorkflowSuccess{Run: run, Files: handles, Jobs: jobs}, nil, nil
}

// groupForJobKey finds the group whose key equals a job's bracketed key.
func groupForJobKey(jobName string, groups []patterns.Group) (patterns.Group, bool) {
	key, ok := ExtractJobKey(jobName)
	if !ok {
		return patterns.Group{}, false
	}
	for _, g := range groups {
		if g.Key == key {
			return g, true
		}
	}
	return patterns.Group{}, false
}

// partitionConservative implements the failed-job partition policy of
// §4.3: a file is attributed if some failed job's key maps to a group
// matching it, or the file matches no configured group at all. If no
// failed job's key matches any group, every commit file is attributed.
func partitionConservative(files []string, failedJobNames []string, groups []patterns.Group, level api.FailureTrackingLevel) []string {
	if level == api.LevelRun || len(groups) == 0 {
		return files
	}

	var matchedGroups []patterns.Group
	for _, name := range failedJobNames {
		if g, ok := groupForJobKey(name, groups); ok {
			matchedGroups = append(matchedGroups, g)
		}
	}
	if len(matchedGroups) == 0 {
		return files
	}

	var out []string
	for _, f := range files {
		if fileMatchesNoGroup(f, groups) {
			out = append(out, f)
			continue
		}
		for _, g := range matchedGroups {
			if g.Matcher.Matches(f) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// partitionStrict implements the succeeded-job partition policy: a file
// is attributed only if some succeeded job's key maps to a group
// matching it. Unmatched files are excluded outright.
func partitionStrict(files []string, succeededJobNames []string, groups []patterns.Group) []string {
	var matchedGroups []patterns.Group
	for _, name := range succeededJobNames {
		if g, ok := groupForJobKey(name, groups); ok {
			matchedGroups = append(matchedGroups, g)
		}
	}
	if len(matchedGroups) == 0 {
		return nil
	}

	var out []string
	for _, f := range files {
		for _, g := range matchedGroups {
			if g.Matcher.Matches(f) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func fileMatchesNoGroup(f string, groups []patterns.Group) bool {
	for _, g := range groups {
		if g.Matcher.Matches(f) {
			return false
		}
	}
	return true
}
