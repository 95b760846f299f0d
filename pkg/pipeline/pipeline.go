// Package pipeline composes stages A-F into the single-shot run the
// front-end invokes once per CI trigger. Ordering follows the teacher's
// coordination/processor.rs: resolve refs, diff, submodules, pattern
// filter, ancestor recovery, symlink detection (all inside diff.Process)
// — then, per §5's ordering guarantees, workflow ingestion completes
// before the CI decision engine runs, and phase 1's blocked_groups is
// available before matrix synthesis reads it.
package pipeline

import (
	"context"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/decision"
	"github.com/lechange-action/lechange/pkg/diff"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/matrix"
	"github.com/lechange-action/lechange/pkg/patterns"
	"github.com/lechange-action/lechange/pkg/repository"
	"github.com/lechange-action/lechange/pkg/workflow"
)

// Config bundles the per-stage configs the pipeline needs, plus the
// fields that identify the repository/run to the workflow provider.
type Config struct {
	Owner, Repo, Branch string
	CurrentRunID        int64

	BaseRef, HeadRef string

	Diff     diff.Config
	Workflow workflow.Config

	OutputRenamedAsDeletedAdded bool
}

// Output is everything a front-end needs to render: the raw processed
// result (for file-level reporting), the computed per-category indices,
// and any diagnostics accumulated along the way.
type Output struct {
	Result      *api.ProcessedResult
	Computed    matrix.ComputedOutputs
	Diagnostics []api.Diagnostic
}

// Run executes the full pipeline once. matcher/groups are the compiled
// pattern configuration (either or both may be nil/empty).
func Run(ctx context.Context, repoProvider repository.Provider, workflowProvider workflow.Provider, in *interner.Interner, cfg Config, matcher *patterns.Matcher, groups []patterns.Group) (*Output, error) {
	result, err := diff.Process(ctx, repoProvider, in, cfg.BaseRef, cfg.HeadRef, cfg.Diff, matcher, groups)
	if err != nil {
		return nil, err
	}

	var blockedGroups map[string][]int64
	if cfg.Workflow.TrackWorkflowFailures && workflowProvider != nil {
		currentFiles := make([]interner.Handle, 0, len(result.FilteredIndices))
		for _, idx := range result.FilteredIndices {
			currentFiles = append(currentFiles, result.AllFiles[idx].Path)
		}
		touchedGroupKeys := make([]string, 0, len(result.GroupResults))
		for _, g := range result.GroupResults {
			if len(g.MatchedIndices) == 0 {
				continue
			}
			if key, ok := in.Resolve(g.Key); ok {
				touchedGroupKeys = append(touchedGroupKeys, key)
			}
		}

		ingestResult, err := workflow.Ingest(ctx, workflowProvider, in, cfg.Owner, cfg.Repo, cfg.Branch, cfg.CurrentRunID, currentFiles, groups, touchedGroupKeys, cfg.Workflow)
		if err != nil {
			return nil, err
		}
		result.Diagnostics = append(result.Diagnostics, ingestResult.Diagnostics...)
		blockedGroups = ingestResult.BlockedGroups

		mergeHistoryFiles(result, in, ingestResult.Failures, ingestResult.Successes, groups)

		ciDecision := decision.Compute(result.AllFiles, ingestResult.Failures, ingestResult.Successes)
		result.CiDecision = &ciDecision
	}

	computed := matrix.Compute(result, cfg.OutputRenamedAsDeletedAdded, blockedGroups, in)

	return &Output{Result: result, Computed: computed, Diagnostics: result.Diagnostics}, nil
}

// mergeHistoryFiles ports the original's merge_failed_files, generalized
// to the success side: every path named by a failure or success record
// either stamps FileOrigin.InPreviousFailure/InPreviousSuccess onto the
// matching current-diff file, or, when the path is absent from the
// current diff entirely, is appended to result.AllFiles with
// change_type=unknown and in_current_changes=false. Without this a file
// that is a previous failure (or a previous success) but was not touched
// by the current diff would never gain group membership and its group
// would silently vanish from the deploy matrix instead of showing up as
// a deploy/previous_failure or a skip.
func mergeHistoryFiles(result *api.ProcessedResult, in *interner.Interner, failures []api.WorkflowFailure, successes []api.WorkflowSuccess, groups []patterns.Group) {
	existing := make(map[interner.Handle]int, len(result.AllFiles))
	for i, f := range result.AllFiles {
		existing[f.Path] = i
	}

	failedPaths := historyPaths(failures, func(f api.WorkflowFailure) []interner.Handle { return f.Files })
	succeededPaths := historyPaths(successes, func(s api.WorkflowSuccess) []interner.Handle { return s.Files })

	for h := range failedPaths {
		if i, ok := existing[h]; ok {
			result.AllFiles[i].Origin.InPreviousFailure = true
		}
	}
	for h := range succeededPaths {
		if i, ok := existing[h]; ok {
			result.AllFiles[i].Origin.InPreviousSuccess = true
		}
	}

	var newIndices []uint32
	addHistoryOnly := func(h interner.Handle, failed, succeeded bool) {
		if _, ok := existing[h]; ok {
			return
		}
		idx := uint32(len(result.AllFiles))
		result.AllFiles = append(result.AllFiles, api.ChangedFile{
			Path:       h,
			ChangeType: api.Unknown,
			Origin:     api.FileOrigin{InPreviousFailure: failed, InPreviousSuccess: succeeded},
		})
		existing[h] = int(idx)
		newIndices = append(newIndices, idx)
	}

	for h := range failedPaths {
		_, alsoSucceeded := succeededPaths[h]
		addHistoryOnly(h, true, alsoSucceeded)
	}
	for h := range succeededPaths {
		if _, ok := failedPaths[h]; ok {
			continue
		}
		addHistoryOnly(h, false, true)
	}

	if len(newIndices) == 0 || len(groups) == 0 {
		return
	}
	for gi, g := range groups {
		if gi >= len(result.GroupResults) {
			break
		}
		for _, idx := range newIndices {
			p, _ := in.Resolve(result.AllFiles[idx].Path)
			if g.Matcher.Matches(p) {
				result.GroupResults[gi].MatchedIndices = append(result.GroupResults[gi].MatchedIndices, idx)
			}
		}
	}
}

func historyPaths[T any](records []T, files func(T) []interner.Handle) map[interner.Handle]struct{} {
	out := make(map[interner.Handle]struct{})
	for _, r := range records {
		for _, h := range files(r) {
			out[h] = struct{}{}
		}
	}
	return out
}
