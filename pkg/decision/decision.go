// Package decision implements the latest-run-wins CI decision engine
// (stage E): given the current diff's changed files and the failure/
// success records from workflow ingestion, it decides which files must
// be rebuilt and which can be skipped, with a per-file audit trail.
package decision

import (
	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

type fileOutcome struct {
	runID     int64
	createdAt int64
	passed    bool
}

// Compute implements §4.4's latest-run-wins algorithm. Iteration order
// over Go maps is random, which is fine here: the only thing that
// matters is each file's max-timestamp winner. A failure replaces the
// stored outcome when its timestamp is strictly later, or equal to that
// of a stored success, so a success/failure tie resolves to the failure;
// between two runs with the same outcome the first one inserted wins.
func Compute(currentFiles []api.ChangedFile, failures []api.WorkflowFailure, successes []api.WorkflowSuccess) api.CiDecision {
	latest := make(map[interner.Handle]fileOutcome)

	for _, success := range successes {
		ts := success.Run.CreatedAt
		for _, f := range success.Files {
			entry, ok := latest[f]
			if !ok {
				latest[f] = fileOutcome{runID: success.Run.ID, createdAt: ts, passed: true}
				continue
			}
			if ts > entry.createdAt {
				latest[f] = fileOutcome{runID: success.Run.ID, createdAt: ts, passed: true}
			}
		}
	}

	for _, failure := range failures {
		ts := failure.Run.CreatedAt
		for _, f := range failure.Files {
			entry, ok := latest[f]
			if !ok {
				latest[f] = fileOutcome{runID: failure.Run.ID, createdAt: ts, passed: false}
				continue
			}
			if ts > entry.createdAt || (ts == entry.createdAt && entry.passed) {
				latest[f] = fileOutcome{runID: failure.Run.ID, createdAt: ts, passed: false}
			}
		}
	}

	currentSet := make(map[interner.Handle]struct{})
	for _, f := range currentFiles {
		if f.Origin.InCurrentChanges {
			currentSet[f.Path] = struct{}{}
		}
	}

	var filesToRebuild, filesToSkip []interner.Handle
	var reasons []api.RebuildReason

	for _, f := range currentFiles {
		if !f.Origin.InCurrentChanges {
			continue
		}
		kind := api.ReasonNewChange
		if f.Origin.InPreviousFailure {
			kind = api.ReasonBothNewAndFailed
		}
		filesToRebuild = append(filesToRebuild, f.Path)
		reasons = append(reasons, api.RebuildReason{File: f.Path, Kind: kind})
	}

	for file, outcome := range latest {
		if _, ok := currentSet[file]; ok {
			continue
		}
		if outcome.passed {
			filesToSkip = append(filesToSkip, file)
			continue
		}
		filesToRebuild = append(filesToRebuild, file)
		reason := api.RebuildReason{
			File:        file,
			Kind:        api.ReasonPreviousFailure,
			FailedRunID: runIDPtr(outcome.runID),
		}
		if jobName, ok := firstFailedJobOf(failures, outcome.runID); ok {
			reason.FailedJobName = &jobName
		}
		reasons = append(reasons, reason)
	}

	failedJobs := uniqueHandles(failedJobNames(failures))
	successfulJobs := uniqueHandles(successfulJobNames(successes))

	return api.CiDecision{
		FilesToRebuild: filesToRebuild,
		FilesToSkip:    filesToSkip,
		FailedJobs:     failedJobs,
		SuccessfulJobs: successfulJobs,
		RebuildReasons: reasons,
	}
}

func runIDPtr(id int64) *int64 { return &id }

func firstFailedJobOf(failures []api.WorkflowFailure, runID int64) (interner.Handle, bool) {
	for _, f := range failures {
		if f.Run.ID != runID {
			continue
		}
		if len(f.FailedJobs) == 0 {
			return 0, false
		}
		return f.FailedJobs[0], true
	}
	return 0, false
}

func failedJobNames(failures []api.WorkflowFailure) []interner.Handle {
	var out []interner.Handle
	for _, f := range failures {
		out = append(out, f.FailedJobs...)
	}
	return out
}

func successfulJobNames(successes []api.WorkflowSuccess) []interner.Handle {
	var out []interner.Handle
	for _, s := range successes {
		for _, j := range s.Jobs {
			if j.Conclusion != nil && *j.Conclusion == api.Success {
				out = append(out, j.Name)
			}
		}
	}
	return out
}

func uniqueHandles(in []interner.Handle) []interner.Handle {
	seen := make(map[interner.Handle]struct{}, len(in))
	var out []interner.Handle
	for _, h := range in {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
