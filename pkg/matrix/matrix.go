// Package matrix implements stage F: per-group deploy decisions,
// concurrency annotation, and deploy-matrix synthesis, plus the derived
// "computed outputs" categories (filtered-by-change-type indices,
// rename splitting) that the CLI front-end renders.
package matrix

import (
	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

// ComputedOutputs is the single-pass derivation of every output
// category the front-end needs from a ProcessedResult.
type ComputedOutputs struct {
	FilteredAdded        []uint32
	FilteredCopied        []uint32
	FilteredDeleted        []uint32
	FilteredModified        []uint32
	FilteredRenamed        []uint32
	FilteredTypeChanged    []uint32
	FilteredUnmerged        []uint32
	FilteredUnknown        []uint32
	OtherChanged            []uint32 // ACMR not in filter
	OtherModified            []uint32 // ACMRD not in filter
	OtherDeleted            []uint32 // D not in filter
	AllChangedAndModified    []uint32
	RenamedMapping            []RenamedPair
	RenameSplitDeletions    []RenamedPair
	ModifiedKeys            []interner.Handle
	ChangedKeys            []interner.Handle
	GroupDeployDecisions    []api.GroupDeployDecision
}

// RenamedPair ties a changed-file index to its previous path handle.
type RenamedPair struct {
	Index        uint32
	PreviousPath interner.Handle
}

// Compute derives every output category from result in one pass. When
// outputRenamedAsDeletedAdded is set, renamed files are split: the new
// path is reported as added and the old path as a synthetic deletion in
// RenameSplitDeletions, instead of a single renamed entry. blockedGroups
// is keyed by the group key *string* (as produced by workflow ingestion,
// before that string is itself interned for matrix output); in resolves
// a group's interned key handle back to that string for the lookup.
func Compute(result *api.ProcessedResult, outputRenamedAsDeletedAdded bool, blockedGroups map[string][]int64, in *interner.Interner) ComputedOutputs {
	filteredSet := make(map[uint32]struct{}, len(result.FilteredIndices))
	for _, i := range result.FilteredIndices {
		filteredSet[i] = struct{}{}
	}
	unmatchedSet := make(map[uint32]struct{}, len(result.UnmatchedIndices))
	for _, i := range result.UnmatchedIndices {
		unmatchedSet[i] = struct{}{}
	}

	var out ComputedOutputs

	for i, file := range result.AllFiles {
		idx := uint32(i)
		_, inFilter := filteredSet[idx]
		_, inUnmatched := unmatchedSet[idx]

		out.AllChangedAndModified = append(out.AllChangedAndModified, idx)

		if inFilter {
			switch file.ChangeType {
			case api.Added:
				out.FilteredAdded = append(out.FilteredAdded, idx)
			case api.Copied:
				out.FilteredCopied = append(out.FilteredCopied, idx)
			case api.Deleted:
				out.FilteredDeleted = append(out.FilteredDeleted, idx)
			case api.Modified:
				out.FilteredModified = append(out.FilteredModified, idx)
			case api.Renamed:
				if outputRenamedAsDeletedAdded {
					out.FilteredAdded = append(out.FilteredAdded, idx)
					if file.HasPreviousPath() {
						out.RenameSplitDeletions = append(out.RenameSplitDeletions, RenamedPair{Index: idx, PreviousPath: file.PreviousPath})
					}
				} else {
					out.FilteredRenamed = append(out.FilteredRenamed, idx)
					if file.HasPreviousPath() {
						out.RenamedMapping = append(out.RenamedMapping, RenamedPair{Index: idx, PreviousPath: file.PreviousPath})
					}
				}
			case api.TypeChanged:
				out.FilteredTypeChanged = append(out.FilteredTypeChanged, idx)
			case api.Unmerged:
				out.FilteredUnmerged = append(out.FilteredUnmerged, idx)
			default:
				out.FilteredUnknown = append(out.FilteredUnknown, idx)
			}
		}

		if inUnmatched {
			switch file.ChangeType {
			case api.Added, api.Copied, api.Modified, api.Renamed:
				out.OtherChanged = append(out.OtherChanged, idx)
				out.OtherModified = append(out.OtherModified, idx)
			case api.Deleted:
				out.OtherModified = append(out.OtherModified, idx)
				out.OtherDeleted = append(out.OtherDeleted, idx)
			}
		}
	}

	for _, g := range result.GroupResults {
		if len(g.MatchedIndices) == 0 {
			continue
		}
		out.ChangedKeys = append(out.ChangedKeys, g.Key)
		hasModified := false
		for _, idx := range g.MatchedIndices {
			if int(idx) < len(result.AllFiles) && result.AllFiles[idx].ChangeType == api.Modified {
				hasModified = true
				break
			}
		}
		if hasModified {
			out.ModifiedKeys = append(out.ModifiedKeys, g.Key)
		}
	}

	out.GroupDeployDecisions = computeGroupDeployDecisions(result, blockedGroups, in)

	return out
}

func resolveGroupPaths(result *api.ProcessedResult, g api.GroupResult) []interner.Handle {
	paths := make([]interner.Handle, 0, len(g.MatchedIndices))
	for _, idx := range g.MatchedIndices {
		if int(idx) < len(result.AllFiles) {
			paths = append(paths, result.AllFiles[idx].Path)
		}
	}
	return paths
}

func concurrencyFor(key string, blockedGroups map[string][]int64) (bool, uint32) {
	ids, ok := blockedGroups[key]
	if !ok {
		return false, 0
	}
	return true, uint32(len(ids))
}

func computeGroupDeployDecisions(result *api.ProcessedResult, blockedGroups map[string][]int64, in *interner.Interner) []api.GroupDeployDecision {
	if len(result.GroupResults) == 0 {
		return nil
	}

	var decisions []api.GroupDeployDecision

	if result.CiDecision == nil {
		for _, g := range result.GroupResults {
			paths := resolveGroupPaths(result, g)
			if len(paths) == 0 {
				continue
			}
			reason := api.GroupReasonNewChange
			key, _ := in.Resolve(g.Key)
			blocked, blockedBy := concurrencyFor(key, blockedGroups)
			decisions = append(decisions, api.GroupDeployDecision{
				Key:                  g.Key,
				Action:               api.ActionDeploy,
				Reason:               &reason,
				FilesToRebuild:       paths,
				TotalFiles:           uint32(len(paths)),
				ConcurrencyBlocked:   blocked,
				ConcurrencyBlockedBy: blockedBy,
			})
		}
		return decisions
	}

	ci := result.CiDecision
	rebuildSet := make(map[interner.Handle]struct{}, len(ci.FilesToRebuild))
	for _, h := range ci.FilesToRebuild {
		rebuildSet[h] = struct{}{}
	}
	skipSet := make(map[interner.Handle]struct{}, len(ci.FilesToSkip))
	for _, h := range ci.FilesToSkip {
		skipSet[h] = struct{}{}
	}
	reasonsMap := make(map[interner.Handle]api.RebuildReasonKind, len(ci.RebuildReasons))
	for _, r := range ci.RebuildReasons {
		reasonsMap[r.File] = r.Kind
	}

	for _, g := range result.GroupResults {
		paths := resolveGroupPaths(result, g)
		if len(paths) == 0 {
			continue
		}

		var groupRebuild, groupSkip []interner.Handle
		for _, p := range paths {
			if _, ok := rebuildSet[p]; ok {
				groupRebuild = append(groupRebuild, p)
			} else if _, ok := skipSet[p]; ok {
				groupSkip = append(groupSkip, p)
			} else {
				groupRebuild = append(groupRebuild, p)
			}
		}

		totalFiles := uint32(len(paths))
		key, _ := in.Resolve(g.Key)
		blocked, blockedBy := concurrencyFor(key, blockedGroups)

		if len(groupRebuild) == 0 {
			decisions = append(decisions, api.GroupDeployDecision{
				Key:                  g.Key,
				Action:               api.ActionSkip,
				FilesToSkip:          groupSkip,
				TotalFiles:           totalFiles,
				ConcurrencyBlocked:   blocked,
				ConcurrencyBlockedBy: blockedBy,
			})
			continue
		}

		hasNew, hasFailure := false, false
		for _, p := range groupRebuild {
			switch reasonsMap[p] {
			case api.ReasonNewChange:
				hasNew = true
			case api.ReasonBothNewAndFailed:
				hasNew = true
				hasFailure = true
			case api.ReasonPreviousFailure:
				hasFailure = true
			}
		}
		reason := api.GroupReasonNewChange
		switch {
		case hasNew && hasFailure:
			reason = api.GroupReasonBothNewAndFailed
		case hasFailure:
			reason = api.GroupReasonPreviousFailure
		}

		decisions = append(decisions, api.GroupDeployDecision{
			Key:                  g.Key,
			Action:               api.ActionDeploy,
			Reason:               &reason,
			FilesToRebuild:       groupRebuild,
			FilesToSkip:          groupSkip,
			TotalFiles:           totalFiles,
			ConcurrencyBlocked:   blocked,
			ConcurrencyBlockedBy: blockedBy,
		})
	}
	return decisions
}

// AnyChanged reports whether any filtered file falls in added, copied,
// modified, or renamed.
func (o ComputedOutputs) AnyChanged() bool {
	return len(o.FilteredAdded) > 0 || len(o.FilteredCopied) > 0 || len(o.FilteredModified) > 0 || len(o.FilteredRenamed) > 0
}

func (o ComputedOutputs) OnlyChanged() bool {
	return len(o.FilteredAdded)+len(o.FilteredCopied)+len(o.FilteredModified)+len(o.FilteredRenamed) == 1
}

func (o ComputedOutputs) AnyModified() bool { return len(o.FilteredModified) > 0 }

func (o ComputedOutputs) OnlyModified() bool {
	return len(o.FilteredModified) == 1 && len(o.FilteredAdded) == 0 && len(o.FilteredCopied) == 0 &&
		len(o.FilteredRenamed) == 0 && len(o.FilteredDeleted) == 0
}

func (o ComputedOutputs) AnyDeleted() bool { return len(o.FilteredDeleted) > 0 }

func (o ComputedOutputs) OnlyDeleted() bool {
	return len(o.FilteredDeleted) == 1 && len(o.FilteredAdded) == 0 && len(o.FilteredCopied) == 0 &&
		len(o.FilteredModified) == 0 && len(o.FilteredRenamed) == 0
}

func (o ComputedOutputs) HasDeployableGroups() bool {
	for _, d := range o.GroupDeployDecisions {
		if d.Action == api.ActionDeploy {
			return true
		}
	}
	return false
}
