// Package diff implements stage A (diff enumeration, diff-filter
// application, and pattern-based filtering), stage B (ancestor-directory
// recovery), and stage C (group assignment) of the pipeline: the part
// of the system that turns a raw repository diff into a ProcessedResult
// with filtered/unmatched index partitions and group memberships.
//
// Ordering follows the teacher's coordination/processor.rs shape:
// resolve refs, diff, fold in submodules, apply the pattern filter,
// recover ancestor-matched files, detect symlinks, assign groups.
package diff

import (
	"context"
	"path"
	"strings"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/patterns"
	"github.com/lechange-action/lechange/pkg/repository"
)

// Config holds every field of the configuration record that stages A-C
// consume directly.
type Config struct {
	DiffFilter             string
	SkipSameSHA            bool
	FailOnInitialDiffError bool

	IncludeSubmodules         bool
	SubmoduleFilter           string
	DirNamesMaxDepth          int
	FailOnSubmoduleDiffError  bool

	DetectSymlinks   bool
	SymlinkCacheSize int

	AncestorLookupDepth int
}

// DefaultConfig returns the documented field defaults for stage A-C.
func DefaultConfig() Config {
	return Config{
		DiffFilter:               "ACDMRTUX",
		SkipSameSHA:              false,
		FailOnInitialDiffError:   true,
		FailOnSubmoduleDiffError: false,
		DirNamesMaxDepth:         3,
		DetectSymlinks:           true,
		SymlinkCacheSize:         1024,
		AncestorLookupDepth:      0,
	}
}

// Process runs stages A-C and returns the accumulated ProcessedResult.
// matcher may be nil, meaning no include/exclude patterns were
// configured (pattern_applied stays false and every file is filtered).
// groups may be empty.
func Process(ctx context.Context, provider repository.Provider, in *interner.Interner, baseRef, headRef string, cfg Config, matcher *patterns.Matcher, groups []patterns.Group) (*api.ProcessedResult, error) {
	var diagnostics []api.Diagnostic

	head, err := provider.ResolveSHA(ctx, headRef)
	if err != nil {
		return nil, err
	}

	base, baseDiag, err := resolveBase(ctx, provider, baseRef, head)
	if err != nil {
		return nil, err
	}
	diagnostics = append(diagnostics, baseDiag...)

	if cfg.SkipSameSHA && base == head {
		diagnostics = append(diagnostics, api.Diagnostic{
			Severity: api.SeverityWarning,
			Category: api.CategorySkippedSameSHA,
			Message:  "base and head resolve to the same commit; skipping diff",
		})
		return &api.ProcessedResult{Diagnostics: diagnostics}, nil
	}

	entries, additions, deletions, err := provider.Diff(ctx, base, head, cfg.DiffFilter)
	if err != nil {
		if cfg.FailOnInitialDiffError {
			return nil, err
		}
		diagnostics = append(diagnostics, api.Diagnostic{
			Severity: api.SeveritySoftError,
			Category: api.CategoryInitialDiff,
			Message:  err.Error(),
		})
		return &api.ProcessedResult{Diagnostics: diagnostics}, nil
	}

	allFiles := internEntries(in, entries)

	if cfg.IncludeSubmodules {
		subFiles, subDiag, err := diffSubmodules(ctx, provider, in, base, head, cfg)
		if err != nil {
			if cfg.FailOnSubmoduleDiffError {
				return nil, err
			}
			diagnostics = append(diagnostics, api.Diagnostic{
				Severity: api.SeverityWarning,
				Category: api.CategorySubmoduleDiff,
				Message:  err.Error(),
			})
		} else {
			allFiles = append(allFiles, subFiles...)
		}
		diagnostics = append(diagnostics, subDiag...)
	}

	filteredIndices, unmatchedIndices, patternApplied := applyPatternFilter(allFiles, in, matcher)

	if cfg.AncestorLookupDepth > 0 {
		var recoverDiag []api.Diagnostic
		filteredIndices, unmatchedIndices, recoverDiag = recoverAncestors(allFiles, in, filteredIndices, unmatchedIndices, cfg.AncestorLookupDepth)
		diagnostics = append(diagnostics, recoverDiag...)
	}

	if cfg.DetectSymlinks {
		symDiag := detectSymlinks(ctx, provider, in, allFiles, filteredIndices, head, cfg.SymlinkCacheSize)
		diagnostics = append(diagnostics, symDiag...)
	}

	groupResults := assignGroups(allFiles, in, filteredIndices, groups)

	return &api.ProcessedResult{
		AllFiles:         allFiles,
		FilteredIndices:  filteredIndices,
		UnmatchedIndices: unmatchedIndices,
		PatternApplied:   patternApplied,
		GroupResults:     groupResults,
		Additions:        additions,
		Deletions:        deletions,
		Diagnostics:      diagnostics,
	}, nil
}

func resolveBase(ctx context.Context, provider repository.Provider, baseRef, head string) (string, []api.Diagnostic, error) {
	if baseRef != "" {
		base, err := provider.ResolveSHA(ctx, baseRef)
		return base, nil, err
	}
	hasParent, err := provider.HasParent(ctx, head)
	if err != nil {
		return "", nil, err
	}
	if !hasParent {
		return repository.EmptyTreeSHA, []api.Diagnostic{{
			Severity: api.SeverityWarning,
			Category: api.CategoryInitialDiff,
			Message:  "head has no parent; diffing against the empty tree",
		}}, nil
	}
	base, err := provider.ResolveSHA(ctx, head+"^")
	return base, nil, err
}

func internEntries(in *interner.Interner, entries []repository.RawDiffEntry) []api.ChangedFile {
	files := make([]api.ChangedFile, 0, len(entries))
	for _, e := range entries {
		changeType, ok := api.ChangeTypeFromByte(e.ChangeType)
		if !ok {
			changeType = api.Unknown
		}
		cf := api.ChangedFile{
			Path:       in.Intern(e.Path),
			ChangeType: changeType,
			Origin:     api.FileOrigin{InCurrentChanges: true},
		}
		if e.PreviousPath != "" {
			cf.PreviousPath = in.Intern(e.PreviousPath)
		}
		files = append(files, cf)
	}
	return files
}

// applyPatternFilter implements §4.1's include/exclude evaluation. A nil
// matcher means no patterns were configured: pattern_applied is false
// and every file is filtered.
func applyPatternFilter(files []api.ChangedFile, in *interner.Interner, matcher *patterns.Matcher) (filtered, unmatched []uint32, patternApplied bool) {
	if matcher == nil {
		filtered = make([]uint32, len(files))
		for i := range files {
			filtered[i] = uint32(i)
		}
		return filtered, nil, false
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i], _ = in.Resolve(f.Path)
	}
	filtered, unmatched = matcher.Filter(paths)
	return filtered, unmatched, true
}

// assignGroups implements stage C: for every configured group, collect
// the filtered indices whose path matches that group's patterns.
func assignGroups(files []api.ChangedFile, in *interner.Interner, filteredIndices []uint32, groups []patterns.Group) []api.GroupResult {
	if len(groups) == 0 {
		return nil
	}
	results := make([]api.GroupResult, 0, len(groups))
	for _, g := range groups {
		var matched []uint32
		for _, idx := range filteredIndices {
			p, _ := in.Resolve(files[idx].Path)
			if g.Matcher.Matches(p) {
				matched = append(matched, idx)
			}
		}
		results = append(results, api.GroupResult{Key: in.Intern(g.Key), MatchedIndices: matched})
	}
	return results
}

// dirAncestors returns up to n ancestor directory paths of p, nearest
// first (n=1 -> immediate parent only).
func dirAncestors(p string, n int) []string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return nil
	}
	parts := strings.Split(dir, "/")
	var out []string
	for i := len(parts); i > 0 && len(out) < n; i-- {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}
