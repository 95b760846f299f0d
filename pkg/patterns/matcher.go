// Package patterns compiles glob include/exclude sets and evaluates
// them against paths, and loads named pattern groups from literal YAML
// or by discovering them from a directory template.
package patterns

import (
	"sync"

	"github.com/mattn/go-zglob"

	"github.com/lechange-action/lechange/pkg/lcerror"
)

// Matcher holds an include/exclude glob set as an immutable object
// built once and shared by reference across the pipeline. Patterns are
// kept as strings and compiled by zglob.Match on every evaluation; they
// are not precompiled. An empty include set means "match everything"
// (subject to excludes).
type Matcher struct {
	includes       []string
	excludes       []string
	negationFirst  bool
}

// New validates every pattern and builds a Matcher. Patterns are zglob
// patterns (`**` supported).
func New(includes, excludes []string, negationFirst bool) (*Matcher, error) {
	for _, p := range includes {
		if _, err := zglob.Match(p, "probe"); err != nil {
			return nil, lcerror.Wrap(lcerror.KindPattern, err, "invalid include pattern %q", p)
		}
	}
	for _, p := range excludes {
		if _, err := zglob.Match(p, "probe"); err != nil {
			return nil, lcerror.Wrap(lcerror.KindPattern, err, "invalid exclude pattern %q", p)
		}
	}
	return &Matcher{includes: includes, excludes: excludes, negationFirst: negationFirst}, nil
}

func (m *Matcher) anyMatch(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := zglob.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Matches evaluates the include/exclude sets against path per §4.1/§4.7:
//
//	negationFirst == true:  excluded -> drop; includes empty -> keep; else keep iff included
//	negationFirst == false: includes non-empty and not included -> drop; else keep iff not excluded
func (m *Matcher) Matches(path string) bool {
	included := m.anyMatch(m.includes, path)
	excluded := m.anyMatch(m.excludes, path)

	if m.negationFirst {
		if excluded {
			return false
		}
		if len(m.includes) == 0 {
			return true
		}
		return included
	}
	if len(m.includes) > 0 && !included {
		return false
	}
	return !excluded
}

// HasPatterns reports whether any include or exclude pattern was configured.
func (m *Matcher) HasPatterns() bool {
	return len(m.includes) > 0 || len(m.excludes) > 0
}

// Filter evaluates Matches for every path (concurrently across 8 workers
// once there are at least 256 paths, sequentially below that), returning
// the indices (into paths) that matched and the indices that didn't, as
// disjoint index sets — no element is copied between them.
func (m *Matcher) Filter(paths []string) (matched, unmatched []uint32) {
	n := len(paths)
	results := make([]bool, n)

	const minParallelChunk = 256
	if n < minParallelChunk {
		for i, p := range paths {
			results[i] = m.Matches(p)
		}
	} else {
		var wg sync.WaitGroup
		workers := 8
		chunk := (n + workers - 1) / workers
		for w := 0; w < workers; w++ {
			start := w * chunk
			if start >= n {
				break
			}
			end := start + chunk
			if end > n {
				end = n
			}
			wg.Add(1)
			go func(start, end int) {
				defer wg.Done()
				for i := start; i < end; i++ {
					results[i] = m.Matches(paths[i])
				}
			}(start, end)
		}
		wg.Wait()
	}

	for i, ok := range results {
		if ok {
			matched = append(matched, uint32(i))
		} else {
			unmatched = append(unmatched, uint32(i))
		}
	}
	return matched, unmatched
}

// Partition tests a pre-selected subset of paths, identified by index
// into paths, and returns the indices whose path Matches. Unlike Filter
// it runs sequentially and returns only the matched side.
func (m *Matcher) Partition(paths []string, indices []uint32) []uint32 {
	var out []uint32
	for _, idx := range indices {
		if m.Matches(paths[idx]) {
			out = append(out, idx)
		}
	}
	return out
}
