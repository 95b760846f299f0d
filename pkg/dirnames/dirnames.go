// Package dirnames implements the directory-name output mode (SPEC_FULL.md
// §11): instead of emitting file paths, emit the unique set of their
// containing directories, depth-limited and optionally filtered.
// Grounded on output/dir_names.rs's DirNameExtractor.
package dirnames

import (
	"strings"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

// Options mirrors the configuration fields that govern extraction.
type Options struct {
	MaxDepth          int  // 0 means unlimited
	ExcludeCurrentDir bool
	IncludeFiles      []string // substrings a path must contain one of; empty means no filter
	DeletedOnlyDirs   bool
}

// Extract returns the unique set of directories containing files[indices...],
// interned fresh and returned as handles.
func Extract(in *interner.Interner, files []api.ChangedFile, indices []uint32, opts Options) []interner.Handle {
	if opts.DeletedOnlyDirs {
		return extractDeletedOnlyDirs(in, files, indices, opts.MaxDepth)
	}

	seen := make(map[string]struct{})
	var out []interner.Handle
	for _, idx := range indices {
		path, ok := in.Resolve(files[idx].Path)
		if !ok {
			continue
		}
		if len(opts.IncludeFiles) > 0 && !containsAny(path, opts.IncludeFiles) {
			continue
		}
		dir, ok := extractDir(path, opts.MaxDepth, opts.ExcludeCurrentDir)
		if !ok {
			continue
		}
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}
		out = append(out, in.Intern(dir))
	}
	return out
}

func containsAny(path string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// extractDir returns the directory component of path with depth limiting.
func extractDir(path string, maxDepth int, excludeCurrentDir bool) (string, bool) {
	pos := strings.LastIndexByte(path, '/')
	var dir string
	if pos < 0 {
		if excludeCurrentDir {
			return "", false
		}
		return ".", true
	}
	dir = path[:pos]

	if excludeCurrentDir && dir == "." {
		return "", false
	}

	if maxDepth > 0 {
		depth := strings.Count(dir, "/") + 1
		if depth > maxDepth {
			slash := 0
			for i, ch := range dir {
				if ch == '/' {
					slash++
					if slash >= maxDepth {
						return dir[:i], true
					}
				}
			}
		}
	}
	return dir, true
}

func extractDeletedOnlyDirs(in *interner.Interner, files []api.ChangedFile, indices []uint32, maxDepth int) []interner.Handle {
	type counts struct{ total, deleted int }
	dirCounts := make(map[string]*counts)
	dirOrder := make([]string, 0)

	for _, idx := range indices {
		path, ok := in.Resolve(files[idx].Path)
		if !ok {
			continue
		}
		dir := "."
		if pos := strings.LastIndexByte(path, '/'); pos >= 0 {
			dir = path[:pos]
		}
		c, exists := dirCounts[dir]
		if !exists {
			c = &counts{}
			dirCounts[dir] = c
			dirOrder = append(dirOrder, dir)
		}
		c.total++
		if files[idx].ChangeType == api.Deleted {
			c.deleted++
		}
	}

	var out []interner.Handle
	for _, dir := range dirOrder {
		c := dirCounts[dir]
		if c.total == 0 || c.total != c.deleted {
			continue
		}
		truncated := dir
		if maxDepth > 0 {
			parts := strings.Split(dir, "/")
			if len(parts) > maxDepth {
				truncated = strings.Join(parts[:maxDepth], "/")
			}
		}
		out = append(out, in.Intern(truncated))
	}
	return out
}
