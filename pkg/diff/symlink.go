package diff

import (
	"context"
	"sync"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/repository"
)

// symlinkCache is a bounded approximate-LRU map: a single-writer/
// multi-reader lock guards a plain map, and overflow evicts everything
// rather than tracking recency, matching file_ops.rs's FileOps cache
// (the spec calls this "the simplest correct policy").
type symlinkCache struct {
	mu       sync.RWMutex
	entries  map[string]bool
	capacity int
}

func newSymlinkCache(capacity int) *symlinkCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &symlinkCache{entries: make(map[string]bool, capacity), capacity: capacity}
}

func (c *symlinkCache) get(path string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[path]
	return v, ok
}

func (c *symlinkCache) put(path string, isSymlink bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		c.entries = make(map[string]bool, c.capacity)
	}
	c.entries[path] = isSymlink
}

// detectSymlinks runs a best-effort pass over the filtered files,
// stamping IsSymlink on each. Provider errors degrade to a diagnostic
// per §4.1 ("best-effort parallel lstat pass") rather than aborting.
func detectSymlinks(ctx context.Context, provider repository.Provider, in *interner.Interner, files []api.ChangedFile, filteredIndices []uint32, headSHA string, cacheSize int) []api.Diagnostic {
	cache := newSymlinkCache(cacheSize)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errCount int

	for _, idx := range filteredIndices {
		idx := idx
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _ := in.Resolve(files[idx].Path)
			if cached, ok := cache.get(p); ok {
				files[idx].IsSymlink = cached
				return
			}
			isSymlink, err := provider.IsSymlink(ctx, headSHA, p)
			if err != nil {
				mu.Lock()
				errCount++
				mu.Unlock()
				return
			}
			cache.put(p, isSymlink)
			files[idx].IsSymlink = isSymlink
		}()
	}
	wg.Wait()

	if errCount == 0 {
		return nil
	}
	return []api.Diagnostic{{
		Severity: api.SeverityWarning,
		Category: api.CategorySymlinkDetection,
		Message:  "symlink detection failed for some files; treated as non-symlinks",
	}}
}
