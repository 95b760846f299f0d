// Package recovery implements the deleted-file blob recovery supplement
// (SPEC_FULL.md §11): best-effort retrieval of a deleted file's
// pre-deletion content from the base commit, for callers that want to
// archive configuration before it disappears. It is a pure add-on to
// the data model — it never changes a pipeline decision.
//
// Grounded on git/recovery.rs's FileRecovery, which looks up a blob via
// git2's commit tree; here the same concern is served by
// repository.Provider.CommitFileContent so it works identically against
// a local clone (gitexec) or the GitHub REST backend.
package recovery

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/repository"
)

// Recovered pairs a deleted file's path with its pre-deletion content,
// or a recovery error (the content genuinely could not be fetched —
// never fatal to the caller).
type Recovered struct {
	Path    interner.Handle
	Content []byte
	Err     error
}

// RecoverDeletedFiles fetches, in parallel, the pre-deletion content of
// every Deleted file in files as it existed at baseSHA.
func RecoverDeletedFiles(ctx context.Context, provider repository.Provider, in *interner.Interner, files []api.ChangedFile, baseSHA string) []Recovered {
	var deletedIdx []int
	for i, f := range files {
		if f.ChangeType == api.Deleted {
			deletedIdx = append(deletedIdx, i)
		}
	}
	if len(deletedIdx) == 0 {
		return nil
	}

	results := make([]Recovered, len(deletedIdx))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for pos, idx := range deletedIdx {
		pos, idx := pos, idx
		g.Go(func() error {
			p, _ := in.Resolve(files[idx].Path)
			content, err := provider.CommitFileContent(gctx, baseSHA, p)
			mu.Lock()
			results[pos] = Recovered{Path: files[idx].Path, Content: content, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
