package diff

import (
	"context"

	"github.com/mattn/go-zglob"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/repository"
)

// diffSubmodules implements the bounded submodule-recursion step of
// §4.1/§6: list submodules at base and head, and for every submodule at
// head (whose path matches submodule_filter, if set) synthesize a
// ChangedFile: Added when it is absent at base, Modified when its pinned
// commit changed.
// The repository.Provider interface has no notion of "enter this
// submodule's own history", so depth only bounds how many submodule
// *path* components are considered eligible, not nested recursion.
func diffSubmodules(ctx context.Context, provider repository.Provider, in *interner.Interner, base, head string, cfg Config) ([]api.ChangedFile, []api.Diagnostic, error) {
	headSubs, err := provider.Submodules(ctx, head)
	if err != nil {
		return nil, nil, err
	}
	baseSubs, err := provider.Submodules(ctx, base)
	if err != nil {
		// A missing base tree (e.g. diffing from the empty tree) is not an
		// error: every submodule at head is simply new.
		baseSubs = nil
	}

	baseSHAs := make(map[string]string, len(baseSubs))
	for _, s := range baseSubs {
		baseSHAs[s.Path] = s.SHA
	}

	var files []api.ChangedFile
	var diagnostics []api.Diagnostic

	for _, s := range headSubs {
		if depthExceeds(s.Path, cfg.DirNamesMaxDepth) {
			continue
		}
		if cfg.SubmoduleFilter != "" {
			if ok, _ := zglob.Match(cfg.SubmoduleFilter, s.Path); !ok {
				continue
			}
		}
		prevSHA, existed := baseSHAs[s.Path]
		switch {
		case !existed:
			files = append(files, api.ChangedFile{
				Path:           in.Intern(s.Path),
				ChangeType:     api.Added,
				SubmoduleDepth: 1,
				Origin:         api.FileOrigin{InCurrentChanges: true},
			})
		case prevSHA != s.SHA:
			files = append(files, api.ChangedFile{
				Path:           in.Intern(s.Path),
				ChangeType:     api.Modified,
				SubmoduleDepth: 1,
				Origin:         api.FileOrigin{InCurrentChanges: true},
			})
		}
	}

	return files, diagnostics, nil
}

func depthExceeds(path string, maxDepth int) bool {
	if maxDepth <= 0 {
		return false
	}
	depth := 0
	for _, c := range path {
		if c == '/' {
			depth++
		}
	}
	return depth > maxDepth
}
