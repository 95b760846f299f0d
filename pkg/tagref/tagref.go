// Package tagref implements the tags_pattern/tags_ignore_pattern
// comparison mode (§11): instead of diffing against a literal base ref,
// resolve the base to the most recently created tag matching a glob.
// Grounded on original_source's `tags_pattern`/`tags_ignore_pattern`
// config fields; the original leaves the actual tag-walk to the host
// git layer, so this takes the tag list from a repository.TagLister
// (gitexec's ListTagsByRecency) and only does the glob matching.
package tagref

import (
	"context"

	zglob "github.com/mattn/go-zglob"

	"github.com/lechange-action/lechange/pkg/lcerror"
	"github.com/lechange-action/lechange/pkg/repository"
)

// Resolve returns the name of the most recently created tag matching
// pattern (and not matching ignorePattern, if set), or an error when no
// tag qualifies. An empty pattern is not special-cased; cmd/lechange
// calls Resolve only when a tags pattern is set. provider must
// implement repository.TagLister, which only the gitexec backend does.
func Resolve(ctx context.Context, provider repository.TagLister, pattern, ignorePattern string) (string, error) {
	tags, err := provider.ListTagsByRecency(ctx)
	if err != nil {
		return "", err
	}
	for _, tag := range tags {
		matched, err := zglob.Match(pattern, tag)
		if err != nil {
			return "", lcerror.Wrap(lcerror.KindPattern, err, "matching tags_pattern %q", pattern)
		}
		if !matched {
			continue
		}
		if ignorePattern != "" {
			ignored, err := zglob.Match(ignorePattern, tag)
			if err != nil {
				return "", lcerror.Wrap(lcerror.KindPattern, err, "matching tags_ignore_pattern %q", ignorePattern)
			}
			if ignored {
				continue
			}
		}
		return tag, nil
	}
	return "", lcerror.New(lcerror.KindInvalidPath, "no tag matched pattern %q", pattern)
}
