package diff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechange-action/lechange/pkg/interner"
	"github.com/lechange-action/lechange/pkg/patterns"
	"github.com/lechange-action/lechange/pkg/repository"
)

type stubRepo struct {
	resolved     map[string]string
	hasParent    bool
	entries      []repository.RawDiffEntry
	additions    int
	deletions    int
	diffErr      error
	symlinks     map[string]bool
	headSubs     []repository.SubmoduleRef
	baseSubs     []repository.SubmoduleRef
}

func (s *stubRepo) ResolveSHA(ctx context.Context, ref string) (string, error) {
	if sha, ok := s.resolved[ref]; ok {
		return sha, nil
	}
	return ref, nil
}

func (s *stubRepo) HasParent(ctx context.Context, head string) (bool, error) {
	return s.hasParent, nil
}

func (s *stubRepo) Diff(ctx context.Context, base, head, diffFilter string) ([]repository.RawDiffEntry, int, int, error) {
	if s.diffErr != nil {
		return nil, 0, 0, s.diffErr
	}
	return s.entries, s.additions, s.deletions, nil
}

func (s *stubRepo) CommitFileContent(ctx context.Context, sha, path string) ([]byte, error) {
	return nil, nil
}

func (s *stubRepo) IsSymlink(ctx context.Context, sha, path string) (bool, error) {
	return s.symlinks[path], nil
}

func (s *stubRepo) Submodules(ctx context.Context, sha string) ([]repository.SubmoduleRef, error) {
	if sha == "head" {
		return s.headSubs, nil
	}
	return s.baseSubs, nil
}

func newStub() *stubRepo {
	return &stubRepo{
		resolved:  map[string]string{"HEAD": "head", "base": "base"},
		hasParent: true,
	}
}

func TestProcessBasicFilterAndGroups(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.entries = []repository.RawDiffEntry{
		{ChangeType: 'M', Path: "stacks/dev/a.yaml"},
		{ChangeType: 'A', Path: "README.md"},
	}

	matcher, err := patterns.New([]string{"stacks/**"}, nil, true)
	require.NoError(t, err)
	devMatcher, err := patterns.New([]string{"stacks/dev/**"}, nil, true)
	require.NoError(t, err)
	groups := []patterns.Group{{Key: "dev", Matcher: devMatcher}}

	cfg := DefaultConfig()
	cfg.DetectSymlinks = false
	result, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, matcher, groups)
	require.NoError(t, err)

	require.Len(t, result.FilteredIndices, 1)
	require.Len(t, result.UnmatchedIndices, 1)
	assert.True(t, result.PatternApplied)
	require.Len(t, result.GroupResults, 1)
	assert.Equal(t, []uint32{0}, result.GroupResults[0].MatchedIndices)
}

func TestProcessNilMatcherKeepsEverything(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.entries = []repository.RawDiffEntry{
		{ChangeType: 'M', Path: "a.go"},
		{ChangeType: 'A', Path: "b.go"},
	}
	cfg := DefaultConfig()
	cfg.DetectSymlinks = false
	result, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, nil, nil)
	require.NoError(t, err)
	assert.False(t, result.PatternApplied)
	assert.Len(t, result.FilteredIndices, 2)
	assert.Empty(t, result.UnmatchedIndices)
}

func TestProcessSkipSameSHA(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.resolved["HEAD"] = "same"
	repo.resolved["base"] = "same"
	cfg := DefaultConfig()
	cfg.SkipSameSHA = true
	result, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.AllFiles)
	require.Len(t, result.Diagnostics, 1)
}

func TestProcessInitialDiffErrorSoftFails(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.diffErr = assertErr{}
	cfg := DefaultConfig()
	cfg.FailOnInitialDiffError = false
	result, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Diagnostics, 1)
}

func TestProcessInitialDiffErrorAborts(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.diffErr = assertErr{}
	cfg := DefaultConfig()
	cfg.FailOnInitialDiffError = true
	_, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, nil, nil)
	require.Error(t, err)
}

func TestAncestorRecoveryPromotesMatchedSiblingDir(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.entries = []repository.RawDiffEntry{
		{ChangeType: 'M', Path: "stacks/prod/deploy.yaml"},
		{ChangeType: 'A', Path: "stacks/prod/migrations/001.sql"},
	}
	matcher, err := patterns.New([]string{"**/*.yaml"}, nil, true)
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.DetectSymlinks = false
	cfg.AncestorLookupDepth = 2
	result, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, matcher, nil)
	require.NoError(t, err)
	assert.Len(t, result.FilteredIndices, 2)
	assert.Empty(t, result.UnmatchedIndices)
	require.Len(t, result.Diagnostics, 1)
}

func TestSymlinkDetectionStampsFiles(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.entries = []repository.RawDiffEntry{{ChangeType: 'M', Path: "link.txt"}}
	repo.symlinks = map[string]bool{"link.txt": true}
	cfg := DefaultConfig()
	result, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.AllFiles, 1)
	assert.True(t, result.AllFiles[0].IsSymlink)
}

func TestSubmoduleBumpDetected(t *testing.T) {
	in := interner.New()
	repo := newStub()
	repo.baseSubs = []repository.SubmoduleRef{{Path: "vendor/lib", SHA: "aaa"}}
	repo.headSubs = []repository.SubmoduleRef{{Path: "vendor/lib", SHA: "bbb"}}
	cfg := DefaultConfig()
	cfg.IncludeSubmodules = true
	cfg.DetectSymlinks = false
	result, err := Process(context.Background(), repo, in, "base", "HEAD", cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, result.AllFiles, 1)
	p, _ := in.Resolve(result.AllFiles[0].Path)
	assert.Equal(t, "vendor/lib", p)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
