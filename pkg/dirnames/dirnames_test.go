package dirnames

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

func makeFile(in *interner.Interner, path string, ct api.ChangeType) api.ChangedFile {
	return api.ChangedFile{Path: in.Intern(path), ChangeType: ct}
}

func resolveAll(in *interner.Interner, hs []interner.Handle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i], _ = in.Resolve(h)
	}
	return out
}

func TestExtractBasic(t *testing.T) {
	in := interner.New()
	files := []api.ChangedFile{
		makeFile(in, "src/main.rs", api.Modified),
		makeFile(in, "src/lib.rs", api.Added),
		makeFile(in, "tests/test.rs", api.Modified),
	}
	dirs := resolveAll(in, Extract(in, files, []uint32{0, 1, 2}, Options{}))
	assert.Contains(t, dirs, "src")
	assert.Contains(t, dirs, "tests")
}

func TestExtractWithDepth(t *testing.T) {
	in := interner.New()
	files := []api.ChangedFile{makeFile(in, "a/b/c/file.rs", api.Modified)}
	dirs := resolveAll(in, Extract(in, files, []uint32{0}, Options{MaxDepth: 2}))
	require.Len(t, dirs, 1)
	assert.Equal(t, "a/b", dirs[0])
}

func TestExtractDeletedOnlyDirs(t *testing.T) {
	in := interner.New()
	files := []api.ChangedFile{
		makeFile(in, "old/a.rs", api.Deleted),
		makeFile(in, "old/b.rs", api.Deleted),
		makeFile(in, "mixed/a.rs", api.Deleted),
		makeFile(in, "mixed/b.rs", api.Modified),
	}
	dirs := resolveAll(in, Extract(in, files, []uint32{0, 1, 2, 3}, Options{DeletedOnlyDirs: true}))
	assert.Contains(t, dirs, "old")
	assert.NotContains(t, dirs, "mixed")
}

func TestExtractExcludeCurrentDir(t *testing.T) {
	in := interner.New()
	files := []api.ChangedFile{
		makeFile(in, "root_file.rs", api.Modified),
		makeFile(in, "src/main.rs", api.Modified),
	}
	dirs := resolveAll(in, Extract(in, files, []uint32{0, 1}, Options{ExcludeCurrentDir: true}))
	assert.NotContains(t, dirs, ".")
	assert.Contains(t, dirs, "src")
}

func TestExtractIncludeFilesFilter(t *testing.T) {
	in := interner.New()
	files := []api.ChangedFile{
		makeFile(in, "src/main.rs", api.Modified),
		makeFile(in, "src/lib.rs", api.Modified),
		makeFile(in, "tests/test.py", api.Modified),
	}
	dirs := resolveAll(in, Extract(in, files, []uint32{0, 1, 2}, Options{IncludeFiles: []string{".rs"}}))
	assert.Contains(t, dirs, "src")
	assert.NotContains(t, dirs, "tests")
}
