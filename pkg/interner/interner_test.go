package interner

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdempotence(t *testing.T) {
	in := New()
	for _, s := range []string{"a/b.go", "", "stacks/prod/config.yaml"} {
		require.Equal(t, in.Intern(s), in.Intern(s))
	}
}

func TestRoundTrip(t *testing.T) {
	in := New()
	for _, s := range []string{"a", "b/c", "d/e/f.yaml"} {
		h := in.Intern(s)
		got, ok := in.Resolve(h)
		require.True(t, ok)
		require.Equal(t, s, got)
	}
}

func TestDistinctness(t *testing.T) {
	in := New()
	a := in.Intern("a")
	b := in.Intern("b")
	require.NotEqual(t, a, b)
}

func TestUnknownHandleResolve(t *testing.T) {
	in := New()
	_, ok := in.Resolve(Handle(9999))
	require.False(t, ok)
	_, ok = in.Resolve(NoHandle)
	require.False(t, ok)
}

func TestConcurrentIntern(t *testing.T) {
	in := New()
	var wg sync.WaitGroup
	results := make([]Handle, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = in.Intern("shared-path")
		}(i)
	}
	wg.Wait()
	for _, h := range results {
		require.Equal(t, results[0], h)
	}
}

func TestManyDistinctStringsRoundTrip(t *testing.T) {
	in := New()
	handles := make(map[string]Handle)
	for i := 0; i < 500; i++ {
		s := fmt.Sprintf("path/%d.go", i)
		handles[s] = in.Intern(s)
	}
	for s, h := range handles {
		got, ok := in.Resolve(h)
		require.True(t, ok)
		require.Equal(t, s, got)
	}
}
