package patterns

import (
	"math/rand"
	"testing"

	fuzz "github.com/google/gofuzz"
)

// TestFilterClosurePropertyRandomizedCorpus replaces the original
// implementation's fuzz_targets/ harness with a gofuzz-driven generative
// test over randomly generated path corpora and pattern sets: Filter's
// two returned index sets must always partition the input (every index
// appears in exactly one of matched/unmatched) and must agree pointwise
// with Matches.
func TestFilterClosurePropertyRandomizedCorpus(t *testing.T) {
	pathFuzzer := fuzz.New().NilChance(0).RandSource(rand.NewSource(42)).Funcs(
		func(s *string, c fuzz.Continue) {
			segments := c.Intn(4) + 1
			out := ""
			for i := 0; i < segments; i++ {
				if i > 0 {
					out += "/"
				}
				n := c.Intn(8) + 1
				b := make([]byte, n)
				alphabet := "abcdefgh0123"
				for j := range b {
					b[j] = alphabet[c.Intn(len(alphabet))]
				}
				out += string(b)
			}
			exts := []string{".go", ".md", ".yaml", ".txt", ""}
			out += exts[c.Intn(len(exts))]
			*s = out
		},
	)

	patternPool := []string{"**/*.go", "pkg/**", "*.md", "**/*.yaml", "cmd/**/*.go", "**/testdata/**"}

	for trial := 0; trial < 20; trial++ {
		var includes, excludes []string
		r := rand.New(rand.NewSource(int64(trial)))
		for _, p := range patternPool {
			if r.Intn(2) == 0 {
				includes = append(includes, p)
			}
			if r.Intn(3) == 0 {
				excludes = append(excludes, p)
			}
		}

		m, err := New(includes, excludes, r.Intn(2) == 0)
		if err != nil {
			t.Fatalf("New(%v, %v) = %v", includes, excludes, err)
		}

		n := 200
		paths := make([]string, n)
		for i := range paths {
			pathFuzzer.Fuzz(&paths[i])
		}

		matched, unmatched := m.Filter(paths)
		if len(matched)+len(unmatched) != n {
			t.Fatalf("trial %d: Filter partition sizes %d+%d != %d", trial, len(matched), len(unmatched), n)
		}

		seen := make([]bool, n)
		for _, idx := range matched {
			if seen[idx] {
				t.Fatalf("trial %d: index %d appears twice across matched/unmatched", trial, idx)
			}
			seen[idx] = true
			if !m.Matches(paths[idx]) {
				t.Fatalf("trial %d: Filter placed %q in matched but Matches disagrees", trial, paths[idx])
			}
		}
		for _, idx := range unmatched {
			if seen[idx] {
				t.Fatalf("trial %d: index %d appears twice across matched/unmatched", trial, idx)
			}
			seen[idx] = true
			if m.Matches(paths[idx]) {
				t.Fatalf("trial %d: Filter placed %q in unmatched but Matches disagrees", trial, paths[idx])
			}
		}
		for i, s := range seen {
			if !s {
				t.Fatalf("trial %d: index %d missing from both matched and unmatched", trial, i)
			}
		}
	}
}
