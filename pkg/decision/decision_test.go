package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

func currentFile(in *interner.Interner, path string, prevFailure bool) api.ChangedFile {
	return api.ChangedFile{
		Path: in.Intern(path),
		Origin: api.FileOrigin{
			InCurrentChanges: true,
			InPreviousFailure: prevFailure,
		},
	}
}

func TestNewChangesOnly(t *testing.T) {
	in := interner.New()
	current := []api.ChangedFile{currentFile(in, "a.rs", false), currentFile(in, "b.rs", false)}

	d := Compute(current, nil, nil)
	assert.Len(t, d.FilesToRebuild, 2)
	assert.Empty(t, d.FilesToSkip)
	for _, r := range d.RebuildReasons {
		assert.Equal(t, api.ReasonNewChange, r.Kind)
	}
}

func TestPreviousFailureOnly(t *testing.T) {
	in := interner.New()
	fileA := in.Intern("a.rs")
	failures := []api.WorkflowFailure{{
		Run:   api.WorkflowRun{ID: 1, CreatedAt: 100},
		Files: []interner.Handle{fileA},
	}}

	d := Compute(nil, failures, nil)
	require.Len(t, d.FilesToRebuild, 1)
	assert.Empty(t, d.FilesToSkip)
	assert.Equal(t, api.ReasonPreviousFailure, d.RebuildReasons[0].Kind)
}

func TestPreviousSuccessOnly(t *testing.T) {
	in := interner.New()
	fileA := in.Intern("a.rs")
	successes := []api.WorkflowSuccess{{
		Run:   api.WorkflowRun{ID: 1, CreatedAt: 100},
		Files: []interner.Handle{fileA},
	}}

	d := Compute(nil, nil, successes)
	assert.Empty(t, d.FilesToRebuild)
	assert.Len(t, d.FilesToSkip, 1)
}

// S3: failure at ts=100, success at ts=200, no current change -> skip.
func TestLatestRunWinsSuccessAfterFailure(t *testing.T) {
	in := interner.New()
	fileA := in.Intern("a.rs")
	failures := []api.WorkflowFailure{{Run: api.WorkflowRun{ID: 1, CreatedAt: 100}, Files: []interner.Handle{fileA}}}
	successes := []api.WorkflowSuccess{{Run: api.WorkflowRun{ID: 2, CreatedAt: 200}, Files: []interner.Handle{fileA}}}

	d := Compute(nil, failures, successes)
	assert.Contains(t, d.FilesToSkip, fileA)
	assert.NotContains(t, d.FilesToRebuild, fileA)
}

// S4: success at ts=200, but file is also in current diff -> rebuild wins.
func TestCurrentChangeOverridesHistory(t *testing.T) {
	in := interner.New()
	fileA := in.Intern("a.rs")
	current := []api.ChangedFile{currentFile(in, "a.rs", false)}
	successes := []api.WorkflowSuccess{{Run: api.WorkflowRun{ID: 1, CreatedAt: 200}, Files: []interner.Handle{fileA}}}

	d := Compute(current, nil, successes)
	assert.Contains(t, d.FilesToRebuild, fileA)
	assert.NotContains(t, d.FilesToSkip, fileA)
	found := false
	for _, r := range d.RebuildReasons {
		if r.File == fileA {
			found = true
			assert.Equal(t, api.ReasonNewChange, r.Kind)
		}
	}
	assert.True(t, found)
}

// Tie at equal timestamps: successes are processed before failures, and
// the overwrite condition is strict (`>`), so a tie resolves to the
// failure (pessimistic), matching the source's documented rationale.
func TestTimestampTieResolvesToFailure(t *testing.T) {
	in := interner.New()
	fileA := in.Intern("a.rs")
	failures := []api.WorkflowFailure{{Run: api.WorkflowRun{ID: 1, CreatedAt: 100}, Files: []interner.Handle{fileA}}}
	successes := []api.WorkflowSuccess{{Run: api.WorkflowRun{ID: 2, CreatedAt: 100}, Files: []interner.Handle{fileA}}}

	d := Compute(nil, failures, successes)
	assert.Contains(t, d.FilesToRebuild, fileA)
	assert.NotContains(t, d.FilesToSkip, fileA)
}

func TestRebuildSkipDisjoint(t *testing.T) {
	in := interner.New()
	fileA, fileB, fileC := in.Intern("a.rs"), in.Intern("b.rs"), in.Intern("c.rs")
	current := []api.ChangedFile{currentFile(in, "a.rs", false)}
	failures := []api.WorkflowFailure{{Run: api.WorkflowRun{ID: 1, CreatedAt: 100}, Files: []interner.Handle{fileB}}}
	successes := []api.WorkflowSuccess{{Run: api.WorkflowRun{ID: 2, CreatedAt: 100}, Files: []interner.Handle{fileC}}}

	d := Compute(current, failures, successes)
	rebuildSet := map[interner.Handle]bool{}
	for _, h := range d.FilesToRebuild {
		rebuildSet[h] = true
	}
	for _, h := range d.FilesToSkip {
		assert.False(t, rebuildSet[h], "file %d present in both buckets", h)
	}
}

func TestFailedJobNameAttachedToRebuildReason(t *testing.T) {
	in := interner.New()
	fileA := in.Intern("a.rs")
	jobName := in.Intern("Deploy [prod]")
	failures := []api.WorkflowFailure{{
		Run:        api.WorkflowRun{ID: 1, CreatedAt: 100},
		Files:      []interner.Handle{fileA},
		FailedJobs: []interner.Handle{jobName},
	}}

	d := Compute(nil, failures, nil)
	require.Len(t, d.RebuildReasons, 1)
	require.NotNil(t, d.RebuildReasons[0].FailedJobName)
	assert.Equal(t, jobName, *d.RebuildReasons[0].FailedJobName)
	require.NotNil(t, d.RebuildReasons[0].FailedRunID)
	assert.Equal(t, int64(1), *d.RebuildReasons[0].FailedRunID)
}
