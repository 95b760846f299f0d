package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lechange-action/lechange/pkg/api"
	"github.com/lechange-action/lechange/pkg/interner"
)

func TestParseStatusAndConclusion(t *testing.T) {
	assert.Equal(t, api.Queued, parseStatus("queued"))
	assert.Equal(t, api.InProgress, parseStatus("in_progress"))
	assert.Equal(t, api.Completed, parseStatus("completed"))
	assert.Equal(t, api.Completed, parseStatus("something_unknown"))

	assert.Equal(t, api.Success, parseConclusion("success"))
	assert.Equal(t, api.Failure, parseConclusion("failure"))
	assert.Equal(t, api.Cancelled, parseConclusion("cancelled"))
	assert.Equal(t, api.Skipped, parseConclusion("skipped"))
	assert.Equal(t, api.TimedOut, parseConclusion("timed_out"))
	assert.Equal(t, api.Neutral, parseConclusion("anything_else"))
}

func TestStringRedactsToken(t *testing.T) {
	c := New("", "ghp_secrettoken", interner.New())
	s := c.String()
	assert.NotContains(t, s, "ghp_secrettoken")
	assert.Contains(t, s, "<redacted>")
}

func TestListWorkflowRuns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/actions/runs", r.URL.Path)
		assert.Equal(t, "main", r.URL.Query().Get("branch"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_count":1,"workflow_runs":[{"id":42,"name":"build","status":"completed","conclusion":"success","head_branch":"main","head_sha":"abc123","created_at":"2024-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", interner.New())
	runs, err := c.ListWorkflowRuns(t.Context(), "o", "r", "main", "", 30, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(42), runs[0].ID)
	assert.Equal(t, api.Completed, runs[0].Status)
	require.NotNil(t, runs[0].Conclusion)
	assert.Equal(t, api.Success, *runs[0].Conclusion)
}

func TestGetCommitFilesPaginatesViaLinkHeader(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Link", `<https://example.com?page=2>; rel="next"`)
			_, _ = w.Write([]byte(`{"files":[{"filename":"a.go"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"files":[{"filename":"b.go"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", interner.New())
	files, err := c.GetCommitFiles(t.Context(), "o", "r", "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, files)
	assert.Equal(t, 2, calls)
}

func TestRateLimitExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "", interner.New())
	_, err := c.ListWorkflowRuns(t.Context(), "o", "r", "", "", 30, 1)
	require.Error(t, err)
}

func TestWaitForWorkflowReturnsOnCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":7,"name":"deploy","status":"completed","conclusion":"success","head_branch":"main","head_sha":"abc","created_at":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", interner.New())
	run, err := c.WaitForWorkflow(t.Context(), "o", "r", 7, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(7), run.ID)
}
