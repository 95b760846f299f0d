package lcerror

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindWorkflow, "run %d not found", 42)
	require.Equal(t, KindWorkflow, KindOf(err))
	require.Equal(t, KindOther, KindOf(errors.New("plain")))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindHTTP, cause, "fetching workflow runs")
	require.ErrorIs(t, wrapped, cause)
	require.Contains(t, wrapped.Error(), "boom")
}

func TestErrorMessagesNeverContainTokenPatterns(t *testing.T) {
	tokenPatterns := []string{"ghp_", "gho_", "ghs_", "github_pat_", "Bearer "}
	errs := []*Error{
		New(KindGit, "git error"),
		New(KindConfig, "config error"),
		New(KindHTTP, "http error"),
		New(KindWorkflow, "workflow error"),
		New(KindRateLimitExceeded, "rate limit exceeded"),
	}
	for _, e := range errs {
		msg := e.Error()
		for _, pattern := range tokenPatterns {
			require.False(t, strings.Contains(msg, pattern), "error message leaked token pattern %q: %s", pattern, msg)
		}
	}
}
