// Package github fetches raw blob content for a single path at a given
// ref via raw.githubusercontent.com rather than the rate-limited REST
// API. Provider.CommitFileContent in pkg/repository/rest uses it as the
// sole source of file bytes for a REST-backed run, which in turn backs
// submodule listing (used by submodule diffing in pkg/diff) and
// deleted-file recovery in pkg/recovery.
package github

import (
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// BlobGetter downloads the content at path for the ref it was built
// against. It returns a nil slice and a nil error on 404, matching the
// "path did not exist at this commit" case a git-backed provider would
// signal by simply omitting the file.
type BlobGetter func(path string) ([]byte, error)

// NewBlobGetter returns a BlobGetter bound to org/repo/ref. token may be
// empty for public repositories, subject to the unauthenticated rate
// limit; when set it is sent as HTTP basic auth with a literal
// "x-access-token" username, the scheme GitHub App installation tokens
// expect against raw.githubusercontent.com.
func NewBlobGetter(org, repo, ref, token string) BlobGetter {
	client := retryablehttp.NewClient()
	client.Logger = nil
	return func(path string) ([]byte, error) {
		url := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", org, repo, ref, path)
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", url, err)
		}
		if token != "" {
			req.SetBasicAuth("x-access-token", token)
		}
		resp, err := client.StandardClient().Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response body for %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d fetching %s: %s", resp.StatusCode, url, string(body))
		}
		return body, nil
	}
}
