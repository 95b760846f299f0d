// Package rest implements repository.Provider against the GitHub REST
// API, for invocations that run without a local clone. Blob content
// (CommitFileContent, and Submodules via it) is fetched through
// pkg/github.NewBlobGetter, which hits raw.githubusercontent.com
// instead of the rate-limited REST API; the rest of the interface talks
// directly to api.github.com.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/lechange-action/lechange/pkg/github"
	"github.com/lechange-action/lechange/pkg/lcerror"
	"github.com/lechange-action/lechange/pkg/repository"
)

// Provider talks to the GitHub REST API for one owner/repo.
type Provider struct {
	client  *retryablehttp.Client
	baseURL string
	owner   string
	repo    string
	token   string
}

// New returns a Provider. token may be empty for public repositories,
// subject to GitHub's unauthenticated rate limit. Blob content is
// fetched via github.NewBlobGetter rather than the main REST API,
// since raw.githubusercontent.com isn't subject to the same rate limit.
func New(owner, repo, apiURL, token string) *Provider {
	client := retryablehttp.NewClient()
	client.Logger = nil
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &Provider{client: client, baseURL: apiURL, owner: owner, repo: repo, token: token}
}

// fileGetterAt builds a BlobGetter bound to ref. NewBlobGetter binds one
// ref for its whole lifetime, so CommitFileContent builds a fresh one
// per call since the ref (a commit SHA) varies call to call.
func (p *Provider) fileGetterAt(ref string) github.BlobGetter {
	return github.NewBlobGetter(p.owner, p.repo, ref, p.token)
}

// String redacts the token so logging a Provider by value never leaks it.
func (p *Provider) String() string {
	tok := "<none>"
	if p.token != "" {
		tok = "<redacted>"
	}
	return fmt.Sprintf("rest.Provider{owner=%s repo=%s token=%s}", p.owner, p.repo, tok)
}

// GoString backs %#v the same way String backs %v and %s.
func (p *Provider) GoString() string { return p.String() }

func (p *Provider) newRequest(ctx context.Context, method, url string) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

func checkRateLimit(resp *http.Response) error {
	if resp.StatusCode == http.StatusForbidden {
		remaining := resp.Header.Get("x-ratelimit-remaining")
		if remaining == "0" {
			return lcerror.New(lcerror.KindRateLimitExceeded,
				"GitHub API rate limit exceeded (remaining: %s); consider setting a token", remaining)
		}
	}
	return nil
}

func (p *Provider) ResolveSHA(ctx context.Context, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", p.baseURL, p.owner, p.repo, ref)
	req, err := p.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return "", lcerror.Wrap(lcerror.KindHTTP, err, "building request for %s", ref)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", lcerror.Wrap(lcerror.KindHTTP, err, "resolving ref %s", ref)
	}
	defer resp.Body.Close()
	if err := checkRateLimit(resp); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", lcerror.New(lcerror.KindHTTP, "unexpected status %d resolving ref %s", resp.StatusCode, ref)
	}
	var commit struct {
		SHA    string `json:"sha"`
		Parents []struct {
			SHA string `json:"sha"`
		} `json:"parents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return "", lcerror.Wrap(lcerror.KindHTTP, err, "decoding commit response")
	}
	return commit.SHA, nil
}

func (p *Provider) HasParent(ctx context.Context, head string) (bool, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", p.baseURL, p.owner, p.repo, head)
	req, err := p.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return false, lcerror.Wrap(lcerror.KindHTTP, err, "building request for %s", head)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, lcerror.Wrap(lcerror.KindHTTP, err, "checking parents of %s", head)
	}
	defer resp.Body.Close()
	var commit struct {
		Parents []struct {
			SHA string `json:"sha"`
		} `json:"parents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return false, lcerror.Wrap(lcerror.KindHTTP, err, "decoding commit response")
	}
	return len(commit.Parents) > 0, nil
}

// compareResponse mirrors GitHub's /compare/{base}...{head} response.
type compareResponse struct {
	Files []struct {
		Filename         string `json:"filename"`
		PreviousFilename string `json:"previous_filename"`
		Status           string `json:"status"`
		Additions        int    `json:"additions"`
		Deletions        int    `json:"deletions"`
	} `json:"files"`
}

func (p *Provider) Diff(ctx context.Context, base, head, diffFilter string) ([]repository.RawDiffEntry, int, int, error) {
	if diffFilter == "" {
		diffFilter = "ACDMRTUX"
	}
	url := fmt.Sprintf("%s/repos/%s/%s/compare/%s...%s", p.baseURL, p.owner, p.repo, base, head)
	req, err := p.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, 0, 0, lcerror.Wrap(lcerror.KindHTTP, err, "building compare request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, 0, lcerror.Wrap(lcerror.KindHTTP, err, "comparing %s...%s", base, head)
	}
	defer resp.Body.Close()
	if err := checkRateLimit(resp); err != nil {
		return nil, 0, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, 0, lcerror.New(lcerror.KindHTTP, "unexpected status %d comparing %s...%s: %s", resp.StatusCode, base, head, string(body))
	}
	var cmp compareResponse
	if err := json.NewDecoder(resp.Body).Decode(&cmp); err != nil {
		return nil, 0, 0, lcerror.Wrap(lcerror.KindHTTP, err, "decoding compare response")
	}

	var entries []repository.RawDiffEntry
	additions, deletions := 0, 0
	for _, f := range cmp.Files {
		ct, ok := statusToChangeType(f.Status)
		if !ok || !strings.ContainsRune(diffFilter, rune(ct)) {
			continue
		}
		additions += f.Additions
		deletions += f.Deletions
		entries = append(entries, repository.RawDiffEntry{
			ChangeType:   ct,
			Path:         f.Filename,
			PreviousPath: f.PreviousFilename,
		})
	}
	return entries, additions, deletions, nil
}

func statusToChangeType(status string) (byte, bool) {
	switch status {
	case "added":
		return 'A', true
	case "removed":
		return 'D', true
	case "modified":
		return 'M', true
	case "renamed":
		return 'R', true
	case "copied":
		return 'C', true
	case "changed":
		return 'T', true
	case "unchanged":
		return 0, false
	default:
		return 'X', true
	}
}

func (p *Provider) CommitFileContent(ctx context.Context, sha, path string) ([]byte, error) {
	content, err := p.fileGetterAt(sha)(path)
	if err != nil {
		return nil, lcerror.Wrap(lcerror.KindHTTP, err, "fetching %s at %s", path, sha)
	}
	return content, nil
}

func (p *Provider) IsSymlink(ctx context.Context, sha, path string) (bool, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", p.baseURL, p.owner, p.repo, path, sha)
	req, err := p.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return false, lcerror.Wrap(lcerror.KindHTTP, err, "building contents request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, lcerror.Wrap(lcerror.KindHTTP, err, "fetching contents metadata for %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return false, lcerror.Wrap(lcerror.KindHTTP, err, "decoding contents metadata")
	}
	return meta.Type == "symlink", nil
}

func (p *Provider) Submodules(ctx context.Context, sha string) ([]repository.SubmoduleRef, error) {
	content, err := p.CommitFileContent(ctx, sha, ".gitmodules")
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, nil
	}
	return parseGitmodules(string(content)), nil
}

// parseGitmodules does a minimal parse of the `path = ...` lines in a
// .gitmodules file. No pinned-commit lookup is made, so every returned
// SubmoduleRef has an empty SHA.
func parseGitmodules(content string) []repository.SubmoduleRef {
	var refs []repository.SubmoduleRef
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "path") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		refs = append(refs, repository.SubmoduleRef{Path: strings.TrimSpace(parts[1])})
	}
	return refs
}
