// internal/github/client.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"gitpulse/internal/apperr"
)

const (
	repoPageSize = 100
	itemPageSize = 30

	callTimeout = 15 * time.Second
	maxAttempts = 2 // one retry on transient failure
)

// Client wraps the go-github client. Tokens are supplied per call because
// every user brings their own credentials.
type Client struct {
	logger  *slog.Logger
	baseURL string
}

// NewClient creates a new Client instance.
func NewClient(logger *slog.Logger) *Client {
	return &Client{logger: logger}
}

// OverrideBaseURL points the client at a different API host. Used by tests.
func (c *Client) OverrideBaseURL(url string) {
	c.baseURL = url
}

// RemoteRepository is one repository as reported by the GitHub API.
type RemoteRepository struct {
	ID          int64
	Name        string
	Description string
	Language    string
	Stars       int
	Forks       int
	PushedAt    time.Time
	Private     bool
	HTMLURL     string
}

// RemoteCommit is one commit as reported by the GitHub API. Raw retains the
// upstream object for the activity payload.
type RemoteCommit struct {
	SHA        string
	Message    string
	AuthorName string
	AuthorDate time.Time
	HTMLURL    string
	Raw        json.RawMessage
}

// RemoteItem is one issue or pull request as reported by the GitHub API.
type RemoteItem struct {
	Number    int
	Title     string
	State     string
	Author    string
	CreatedAt time.Time
	HTMLURL   string
	Raw       json.RawMessage
}

func (c *Client) api(ctx context.Context, token string) (*github.Client, error) {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	gh := github.NewClient(hc)
	if c.baseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(c.baseURL, c.baseURL)
		if err != nil {
			return nil, err
		}
	}
	return gh, nil
}

// ListRepositories fetches the user's repositories ordered by most recent
// update, capped at one page of 100.
func (c *Client) ListRepositories(ctx context.Context, token, username string) ([]RemoteRepository, error) {
	gh, err := c.api(ctx, token)
	if err != nil {
		return nil, err
	}

	opts := &github.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: repoPageSize},
	}

	var repos []*github.Repository
	err = c.call(ctx, "list repositories", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		repos, resp, err = gh.Repositories.ListByUser(ctx, username, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]RemoteRepository, 0, len(repos))
	for _, r := range repos {
		out = append(out, RemoteRepository{
			ID:          r.GetID(),
			Name:        r.GetName(),
			Description: r.GetDescription(),
			Language:    r.GetLanguage(),
			Stars:       r.GetStargazersCount(),
			Forks:       r.GetForksCount(),
			PushedAt:    r.GetPushedAt().Time,
			Private:     r.GetPrivate(),
			HTMLURL:     r.GetHTMLURL(),
		})
	}
	return out, nil
}

// ListCommits fetches up to the 30 most recent commits for a repository.
func (c *Client) ListCommits(ctx context.Context, token, owner, repo string) ([]RemoteCommit, error) {
	gh, err := c.api(ctx, token)
	if err != nil {
		return nil, err
	}

	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: itemPageSize},
	}

	var commits []*github.RepositoryCommit
	err = c.call(ctx, "list commits", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		commits, resp, err = gh.Repositories.ListCommits(ctx, owner, repo, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]RemoteCommit, 0, len(commits))
	for _, commit := range commits {
		raw, _ := json.Marshal(commit)
		out = append(out, RemoteCommit{
			SHA:        commit.GetSHA(),
			Message:    commit.GetCommit().GetMessage(),
			AuthorName: commit.GetCommit().GetAuthor().GetName(),
			AuthorDate: commit.GetCommit().GetAuthor().GetDate().Time,
			HTMLURL:    commit.GetHTMLURL(),
			Raw:        raw,
		})
	}
	return out, nil
}

// ListIssues fetches up to 30 issues in any state. The issues endpoint also
// returns pull requests; those are filtered out here.
func (c *Client) ListIssues(ctx context.Context, token, owner, repo string) ([]RemoteItem, error) {
	gh, err := c.api(ctx, token)
	if err != nil {
		return nil, err
	}

	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: itemPageSize},
	}

	var issues []*github.Issue
	err = c.call(ctx, "list issues", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		issues, resp, err = gh.Issues.ListByRepo(ctx, owner, repo, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]RemoteItem, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		raw, _ := json.Marshal(issue)
		out = append(out, RemoteItem{
			Number:    issue.GetNumber(),
			Title:     issue.GetTitle(),
			State:     issue.GetState(),
			Author:    issue.GetUser().GetLogin(),
			CreatedAt: issue.GetCreatedAt().Time,
			HTMLURL:   issue.GetHTMLURL(),
			Raw:       raw,
		})
	}
	return out, nil
}

// ListPullRequests fetches up to 30 pull requests in any state.
func (c *Client) ListPullRequests(ctx context.Context, token, owner, repo string) ([]RemoteItem, error) {
	gh, err := c.api(ctx, token)
	if err != nil {
		return nil, err
	}

	opts := &github.PullRequestListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: itemPageSize},
	}

	var prs []*github.PullRequest
	err = c.call(ctx, "list pull requests", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		prs, resp, err = gh.PullRequests.List(ctx, owner, repo, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]RemoteItem, 0, len(prs))
	for _, pr := range prs {
		raw, _ := json.Marshal(pr)
		out = append(out, RemoteItem{
			Number:    pr.GetNumber(),
			Title:     pr.GetTitle(),
			State:     pr.GetState(),
			Author:    pr.GetUser().GetLogin(),
			CreatedAt: pr.GetCreatedAt().Time,
			HTMLURL:   pr.GetHTMLURL(),
			Raw:       raw,
		})
	}
	return out, nil
}

// call runs fn with a bounded timeout, retrying once on a transport error or
// 5xx response. Other upstream failures surface immediately.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) (*github.Response, error)) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		resp, err := fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = wrapUpstream(op, resp, err)

		if ctx.Err() != nil || !isTransient(resp, err) {
			return lastErr
		}
		c.logger.Warn("GitHub call failed, retrying", "op", op, "attempt", attempt, "error", err)
	}
	return lastErr
}

func isTransient(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode >= 500 {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		return ghErr.Response != nil && ghErr.Response.StatusCode >= 500
	}
	// No HTTP response at all: transport-level failure.
	return resp == nil && !errors.Is(err, context.Canceled)
}

func wrapUpstream(op string, resp *github.Response, err error) error {
	ue := &apperr.UpstreamError{Service: "github: " + op, Err: err}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		ue.StatusCode = ghErr.Response.StatusCode
		ue.Body = ghErr.Message
	} else if resp != nil {
		// go-github has already drained the response body by the time an
		// error reaches here, so only the status code is recoverable.
		ue.StatusCode = resp.StatusCode
	}
	return ue
}
