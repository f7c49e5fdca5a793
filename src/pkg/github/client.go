package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v66/github"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/trakrf/action-spec-sub003/src/pkg/models"
	"github.com/trakrf/action-spec-sub003/src/pkg/secrets"
)

var logger = log.WithField("package", "github")

// LabelColor is applied when a PR label has to be created first.
const LabelColor = "e4e669"

// maxRetries bounds rate-limit retries. With exponential backoff the waits
// are 1s, 2s, 4s before giving up.
const maxRetries = 3

var baseRetryDelay = time.Second

// RepoClient is the surface the change pipeline needs from GitHub. Every
// call validates the repository against the allow-list and the path against
// traversal rules before touching the network.
type RepoClient interface {
	// FetchFile returns the raw file content and its blob SHA at a ref.
	// An empty ref means the repository's default branch.
	FetchFile(ctx context.Context, repo, path, ref string) ([]byte, string, error)
	// ListFiles returns the file paths directly under dir at the default branch.
	ListFiles(ctx context.Context, repo, dir string) ([]string, error)
	// GetDefaultBranch returns the repository's default branch name.
	GetDefaultBranch(ctx context.Context, repo string) (string, error)
	// CreateBranch points a new branch at the head of fromBranch.
	CreateBranch(ctx context.Context, repo, name, fromBranch string) error
	// CommitFile creates or updates one file on a branch and returns the commit SHA.
	CommitFile(ctx context.Context, repo, branch, path, message string, content []byte) (string, error)
	// CreatePullRequest opens a PR from head into base.
	CreatePullRequest(ctx context.Context, repo, head, base, title, body string) (*models.PullRequest, error)
	// AddLabels attaches labels to a PR, creating any that do not exist yet.
	AddLabels(ctx context.Context, repo string, number int, labels []string) error
	// RateLimit returns the current core API quota.
	RateLimit(ctx context.Context) (*models.RateLimitStatus, error)
}

// Options configures a Client.
type Options struct {
	// AllowedRepos is the exact-match "owner/name" allow-list. Empty means
	// nothing is allowed.
	AllowedRepos []string
	// TokenSecret is the name the secrets provider resolves the API token
	// under.
	TokenSecret string
	// BaseURL overrides the API endpoint, for GitHub Enterprise and tests.
	BaseURL string
	// Timeout bounds each individual API call.
	Timeout time.Duration
}

// Client implements RepoClient on the GitHub REST API. The authenticated
// client is built once per process and rebuilt only after an authentication
// failure.
type Client struct {
	opts    Options
	secrets secrets.Provider

	mu sync.Mutex
	gh *github.Client

	// test seams
	newGH func(token string) (*github.Client, error)
	sleep func(time.Duration)
}

var _ RepoClient = (*Client)(nil)

func NewClient(opts Options, provider secrets.Provider) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	c := &Client{
		opts:    opts,
		secrets: provider,
		sleep:   time.Sleep,
	}
	c.newGH = c.buildClient
	return c
}

func (c *Client) buildClient(token string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	gh := github.NewClient(tc)
	if c.opts.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(c.opts.BaseURL, c.opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set API base URL: %w", err)
		}
	}
	return gh, nil
}

// getClient returns the cached authenticated client, resolving the token on
// first use.
func (c *Client) getClient(ctx context.Context) (*github.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gh != nil {
		return c.gh, nil
	}

	token, err := c.secrets.GetSecret(ctx, c.opts.TokenSecret)
	if err != nil {
		return nil, &AuthenticationError{Message: "could not resolve API token"}
	}
	gh, err := c.newGH(token)
	if err != nil {
		return nil, err
	}
	c.gh = gh
	logger.Info("github: client authenticated")
	return c.gh, nil
}

// invalidate drops the cached client so the next call re-resolves the token.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.gh = nil
	c.mu.Unlock()
}

// checkRepo enforces the allow-list before any network traffic.
func (c *Client) checkRepo(repo string) error {
	for _, allowed := range c.opts.AllowedRepos {
		if repo == allowed {
			return nil
		}
	}
	return &RepositoryNotAllowedError{Repo: repo}
}

// checkPath rejects traversal and absolute paths before any network traffic.
func checkPath(path string) error {
	if path == "" ||
		strings.HasPrefix(path, "/") ||
		strings.Contains(path, "\\") ||
		strings.Contains(path, "..") {
		return &InvalidPathError{Path: path}
	}
	return nil
}

// withRetry runs fn, retrying only on rate-limit responses with exponential
// backoff. Other failures return immediately. go-github remembers an
// exhausted quota and short-circuits follow-up calls until the advertised
// reset, so retry attempts carry the BypassRateLimitCheck context value to
// reach the network again.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := baseRetryDelay
	for attempt := 0; ; attempt++ {
		callCtx := ctx
		if attempt > 0 {
			callCtx = context.WithValue(ctx, github.BypassRateLimitCheck, true)
		}
		err := fn(callCtx)
		retryAfter, limited := rateLimited(err)
		if !limited {
			return err
		}
		if attempt >= maxRetries {
			return &RateLimitError{RetryAfter: retryAfter}
		}
		logger.WithFields(log.Fields{
			"operation": op,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
		}).Warn("github: rate limited, backing off")
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.sleep(delay)
		delay *= 2
	}
}

// rateLimited reports whether err is a GitHub rate-limit response and the
// suggested wait in seconds.
func rateLimited(err error) (int, bool) {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		wait := int(time.Until(rle.Rate.Reset.Time).Seconds())
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		if abuse.RetryAfter != nil {
			return int(abuse.RetryAfter.Seconds()), true
		}
		return 0, true
	}
	return 0, false
}

// classify maps a go-github error onto this package's typed errors. notFound
// supplies the operation-specific 404 meaning.
func (c *Client) classify(op string, resp *github.Response, err error, notFound error) error {
	if _, limited := rateLimited(err); limited {
		return err
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch status {
	case http.StatusUnauthorized:
		c.invalidate()
		return &AuthenticationError{Message: "token rejected by API"}
	case http.StatusForbidden:
		return &AuthenticationError{Message: "token lacks required permissions"}
	case http.StatusNotFound:
		return notFound
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return &ConflictError{Message: err.Error()}
	}
	return &APIError{Operation: op, StatusCode: status, Err: err}
}

func (c *Client) FetchFile(ctx context.Context, repo, path, ref string) ([]byte, string, error) {
	if err := c.checkRepo(repo); err != nil {
		return nil, "", err
	}
	if err := checkPath(path); err != nil {
		return nil, "", err
	}
	gh, err := c.getClient(ctx)
	if err != nil {
		return nil, "", err
	}
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, "", err
	}

	var content []byte
	var sha string
	err = c.withRetry(ctx, "fetch file", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		file, _, resp, apiErr := gh.Repositories.GetContents(callCtx, owner, name, path,
			&github.RepositoryContentGetOptions{Ref: ref})
		if apiErr != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				// Distinguish a missing file from a missing repository.
				if _, _, repoErr := gh.Repositories.Get(callCtx, owner, name); repoErr != nil {
					return &RepositoryNotFoundError{Repo: repo}
				}
				return &FileNotFoundError{Repo: repo, Path: path, Ref: ref}
			}
			return c.classify("fetch file", resp, apiErr, &FileNotFoundError{Repo: repo, Path: path, Ref: ref})
		}
		if file == nil {
			return &FileNotFoundError{Repo: repo, Path: path, Ref: ref}
		}
		decoded, decErr := file.GetContent()
		if decErr != nil {
			return fmt.Errorf("failed to decode file content: %w", decErr)
		}
		content = []byte(decoded)
		sha = file.GetSHA()
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return content, sha, nil
}

func (c *Client) ListFiles(ctx context.Context, repo, dir string) ([]string, error) {
	if err := c.checkRepo(repo); err != nil {
		return nil, err
	}
	if err := checkPath(dir); err != nil {
		return nil, err
	}
	gh, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = c.withRetry(ctx, "list files", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		_, entries, resp, apiErr := gh.Repositories.GetContents(callCtx, owner, name, dir, nil)
		if apiErr != nil {
			return c.classify("list files", resp, apiErr, &FileNotFoundError{Repo: repo, Path: dir})
		}
		paths = paths[:0]
		for _, entry := range entries {
			if entry.GetType() == "file" {
				paths = append(paths, entry.GetPath())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *Client) GetDefaultBranch(ctx context.Context, repo string) (string, error) {
	if err := c.checkRepo(repo); err != nil {
		return "", err
	}
	gh, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return "", err
	}

	var branch string
	err = c.withRetry(ctx, "get repository", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		r, resp, apiErr := gh.Repositories.Get(callCtx, owner, name)
		if apiErr != nil {
			return c.classify("get repository", resp, apiErr, &RepositoryNotFoundError{Repo: repo})
		}
		branch = r.GetDefaultBranch()
		return nil
	})
	if err != nil {
		return "", err
	}
	return branch, nil
}

func (c *Client) CreateBranch(ctx context.Context, repo, name, fromBranch string) error {
	if err := c.checkRepo(repo); err != nil {
		return err
	}
	gh, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	owner, repoName, err := ParseOwnerRepo(repo)
	if err != nil {
		return err
	}

	return c.withRetry(ctx, "create branch", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		base, resp, apiErr := gh.Git.GetRef(callCtx, owner, repoName, "refs/heads/"+fromBranch)
		if apiErr != nil {
			return c.classify("get base ref", resp, apiErr, &RepositoryNotFoundError{Repo: repo})
		}

		newRef := &github.Reference{
			Ref:    github.String("refs/heads/" + name),
			Object: &github.GitObject{SHA: base.Object.SHA},
		}
		_, resp, apiErr = gh.Git.CreateRef(callCtx, owner, repoName, newRef)
		if apiErr != nil {
			if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity &&
				strings.Contains(apiErr.Error(), "already exists") {
				return &BranchExistsError{Branch: name}
			}
			return c.classify("create branch", resp, apiErr, &RepositoryNotFoundError{Repo: repo})
		}
		logger.WithFields(log.Fields{"repo": repo, "branch": name}).Info("github: branch created")
		return nil
	})
}

func (c *Client) CommitFile(ctx context.Context, repo, branch, path, message string, content []byte) (string, error) {
	if err := c.checkRepo(repo); err != nil {
		return "", err
	}
	if err := checkPath(path); err != nil {
		return "", err
	}
	gh, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return "", err
	}

	var commitSHA string
	err = c.withRetry(ctx, "commit file", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		// Existing files need their current blob SHA for the update call.
		var blobSHA string
		existing, _, resp, apiErr := gh.Repositories.GetContents(callCtx, owner, name, path,
			&github.RepositoryContentGetOptions{Ref: branch})
		switch {
		case apiErr == nil && existing != nil:
			blobSHA = existing.GetSHA()
		case resp != nil && resp.StatusCode == http.StatusNotFound:
			// New file.
		case apiErr != nil:
			return c.classify("get file for commit", resp, apiErr, &FileNotFoundError{Repo: repo, Path: path, Ref: branch})
		}

		opts := &github.RepositoryContentFileOptions{
			Message: github.String(message),
			Content: content,
			Branch:  github.String(branch),
		}

		var result *github.RepositoryContentResponse
		if blobSHA != "" {
			opts.SHA = github.String(blobSHA)
			result, resp, apiErr = gh.Repositories.UpdateFile(callCtx, owner, name, path, opts)
		} else {
			result, resp, apiErr = gh.Repositories.CreateFile(callCtx, owner, name, path, opts)
		}
		if apiErr != nil {
			return c.classify("commit file", resp, apiErr, &RepositoryNotFoundError{Repo: repo})
		}
		commitSHA = result.Commit.GetSHA()
		return nil
	})
	if err != nil {
		return "", err
	}
	logger.WithFields(log.Fields{"repo": repo, "branch": branch, "sha": ShortSHA(commitSHA)}).Info("github: file committed")
	return commitSHA, nil
}

func (c *Client) CreatePullRequest(ctx context.Context, repo, head, base, title, body string) (*models.PullRequest, error) {
	if err := c.checkRepo(repo); err != nil {
		return nil, err
	}
	gh, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return nil, err
	}

	var pr *models.PullRequest
	err = c.withRetry(ctx, "create pull request", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		created, resp, apiErr := gh.PullRequests.Create(callCtx, owner, name, &github.NewPullRequest{
			Title: github.String(title),
			Head:  github.String(head),
			Base:  github.String(base),
			Body:  github.String(body),
		})
		if apiErr != nil {
			if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity &&
				strings.Contains(apiErr.Error(), "pull request already exists") {
				return &PullRequestExistsError{Head: head}
			}
			return c.classify("create pull request", resp, apiErr, &RepositoryNotFoundError{Repo: repo})
		}
		pr = &models.PullRequest{
			Number: created.GetNumber(),
			URL:    created.GetHTMLURL(),
			APIURL: created.GetURL(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"repo": repo, "pr": pr.Number}).Info("github: pull request opened")
	return pr, nil
}

func (c *Client) AddLabels(ctx context.Context, repo string, number int, labels []string) error {
	if err := c.checkRepo(repo); err != nil {
		return err
	}
	gh, err := c.getClient(ctx)
	if err != nil {
		return err
	}
	owner, name, err := ParseOwnerRepo(repo)
	if err != nil {
		return err
	}

	return c.withRetry(ctx, "add labels", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		for _, label := range labels {
			_, resp, apiErr := gh.Issues.GetLabel(callCtx, owner, name, label)
			if apiErr != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
				_, resp, apiErr = gh.Issues.CreateLabel(callCtx, owner, name, &github.Label{
					Name:  github.String(label),
					Color: github.String(LabelColor),
				})
			}
			if apiErr != nil {
				if _, limited := rateLimited(apiErr); limited {
					return apiErr
				}
				return &LabelNotFoundError{Label: label}
			}
		}

		_, resp, apiErr := gh.Issues.AddLabelsToIssue(callCtx, owner, name, number, labels)
		if apiErr != nil {
			return c.classify("add labels", resp, apiErr, &PullRequestNotFoundError{Repo: repo, Number: number})
		}
		return nil
	})
}

func (c *Client) RateLimit(ctx context.Context) (*models.RateLimitStatus, error) {
	gh, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	limits, resp, err := gh.RateLimit.Get(callCtx)
	if err != nil {
		return nil, c.classify("rate limit", resp, err, &APIError{Operation: "rate limit", StatusCode: http.StatusNotFound, Err: err})
	}
	core := limits.GetCore()
	if core == nil {
		return nil, &APIError{Operation: "rate limit", Err: fmt.Errorf("no core quota in response")}
	}
	return &models.RateLimitStatus{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}
