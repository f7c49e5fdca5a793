package github

import "fmt"

// AuthenticationError means the token was rejected or missing. The token
// value itself never appears in the message.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// RepositoryNotFoundError covers both a truly absent repository and one the
// token cannot see; the GitHub API does not distinguish them.
type RepositoryNotFoundError struct {
	Repo string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("repository %s not found or not accessible", e.Repo)
}

// RepositoryNotAllowedError means the repository failed the allow-list check.
// No network call was made.
type RepositoryNotAllowedError struct {
	Repo string
}

func (e *RepositoryNotAllowedError) Error() string {
	return fmt.Sprintf("repository %s is not on the allow-list", e.Repo)
}

// InvalidPathError means the file path failed the traversal check. No
// network call was made.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid file path: %s", e.Path)
}

// FileNotFoundError means the path does not exist at the requested ref.
type FileNotFoundError struct {
	Repo string
	Path string
	Ref  string
}

func (e *FileNotFoundError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("file %s not found in %s at %s", e.Path, e.Repo, e.Ref)
	}
	return fmt.Sprintf("file %s not found in %s", e.Path, e.Repo)
}

// BranchExistsError means the ref already exists.
type BranchExistsError struct {
	Branch string
}

func (e *BranchExistsError) Error() string {
	return fmt.Sprintf("branch %s already exists", e.Branch)
}

// PullRequestExistsError means an open PR already covers the head branch.
type PullRequestExistsError struct {
	Head string
}

func (e *PullRequestExistsError) Error() string {
	return fmt.Sprintf("a pull request already exists for %s", e.Head)
}

// PullRequestNotFoundError means the PR number does not exist.
type PullRequestNotFoundError struct {
	Repo   string
	Number int
}

func (e *PullRequestNotFoundError) Error() string {
	return fmt.Sprintf("pull request #%d not found in %s", e.Number, e.Repo)
}

// LabelNotFoundError means a label was absent and could not be created.
type LabelNotFoundError struct {
	Label string
}

func (e *LabelNotFoundError) Error() string {
	return fmt.Sprintf("label %s not found and could not be created", e.Label)
}

// ConflictError is any other 409/422 the API raised for a write.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Message)
}

// RateLimitError is returned after the retry budget is spent on rate-limit
// responses. RetryAfter is the seconds the API asked us to wait.
type RateLimitError struct {
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfter)
	}
	return "rate limit exceeded"
}

// APIError wraps anything the GitHub API returned that has no dedicated type.
type APIError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %v", e.Operation, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }
