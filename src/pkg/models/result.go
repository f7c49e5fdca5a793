package models

import "time"

// PullRequest is the reference returned after opening a PR.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	APIURL string `json:"api_url"`
}

// RateLimitStatus is a snapshot of the API quota, exposed by the health
// endpoint.
type RateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// ApplyResult is the outcome of one successful apply attempt. Failures are
// returned as typed errors, not as a result with Success=false; the HTTP
// boundary translates both into its JSON shape.
type ApplyResult struct {
	Success     bool            `json:"success"`
	PullRequest PullRequest     `json:"pull_request"`
	BranchName  string          `json:"branch_name"`
	CommitSHA   string          `json:"commit_sha"`
	Warnings    []ChangeWarning `json:"warnings"`
}
