package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trakrf/action-spec-sub003/src/pkg/github"
	"github.com/trakrf/action-spec-sub003/src/pkg/policy"
	"github.com/trakrf/action-spec-sub003/src/pkg/spec"
)

type errorBody struct {
	Success bool         `json:"success"`
	Error   errorDetails `json:"error"`
}

type errorDetails struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	writeJSON(w, status, errorBody{
		Success: false,
		Error:   errorDetails{Code: code, Message: message, Details: details},
	})
}

// writeError maps pipeline errors onto the HTTP status contract: 400 for
// anything wrong with the submitted document, 404 for missing targets, 409
// for collisions, 422 for policy blocks, 502 for upstream trouble, 500
// otherwise.
func writeError(w http.ResponseWriter, err error) {
	var (
		parseErr    *spec.ParseError
		validateErr *spec.ValidationError
		secErr      *spec.SecurityError

		notAllowed  *github.RepositoryNotAllowedError
		badPath     *github.InvalidPathError
		repoMissing *github.RepositoryNotFoundError
		fileMissing *github.FileNotFoundError
		prMissing   *github.PullRequestNotFoundError
		branchDup   *github.BranchExistsError
		prDup       *github.PullRequestExistsError
		conflict    *github.ConflictError
		authErr     *github.AuthenticationError
		rateErr     *github.RateLimitError
		apiErr      *github.APIError

		blocked *policy.BlockedError
	)

	switch {
	case errors.As(err, &validateErr):
		writeErrorBody(w, http.StatusBadRequest, "validation_failed", "specification failed validation",
			map[string]interface{}{"issues": validateErr.Messages()})
	case errors.As(err, &parseErr):
		details := map[string]interface{}{}
		if parseErr.Line > 0 {
			details["line"] = parseErr.Line
		}
		writeErrorBody(w, http.StatusBadRequest, "parse_error", parseErr.Error(), details)
	case errors.As(err, &secErr):
		writeErrorBody(w, http.StatusBadRequest, "security_violation", secErr.Error(), nil)
	case errors.As(err, &notAllowed):
		writeErrorBody(w, http.StatusBadRequest, "repository_not_allowed", notAllowed.Error(), nil)
	case errors.As(err, &badPath):
		writeErrorBody(w, http.StatusBadRequest, "invalid_path", badPath.Error(), nil)

	case errors.As(err, &repoMissing):
		writeErrorBody(w, http.StatusNotFound, "repository_not_found", repoMissing.Error(), nil)
	case errors.As(err, &fileMissing):
		writeErrorBody(w, http.StatusNotFound, "file_not_found", fileMissing.Error(), nil)
	case errors.As(err, &prMissing):
		writeErrorBody(w, http.StatusNotFound, "pull_request_not_found", prMissing.Error(), nil)

	case errors.As(err, &branchDup):
		writeErrorBody(w, http.StatusConflict, "branch_exists", branchDup.Error(), nil)
	case errors.As(err, &prDup):
		writeErrorBody(w, http.StatusConflict, "pull_request_exists", prDup.Error(), nil)
	case errors.As(err, &conflict):
		writeErrorBody(w, http.StatusConflict, "conflict", conflict.Error(), nil)

	case errors.As(err, &blocked):
		writeErrorBody(w, http.StatusUnprocessableEntity, "policy_blocked", "change blocked by policy",
			map[string]interface{}{"violations": blocked.Violations})

	case errors.As(err, &authErr):
		writeErrorBody(w, http.StatusBadGateway, "authentication_failed", authErr.Error(), nil)
	case errors.As(err, &rateErr):
		writeErrorBody(w, http.StatusBadGateway, "rate_limited", rateErr.Error(),
			map[string]interface{}{"retry_after": rateErr.RetryAfter})
	case errors.As(err, &apiErr):
		writeErrorBody(w, http.StatusBadGateway, "upstream_error", "GitHub API request failed", nil)

	default:
		logger.WithError(err).Error("server: unhandled error")
		writeErrorBody(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
