package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/trakrf/action-spec-sub003/src/pkg/applier"
	"github.com/trakrf/action-spec-sub003/src/pkg/spec"
	"github.com/trakrf/action-spec-sub003/src/pkg/trace"
)

// maxRequestBody bounds request JSON; the spec document inside is bounded
// again by the parser.
const maxRequestBody = 2 << 20

type applyRequest struct {
	Repository    string `json:"repository"`
	Path          string `json:"path"`
	NewSpecText   string `json:"new_spec_text"`
	CommitMessage string `json:"commit_message,omitempty"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

type applyResponse struct {
	Success    bool        `json:"success"`
	PRURL      string      `json:"pr_url,omitempty"`
	PRNumber   int         `json:"pr_number,omitempty"`
	BranchName string      `json:"branch_name,omitempty"`
	CommitSHA  string      `json:"commit_sha,omitempty"`
	Warnings   interface{} `json:"warnings"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "http.apply")
	defer span.End()

	var req applyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Repository == "" || req.Path == "" || req.NewSpecText == "" {
		writeErrorBody(w, http.StatusBadRequest, "bad_request",
			"repository, path, and new_spec_text are required", nil)
		return
	}

	result, err := s.applier.Apply(ctx, applier.Request{
		Repo:          req.Repository,
		Path:          req.Path,
		Content:       []byte(req.NewSpecText),
		CommitMessage: req.CommitMessage,
		DryRun:        req.DryRun,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, applyResponse{
		Success:    result.Success,
		PRURL:      result.PullRequest.URL,
		PRNumber:   result.PullRequest.Number,
		BranchName: result.BranchName,
		CommitSHA:  result.CommitSHA,
		Warnings:   result.Warnings,
	})
}

type validateRequest struct {
	Spec string `json:"spec"`
}

type validateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "http.validate")
	defer span.End()

	var req validateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Spec == "" {
		writeErrorBody(w, http.StatusBadRequest, "bad_request", "spec is required", nil)
		return
	}

	_, err := s.parser.ParseAndValidate([]byte(req.Spec))
	if err == nil {
		writeJSON(w, http.StatusOK, validateResponse{Valid: true, Errors: []string{}})
		return
	}

	var ve *spec.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Errors: ve.Messages()})
		return
	}
	var pe *spec.ParseError
	var se *spec.SecurityError
	if errors.As(err, &pe) || errors.As(err, &se) {
		writeJSON(w, http.StatusOK, validateResponse{Valid: false, Errors: []string{err.Error()}})
		return
	}
	writeError(w, err)
}

type specResponse struct {
	Repository string      `json:"repository"`
	Path       string      `json:"path"`
	Ref        string      `json:"ref,omitempty"`
	Spec       interface{} `json:"spec"`
}

func (s *Server) handleGetSpec(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "http.get_spec")
	defer span.End()

	repo := r.URL.Query().Get("repo")
	path := r.URL.Query().Get("path")
	ref := r.URL.Query().Get("ref")
	if repo == "" || path == "" {
		writeErrorBody(w, http.StatusBadRequest, "bad_request", "repo and path are required", nil)
		return
	}

	content, _, err := s.client.FetchFile(ctx, repo, path, ref)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.parser.ParseAndValidate(content); err != nil {
		writeError(w, err)
		return
	}

	// Round-trip through yaml so the response keeps the document's own
	// field names.
	var doc map[string]interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, specResponse{
		Repository: repo,
		Path:       path,
		Ref:        ref,
		Spec:       doc,
	})
}

type healthResponse struct {
	Status    string      `json:"status"`
	RateLimit interface{} `json:"rate_limit,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status, err := s.client.RateLimit(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", RateLimit: status})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "bad_request", "failed to read request body", nil)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeErrorBody(w, http.StatusBadRequest, "bad_request", "request body is not valid JSON", nil)
		return false
	}
	return true
}
