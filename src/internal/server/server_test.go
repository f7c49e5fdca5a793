package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/trakrf/action-spec-sub003/src/pkg/applier"
	"github.com/trakrf/action-spec-sub003/src/pkg/config"
	"github.com/trakrf/action-spec-sub003/src/pkg/detect"
	"github.com/trakrf/action-spec-sub003/src/pkg/github"
	"github.com/trakrf/action-spec-sub003/src/pkg/models"
	"github.com/trakrf/action-spec-sub003/src/pkg/policy"
	"github.com/trakrf/action-spec-sub003/src/pkg/spec"
	"github.com/trakrf/action-spec-sub003/src/pkg/template"
)

const previousDoc = `apiVersion: actionspec/v1
kind: WebApplication
metadata:
  name: checkout-service
spec:
  compute:
    size: medium
  security:
    encryption:
      atRest: true
      inTransit: true
`

const proposedDoc = `apiVersion: actionspec/v1
kind: WebApplication
metadata:
  name: checkout-service
spec:
  compute:
    size: medium
  security:
    encryption:
      atRest: false
      inTransit: true
`

type fakeClient struct {
	files     map[string][]byte
	fetchErr  error
	branchErr error
	prErr     error
	rateErr   error
}

func (f *fakeClient) FetchFile(_ context.Context, _, path, _ string) ([]byte, string, error) {
	if f.fetchErr != nil {
		return nil, "", f.fetchErr
	}
	content, ok := f.files[path]
	if !ok {
		return nil, "", &github.FileNotFoundError{Repo: "acme/infra", Path: path}
	}
	return content, "blob-sha", nil
}

func (f *fakeClient) ListFiles(_ context.Context, _, _ string) ([]string, error) { return nil, nil }

func (f *fakeClient) GetDefaultBranch(_ context.Context, _ string) (string, error) {
	return "main", nil
}

func (f *fakeClient) CreateBranch(_ context.Context, _, _, _ string) error { return f.branchErr }

func (f *fakeClient) CommitFile(_ context.Context, _, _, _, _ string, _ []byte) (string, error) {
	return "commit-sha", nil
}

func (f *fakeClient) CreatePullRequest(_ context.Context, _, _, _, _, _ string) (*models.PullRequest, error) {
	if f.prErr != nil {
		return nil, f.prErr
	}
	return &models.PullRequest{Number: 12, URL: "https://github.com/acme/infra/pull/12"}, nil
}

func (f *fakeClient) AddLabels(_ context.Context, _ string, _ int, _ []string) error { return nil }

func (f *fakeClient) RateLimit(_ context.Context) (*models.RateLimitStatus, error) {
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	return &models.RateLimitStatus{Limit: 5000, Remaining: 4200}, nil
}

var _ github.RepoClient = (*fakeClient)(nil)

func newTestServer(client *fakeClient, gate policy.Gate) *Server {
	parser := spec.NewParser()
	a := applier.New(parser, detect.NewDetector(), client, gate, template.NewRenderer(""),
		config.ApplyConfig{BranchPrefix: "action-spec-update", Labels: []string{"automated"}})
	return New(a, parser, client, config.ServerConfig{})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestHandleApply_Success(t *testing.T) {
	s := newTestServer(&fakeClient{files: map[string][]byte{
		"specs/checkout-service.yaml": []byte(previousDoc),
	}}, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/specs/apply", applyRequest{
		Repository:  "acme/infra",
		Path:        "specs/checkout-service.yaml",
		NewSpecText: proposedDoc,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeResponse(t, rec)
	if body["success"] != true {
		t.Error("success != true")
	}
	if body["pr_url"] != "https://github.com/acme/infra/pull/12" {
		t.Errorf("pr_url = %v", body["pr_url"])
	}
	if body["pr_number"] != float64(12) {
		t.Errorf("pr_number = %v", body["pr_number"])
	}
	warnings, ok := body["warnings"].([]interface{})
	if !ok || len(warnings) != 1 {
		t.Fatalf("warnings = %v, want the encryption downgrade", body["warnings"])
	}
	w := warnings[0].(map[string]interface{})
	if w["severity"] != "critical" || w["field_path"] != "spec.security.encryption.atRest" {
		t.Errorf("warning = %v", w)
	}
}

func TestHandleApply_ValidationFailure(t *testing.T) {
	s := newTestServer(&fakeClient{files: map[string][]byte{}}, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/specs/apply", applyRequest{
		Repository:  "acme/infra",
		Path:        "specs/bad.yaml",
		NewSpecText: "apiVersion: bogus/v2\nkind: Nonsense\n",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeResponse(t, rec)
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "validation_failed" {
		t.Errorf("code = %v", errObj["code"])
	}
	issues := errObj["details"].(map[string]interface{})["issues"].([]interface{})
	if len(issues) == 0 {
		t.Error("no issues in details")
	}
}

func TestHandleApply_MissingFields(t *testing.T) {
	s := newTestServer(&fakeClient{}, nil)
	rec := doJSON(t, s, http.MethodPost, "/api/specs/apply", applyRequest{Repository: "acme/infra"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleApply_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		client     *fakeClient
		wantStatus int
		wantCode   string
	}{
		{
			name:       "repository not allowed",
			client:     &fakeClient{fetchErr: &github.RepositoryNotAllowedError{Repo: "acme/infra"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "repository_not_allowed",
		},
		{
			name:       "repository missing",
			client:     &fakeClient{fetchErr: &github.RepositoryNotFoundError{Repo: "acme/infra"}},
			wantStatus: http.StatusNotFound,
			wantCode:   "repository_not_found",
		},
		{
			name:       "branch collision persists",
			client:     &fakeClient{files: map[string][]byte{}, branchErr: &github.BranchExistsError{Branch: "b"}},
			wantStatus: http.StatusConflict,
			wantCode:   "branch_exists",
		},
		{
			name:       "pull request exists",
			client:     &fakeClient{files: map[string][]byte{}, prErr: &github.PullRequestExistsError{Head: "b"}},
			wantStatus: http.StatusConflict,
			wantCode:   "pull_request_exists",
		},
		{
			name:       "authentication failure",
			client:     &fakeClient{fetchErr: &github.AuthenticationError{Message: "token rejected by API"}},
			wantStatus: http.StatusBadGateway,
			wantCode:   "authentication_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.client, nil)
			rec := doJSON(t, s, http.MethodPost, "/api/specs/apply", applyRequest{
				Repository:  "acme/infra",
				Path:        "specs/checkout-service.yaml",
				NewSpecText: proposedDoc,
			})
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decodeResponse(t, rec)
			errObj := body["error"].(map[string]interface{})
			if errObj["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", errObj["code"], tt.wantCode)
			}
		})
	}
}

func TestHandleApply_RateLimitCarriesRetryAfter(t *testing.T) {
	s := newTestServer(&fakeClient{fetchErr: &github.RateLimitError{RetryAfter: 30}}, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/specs/apply", applyRequest{
		Repository:  "acme/infra",
		Path:        "specs/checkout-service.yaml",
		NewSpecText: proposedDoc,
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := decodeResponse(t, rec)
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "rate_limited" {
		t.Errorf("code = %v", errObj["code"])
	}
	retryAfter := errObj["details"].(map[string]interface{})["retry_after"]
	if retryAfter != float64(30) {
		t.Errorf("retry_after = %v, want 30", retryAfter)
	}
}

func TestHandleApply_PolicyBlocked(t *testing.T) {
	dir := t.TempDir()
	rego := `package actionspec

deny[msg] {
	w := input.warnings[_]
	w.severity == "critical"
	msg := "critical changes are blocked"
}
`
	regoPath := filepath.Join(dir, "no_critical.rego")
	if err := os.WriteFile(regoPath, []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}
	gate := policy.NewGate(config.PolicyConfig{
		Enabled: true,
		Policies: map[string]*config.Policy{
			"no-critical": {Name: "No critical changes", FilePath: regoPath, Level: config.PolicyLevelBlock},
		},
	})

	s := newTestServer(&fakeClient{files: map[string][]byte{
		"specs/checkout-service.yaml": []byte(previousDoc),
	}}, gate)

	rec := doJSON(t, s, http.MethodPost, "/api/specs/apply", applyRequest{
		Repository:  "acme/infra",
		Path:        "specs/checkout-service.yaml",
		NewSpecText: proposedDoc,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	body := decodeResponse(t, rec)
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "policy_blocked" {
		t.Errorf("code = %v", errObj["code"])
	}
}

func TestHandleValidate(t *testing.T) {
	s := newTestServer(&fakeClient{}, nil)

	t.Run("valid document", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/specs/validate", validateRequest{Spec: proposedDoc})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := decodeResponse(t, rec)
		if body["valid"] != true {
			t.Errorf("valid = %v", body["valid"])
		}
	})

	t.Run("invalid document", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/specs/validate", validateRequest{
			Spec: "apiVersion: actionspec/v1\nkind: StaticSite\nmetadata:\n  name: Bad_Name\nspec: {}\n",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := decodeResponse(t, rec)
		if body["valid"] != false {
			t.Errorf("valid = %v", body["valid"])
		}
		if errs := body["errors"].([]interface{}); len(errs) == 0 {
			t.Error("errors is empty")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodPost, "/api/specs/validate", validateRequest{Spec: "a: [unclosed"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := decodeResponse(t, rec)
		if body["valid"] != false {
			t.Errorf("valid = %v", body["valid"])
		}
	})

	t.Run("bad json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/specs/validate", bytes.NewBufferString("{nope"))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleGetSpec(t *testing.T) {
	s := newTestServer(&fakeClient{files: map[string][]byte{
		"specs/checkout-service.yaml": []byte(previousDoc),
	}}, nil)

	t.Run("found", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/specs?repo=acme/infra&path=specs/checkout-service.yaml", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		body := decodeResponse(t, rec)
		specDoc := body["spec"].(map[string]interface{})
		if specDoc["kind"] != "WebApplication" {
			t.Errorf("spec.kind = %v", specDoc["kind"])
		}
	})

	t.Run("missing file", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/specs?repo=acme/infra&path=specs/nope.yaml", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("missing params", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/api/specs", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleHealthz(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(&fakeClient{}, nil)
		rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		body := decodeResponse(t, rec)
		if body["status"] != "ok" {
			t.Errorf("status = %v", body["status"])
		}
		rate := body["rate_limit"].(map[string]interface{})
		if rate["remaining"] != float64(4200) {
			t.Errorf("remaining = %v", rate["remaining"])
		}
	})

	t.Run("degraded", func(t *testing.T) {
		s := newTestServer(&fakeClient{rateErr: &github.AuthenticationError{Message: "token rejected"}}, nil)
		rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
	})
}
