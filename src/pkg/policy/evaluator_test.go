package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trakrf/action-spec-sub003/src/pkg/config"
	"github.com/trakrf/action-spec-sub003/src/pkg/models"
)

const denyCriticalRego = `package actionspec

deny[msg] {
	w := input.warnings[_]
	w.severity == "critical"
	msg := sprintf("critical change on %s is not allowed", [w.field_path])
}
`

const denyPublicRego = `package actionspec

deny[msg] {
	input.proposed.spec.network.publicAccess == true
	msg := "public access is not allowed in this environment"
}
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.rego")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func gateWith(policies map[string]*config.Policy) *OPAGate {
	return NewGate(config.PolicyConfig{Enabled: true, Policies: policies})
}

func sampleSpec(public bool) *models.Specification {
	return &models.Specification{
		APIVersion: models.APIVersion,
		Kind:       models.KindWebApplication,
		Metadata:   models.Metadata{Name: "web"},
		Spec: models.PodSpec{
			Compute: &models.ComputeBlock{Size: models.SizeSmall},
			Network: &models.NetworkBlock{PublicAccess: public},
		},
	}
}

func TestGate_Disabled(t *testing.T) {
	g := NewGate(config.PolicyConfig{Enabled: false})
	result, err := g.Evaluate(context.Background(), sampleSpec(false), sampleSpec(true), nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.ShouldBlock() {
		t.Error("disabled gate must not block")
	}
}

func TestGate_NoPoliciesPasses(t *testing.T) {
	g := NewGate(config.PolicyConfig{Enabled: true})
	result, err := g.Evaluate(context.Background(), sampleSpec(false), sampleSpec(true), nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.ShouldBlock() || result.TotalPolicies != 0 {
		t.Errorf("empty gate result = %+v, want pass-through", result)
	}
}

func TestGate_BlocksOnCriticalWarning(t *testing.T) {
	g := gateWith(map[string]*config.Policy{
		"no-critical": {
			Name:     "No critical changes",
			FilePath: writePolicy(t, denyCriticalRego),
			Level:    config.PolicyLevelBlock,
		},
	})

	warnings := []models.ChangeWarning{{
		Severity:  models.SeverityCritical,
		Message:   "Encryption at rest is being disabled",
		FieldPath: "spec.security.encryption.atRest",
		Category:  models.CategorySecurity,
	}}

	result, err := g.Evaluate(context.Background(), sampleSpec(false), sampleSpec(false), warnings)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.ShouldBlock() {
		t.Fatal("critical warning should block")
	}
	violations := result.BlockingViolations()
	if len(violations) != 1 || !strings.Contains(violations[0], "spec.security.encryption.atRest") {
		t.Errorf("violations = %v", violations)
	}
}

func TestGate_WarnLevelDoesNotBlock(t *testing.T) {
	g := gateWith(map[string]*config.Policy{
		"no-critical": {
			Name:     "No critical changes",
			FilePath: writePolicy(t, denyCriticalRego),
			Level:    config.PolicyLevelWarn,
		},
	})

	warnings := []models.ChangeWarning{{
		Severity:  models.SeverityCritical,
		FieldPath: "spec.data.engine",
		Category:  models.CategoryData,
	}}

	result, err := g.Evaluate(context.Background(), sampleSpec(false), sampleSpec(false), warnings)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.ShouldBlock() {
		t.Error("warn-level policy must not block")
	}
	if result.FailedPolicies != 1 {
		t.Errorf("FailedPolicies = %d, want 1", result.FailedPolicies)
	}
}

func TestGate_ProposedSpecVisibleToPolicy(t *testing.T) {
	g := gateWith(map[string]*config.Policy{
		"no-public": {
			Name:     "No public access",
			FilePath: writePolicy(t, denyPublicRego),
			Level:    config.PolicyLevelBlock,
		},
	})

	result, err := g.Evaluate(context.Background(), sampleSpec(false), sampleSpec(true), nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.ShouldBlock() {
		t.Error("policy should see proposed.spec.network.publicAccess")
	}

	result, err = g.Evaluate(context.Background(), sampleSpec(true), sampleSpec(false), nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.ShouldBlock() {
		t.Error("private proposed spec should pass")
	}
}

func TestGate_MissingPolicyFileBlocks(t *testing.T) {
	g := gateWith(map[string]*config.Policy{
		"gone": {
			Name:     "Missing policy",
			FilePath: "/nonexistent/policy.rego",
			Level:    config.PolicyLevelBlock,
		},
	})

	result, err := g.Evaluate(context.Background(), sampleSpec(false), sampleSpec(false), nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.ShouldBlock() {
		t.Error("errored block-level policy must block")
	}
	if result.ErroredPolicies != 1 {
		t.Errorf("ErroredPolicies = %d, want 1", result.ErroredPolicies)
	}
}

func TestSummarize(t *testing.T) {
	result := &EvaluationResult{
		TotalPolicies:  2,
		PassedPolicies: 1,
		FailedPolicies: 1,
		Results: []PolicyResult{
			{PolicyID: "a", PolicyName: "Passing", Level: config.PolicyLevelWarn, Status: StatusPass},
			{PolicyID: "b", PolicyName: "Failing", Level: config.PolicyLevelBlock, Status: StatusFail,
				Violations: []string{"nope"}},
		},
	}

	s := Summarize(result)
	if !strings.Contains(s, "2 total") || !strings.Contains(s, "Failing") || !strings.Contains(s, "nope") {
		t.Errorf("Summarize() = %q", s)
	}
	if strings.Contains(s, "Passing") {
		t.Errorf("Summarize() should omit passing policies: %q", s)
	}

	if Summarize(&EvaluationResult{}) != "" {
		t.Error("Summarize() of empty result should be empty")
	}
}
