package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/trakrf/action-spec-sub003/src/pkg/config"
	"github.com/trakrf/action-spec-sub003/src/pkg/models"
)

var logger = log.WithField("package", "policy")

const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusError = "ERROR"
)

// denyQuery is the rego entrypoint every policy module must populate.
const denyQuery = "data.actionspec.deny"

// PolicyResult is one policy's verdict on a proposed change.
type PolicyResult struct {
	PolicyID   string
	PolicyName string
	Level      string
	Status     string
	Violations []string
	Error      string
}

// EvaluationResult aggregates all policy verdicts for one apply request.
type EvaluationResult struct {
	TotalPolicies   int
	PassedPolicies  int
	FailedPolicies  int
	ErroredPolicies int
	Results         []PolicyResult
}

// ShouldBlock reports whether any failed policy is at block level. Errored
// block-level policies also block; a policy that cannot run must not wave
// changes through.
func (r *EvaluationResult) ShouldBlock() bool {
	for _, pr := range r.Results {
		if pr.Level != config.PolicyLevelBlock {
			continue
		}
		if pr.Status == StatusFail || pr.Status == StatusError {
			return true
		}
	}
	return false
}

// BlockingViolations returns the messages of every blocking failure.
func (r *EvaluationResult) BlockingViolations() []string {
	var out []string
	for _, pr := range r.Results {
		if pr.Level != config.PolicyLevelBlock {
			continue
		}
		if pr.Status == StatusFail {
			out = append(out, pr.Violations...)
		}
		if pr.Status == StatusError {
			out = append(out, fmt.Sprintf("%s: %s", pr.PolicyName, pr.Error))
		}
	}
	return out
}

// BlockedError means a block-level policy rejected the change. The change
// pipeline stops before any repository write.
type BlockedError struct {
	Violations []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("change blocked by policy: %d violation(s)", len(e.Violations))
}

// ChangeInput is what each rego module sees as input.
type ChangeInput struct {
	Previous interface{} `json:"previous"`
	Proposed interface{} `json:"proposed"`
	Warnings interface{} `json:"warnings"`
}

// Gate evaluates configured policies against a proposed change.
type Gate interface {
	Evaluate(ctx context.Context, previous, proposed *models.Specification, warnings []models.ChangeWarning) (*EvaluationResult, error)
}

// OPAGate runs each configured .rego module with the change as input and
// collects data.actionspec.deny. No policies configured means the gate
// passes everything.
type OPAGate struct {
	cfg config.PolicyConfig
}

var _ Gate = (*OPAGate)(nil)

func NewGate(cfg config.PolicyConfig) *OPAGate {
	return &OPAGate{cfg: cfg}
}

func (g *OPAGate) Evaluate(ctx context.Context, previous, proposed *models.Specification, warnings []models.ChangeWarning) (*EvaluationResult, error) {
	result := &EvaluationResult{
		TotalPolicies: len(g.cfg.Policies),
		Results:       make([]PolicyResult, 0, len(g.cfg.Policies)),
	}
	if !g.cfg.Enabled || len(g.cfg.Policies) == 0 {
		return result, nil
	}

	input, err := buildInput(previous, proposed, warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy input: %w", err)
	}

	for id, p := range g.cfg.Policies {
		pr := g.evaluatePolicy(ctx, id, p, input)
		result.Results = append(result.Results, pr)
		switch pr.Status {
		case StatusPass:
			result.PassedPolicies++
		case StatusFail:
			result.FailedPolicies++
		case StatusError:
			result.ErroredPolicies++
		}
	}

	logger.WithFields(log.Fields{
		"total":  result.TotalPolicies,
		"passed": result.PassedPolicies,
		"failed": result.FailedPolicies,
	}).Info("policy: evaluation done.")
	return result, nil
}

func (g *OPAGate) evaluatePolicy(ctx context.Context, id string, p *config.Policy, input ChangeInput) PolicyResult {
	pr := PolicyResult{
		PolicyID:   id,
		PolicyName: p.Name,
		Level:      p.Level,
		Status:     StatusPass,
	}

	module, err := os.ReadFile(p.FilePath)
	if err != nil {
		pr.Status = StatusError
		pr.Error = fmt.Sprintf("failed to read policy file: %v", err)
		return pr
	}

	query, err := rego.New(
		rego.Query(denyQuery),
		rego.Module(p.FilePath, string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		pr.Status = StatusError
		pr.Error = fmt.Sprintf("failed to prepare policy: %v", err)
		return pr
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		pr.Status = StatusError
		pr.Error = fmt.Sprintf("policy evaluation failed: %v", err)
		return pr
	}

	if len(results) > 0 && len(results[0].Expressions) > 0 {
		if denySet, ok := results[0].Expressions[0].Value.([]interface{}); ok {
			for _, v := range denySet {
				if msg, ok := v.(string); ok {
					pr.Violations = append(pr.Violations, msg)
				}
			}
		}
	}
	if len(pr.Violations) > 0 {
		pr.Status = StatusFail
	}
	return pr
}

// buildInput converts the typed values into the plain maps rego expects,
// keeping the YAML field names the documents were written with.
func buildInput(previous, proposed *models.Specification, warnings []models.ChangeWarning) (ChangeInput, error) {
	prev, err := specAsMap(previous)
	if err != nil {
		return ChangeInput{}, err
	}
	next, err := specAsMap(proposed)
	if err != nil {
		return ChangeInput{}, err
	}

	raw, err := json.Marshal(warnings)
	if err != nil {
		return ChangeInput{}, err
	}
	var warnList []interface{}
	if err := json.Unmarshal(raw, &warnList); err != nil {
		return ChangeInput{}, err
	}
	if warnList == nil {
		warnList = []interface{}{}
	}

	return ChangeInput{Previous: prev, Proposed: next, Warnings: warnList}, nil
}

func specAsMap(s *models.Specification) (map[string]interface{}, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
