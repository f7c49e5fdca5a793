package spec

import (
	"strings"
	"testing"
)

func docFor(kind string, spec map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "actionspec/v1",
		"kind":       kind,
		"metadata":   map[string]interface{}{"name": "test-pod"},
		"spec":       spec,
	}
}

func issuePaths(issues []Issue) []string {
	paths := make([]string, len(issues))
	for i, issue := range issues {
		paths[i] = issue.Path
	}
	return paths
}

func hasIssue(issues []Issue, path, constraint string) bool {
	for _, issue := range issues {
		if issue.Path == path && issue.Constraint == constraint {
			return true
		}
	}
	return false
}

func TestSchema_KindBlockRules(t *testing.T) {
	tests := []struct {
		name           string
		kind           string
		spec           map[string]interface{}
		wantPath       string
		wantConstraint string
	}{
		{
			name:           "static site with compute",
			kind:           "StaticSite",
			spec:           map[string]interface{}{"compute": map[string]interface{}{"size": "small"}},
			wantPath:       "spec.compute",
			wantConstraint: "forbidden",
		},
		{
			name:           "web application without compute",
			kind:           "WebApplication",
			spec:           map[string]interface{}{},
			wantPath:       "spec.compute",
			wantConstraint: "required",
		},
		{
			name: "api service without data",
			kind: "APIService",
			spec: map[string]interface{}{
				"compute": map[string]interface{}{"size": "small"},
			},
			wantPath:       "spec.data",
			wantConstraint: "required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := SchemaV1.Validate(docFor(tt.kind, tt.spec))
			if !hasIssue(issues, tt.wantPath, tt.wantConstraint) {
				t.Errorf("Validate() issues = %v, want %s violation on %s",
					issuePaths(issues), tt.wantConstraint, tt.wantPath)
			}
		})
	}
}

func TestSchema_KindBlockRules_Satisfied(t *testing.T) {
	tests := []struct {
		name string
		kind string
		spec map[string]interface{}
	}{
		{
			name: "static site without compute",
			kind: "StaticSite",
			spec: map[string]interface{}{},
		},
		{
			name: "api service with compute and data",
			kind: "APIService",
			spec: map[string]interface{}{
				"compute": map[string]interface{}{"size": "small"},
				"data":    map[string]interface{}{"engine": "postgres"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if issues := SchemaV1.Validate(docFor(tt.kind, tt.spec)); len(issues) > 0 {
				t.Errorf("Validate() = %v, want no issues", issuePaths(issues))
			}
		})
	}
}

func TestSchema_WAFModeRequiredWhenEnabled(t *testing.T) {
	spec := map[string]interface{}{
		"security": map[string]interface{}{
			"waf": map[string]interface{}{"enabled": true},
		},
	}
	issues := SchemaV1.Validate(docFor("StaticSite", spec))
	if !hasIssue(issues, "spec.security.waf.mode", "required") {
		t.Errorf("Validate() = %v, want waf.mode required", issuePaths(issues))
	}

	// Disabled WAF does not need a mode.
	spec["security"].(map[string]interface{})["waf"].(map[string]interface{})["enabled"] = false
	if issues := SchemaV1.Validate(docFor("StaticSite", spec)); len(issues) > 0 {
		t.Errorf("Validate() = %v, want no issues for disabled waf", issuePaths(issues))
	}
}

func TestSchema_RangeBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		value interface{}
		valid bool
	}{
		{name: "scaling min at floor", path: "spec.compute.scaling.min", value: 0, valid: true},
		{name: "scaling min below floor", path: "spec.compute.scaling.min", value: -1, valid: false},
		{name: "scaling max at ceiling", path: "spec.compute.scaling.max", value: 100, valid: true},
		{name: "scaling max above ceiling", path: "spec.compute.scaling.max", value: 101, valid: false},
		{name: "retention at ceiling", path: "spec.data.backupRetention", value: 365, valid: true},
		{name: "retention above ceiling", path: "spec.data.backupRetention", value: 366, valid: false},
		{name: "shutdown hours at floor", path: "spec.governance.autoShutdown.afterHours", value: 1, valid: true},
		{name: "shutdown hours below floor", path: "spec.governance.autoShutdown.afterHours", value: 0, valid: false},
		{name: "shutdown hours at ceiling", path: "spec.governance.autoShutdown.afterHours", value: 168, valid: true},
		{name: "negative spend", path: "spec.governance.maxMonthlySpend", value: -5.0, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFor("StaticSite", map[string]interface{}{})
			setPath(doc, tt.path, tt.value)

			issues := SchemaV1.Validate(doc)
			var found bool
			for _, issue := range issues {
				if issue.Path == tt.path {
					found = true
				}
			}
			if tt.valid && found {
				t.Errorf("Validate() flagged %s=%v: %v", tt.path, tt.value, issuePaths(issues))
			}
			if !tt.valid && !found {
				t.Errorf("Validate() missed out-of-range %s=%v", tt.path, tt.value)
			}
		})
	}
}

func TestSchema_NamePattern(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{name: "simple", value: "web", valid: true},
		{name: "with hyphens", value: "my-app-01", valid: true},
		{name: "single char", value: "a", valid: true},
		{name: "max length", value: strings.Repeat("a", 50), valid: true},
		{name: "too long", value: strings.Repeat("a", 51), valid: false},
		{name: "uppercase", value: "MyApp", valid: false},
		{name: "underscore", value: "my_app", valid: false},
		{name: "leading hyphen", value: "-app", valid: false},
		{name: "trailing hyphen", value: "app-", valid: false},
		{name: "empty", value: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := docFor("StaticSite", map[string]interface{}{})
			doc["metadata"].(map[string]interface{})["name"] = tt.value

			issues := SchemaV1.Validate(doc)
			flagged := hasIssue(issues, "metadata.name", "pattern")
			if tt.valid && flagged {
				t.Errorf("Validate() rejected valid name %q", tt.value)
			}
			if !tt.valid && !flagged {
				t.Errorf("Validate() accepted invalid name %q", tt.value)
			}
		})
	}
}

func TestSchema_TypeMismatch(t *testing.T) {
	doc := docFor("StaticSite", map[string]interface{}{
		"network": map[string]interface{}{
			"publicAccess": "yes please",
			"subnets":      []interface{}{"subnet-a", 42},
		},
	})
	issues := SchemaV1.Validate(doc)
	if !hasIssue(issues, "spec.network.publicAccess", "type") {
		t.Errorf("Validate() = %v, want type violation on publicAccess", issuePaths(issues))
	}
	if !hasIssue(issues, "spec.network.subnets", "type") {
		t.Errorf("Validate() = %v, want type violation on mixed subnets list", issuePaths(issues))
	}
}

func TestSchema_EnumMessagesListAllowedValues(t *testing.T) {
	doc := docFor("StaticSite", map[string]interface{}{})
	doc["apiVersion"] = "actionspec/v9"

	issues := SchemaV1.Validate(doc)
	if len(issues) != 1 {
		t.Fatalf("Validate() = %v, want exactly one issue", issuePaths(issues))
	}
	if !strings.Contains(issues[0].Message, "expected one of") {
		t.Errorf("message %q should list allowed values", issues[0].Message)
	}
}

// setPath writes a value at a dotted path, creating intermediate maps.
func setPath(doc map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
