package spec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/trakrf/action-spec-sub003/src/pkg/models"
)

// fieldType is the YAML scalar/collection type a field must decode to.
type fieldType int

const (
	typeString fieldType = iota
	typeBool
	typeInt
	typeNumber
	typeMapping
	typeStringList
)

func (t fieldType) String() string {
	switch t {
	case typeString:
		return "string"
	case typeBool:
		return "boolean"
	case typeInt:
		return "integer"
	case typeNumber:
		return "number"
	case typeMapping:
		return "mapping"
	case typeStringList:
		return "list of strings"
	}
	return "unknown"
}

// fieldRule constrains one dotted path. Rules only fire when the field is
// present unless Required is set.
type fieldRule struct {
	Path     string
	Type     fieldType
	Required bool
	Enum     []string
	Pattern  *regexp.Regexp
	Min      *float64
	Max      *float64
}

// kindRule lists which spec blocks a kind must or must not carry. New kinds
// are new table entries, not new code paths.
type kindRule struct {
	Required  []string
	Forbidden []string
}

// conditionalRule makes Then required whenever the boolean at If is true.
type conditionalRule struct {
	If   string
	Then string
}

// Schema is one versioned validation rule set.
type Schema struct {
	Version      string
	Kinds        map[string]kindRule
	Fields       []fieldRule
	Conditionals []conditionalRule
}

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,48}[a-z0-9])?$`)

func intRange(min, max float64) (*float64, *float64) { return &min, &max }

var sizeEnum = []string{models.SizeDemo, models.SizeSmall, models.SizeMedium, models.SizeLarge}

// SchemaV1 validates actionspec/v1 documents. Field order here fixes the
// order issues are reported in.
var SchemaV1 = &Schema{
	Version: models.APIVersion,
	Kinds: map[string]kindRule{
		models.KindStaticSite:     {Forbidden: []string{"compute"}},
		models.KindWebApplication: {Required: []string{"compute"}},
		models.KindAPIService:     {Required: []string{"compute", "data"}},
	},
	Fields: func() []fieldRule {
		scalingMin, scalingMax := intRange(0, 100)
		retentionMin, retentionMax := intRange(0, 365)
		shutdownMin, shutdownMax := intRange(1, 168)
		spendMin := 0.0
		return []fieldRule{
			{Path: "apiVersion", Type: typeString, Required: true, Enum: []string{models.APIVersion}},
			{Path: "kind", Type: typeString, Required: true, Enum: []string{models.KindStaticSite, models.KindWebApplication, models.KindAPIService}},
			{Path: "metadata", Type: typeMapping, Required: true},
			{Path: "metadata.name", Type: typeString, Required: true, Pattern: namePattern},
			{Path: "metadata.environment", Type: typeString, Pattern: namePattern},
			{Path: "metadata.owner", Type: typeString},
			{Path: "spec", Type: typeMapping, Required: true},
			{Path: "spec.compute", Type: typeMapping},
			{Path: "spec.compute.size", Type: typeString, Enum: sizeEnum},
			{Path: "spec.compute.scaling", Type: typeMapping},
			{Path: "spec.compute.scaling.min", Type: typeInt, Min: scalingMin, Max: scalingMax},
			{Path: "spec.compute.scaling.max", Type: typeInt, Min: scalingMin, Max: scalingMax},
			{Path: "spec.security", Type: typeMapping},
			{Path: "spec.security.waf", Type: typeMapping},
			{Path: "spec.security.waf.enabled", Type: typeBool},
			{Path: "spec.security.waf.mode", Type: typeString, Enum: []string{models.WAFModeMonitor, models.WAFModeBlock}},
			{Path: "spec.security.waf.rulesets", Type: typeStringList},
			{Path: "spec.security.encryption", Type: typeMapping},
			{Path: "spec.security.encryption.atRest", Type: typeBool},
			{Path: "spec.security.encryption.inTransit", Type: typeBool},
			{Path: "spec.data", Type: typeMapping},
			{Path: "spec.data.engine", Type: typeString, Enum: []string{models.EngineNone, models.EnginePostgres, models.EngineMySQL, models.EngineRedis}},
			{Path: "spec.data.size", Type: typeString, Enum: sizeEnum},
			{Path: "spec.data.highAvailability", Type: typeBool},
			{Path: "spec.data.backupRetention", Type: typeInt, Min: retentionMin, Max: retentionMax},
			{Path: "spec.network", Type: typeMapping},
			{Path: "spec.network.vpc", Type: typeString},
			{Path: "spec.network.publicAccess", Type: typeBool},
			{Path: "spec.network.subnets", Type: typeStringList},
			{Path: "spec.governance", Type: typeMapping},
			{Path: "spec.governance.autoShutdown", Type: typeMapping},
			{Path: "spec.governance.autoShutdown.enabled", Type: typeBool},
			{Path: "spec.governance.autoShutdown.afterHours", Type: typeInt, Min: shutdownMin, Max: shutdownMax},
			{Path: "spec.governance.maxMonthlySpend", Type: typeNumber, Min: &spendMin},
		}
	}(),
	Conditionals: []conditionalRule{
		{If: "spec.security.waf.enabled", Then: "spec.security.waf.mode"},
	},
}

// Validate runs the rule table against a decoded document and returns every
// issue found, in rule-declaration order. Unknown extra fields are ignored
// for forward compatibility.
func (s *Schema) Validate(doc map[string]interface{}) []Issue {
	var issues []Issue

	for _, rule := range s.Fields {
		value, present := lookupPath(doc, rule.Path)
		if !present {
			if rule.Required {
				issues = append(issues, Issue{
					Path:       rule.Path,
					Constraint: "required",
					Message:    fmt.Sprintf("Missing required field '%s'", rule.Path),
				})
			}
			continue
		}
		issues = append(issues, checkField(rule, value)...)
	}

	issues = append(issues, s.checkKindRules(doc)...)
	issues = append(issues, s.checkConditionals(doc)...)

	return issues
}

func (s *Schema) checkKindRules(doc map[string]interface{}) []Issue {
	kind, _ := lookupPath(doc, "kind")
	kindName, ok := kind.(string)
	if !ok {
		return nil
	}
	rule, ok := s.Kinds[kindName]
	if !ok {
		return nil
	}

	var issues []Issue
	for _, block := range rule.Required {
		path := "spec." + block
		if _, present := lookupPath(doc, path); !present {
			issues = append(issues, Issue{
				Path:       path,
				Constraint: "required",
				Message:    fmt.Sprintf("Missing required field '%s' (kind %s requires a %s block)", path, kindName, block),
			})
		}
	}
	for _, block := range rule.Forbidden {
		path := "spec." + block
		if _, present := lookupPath(doc, path); present {
			issues = append(issues, Issue{
				Path:       path,
				Constraint: "forbidden",
				Message:    fmt.Sprintf("Field '%s' is not allowed when kind is %s", path, kindName),
			})
		}
	}
	return issues
}

func (s *Schema) checkConditionals(doc map[string]interface{}) []Issue {
	var issues []Issue
	for _, cond := range s.Conditionals {
		flag, present := lookupPath(doc, cond.If)
		if !present {
			continue
		}
		enabled, ok := flag.(bool)
		if !ok || !enabled {
			continue
		}
		if _, present := lookupPath(doc, cond.Then); !present {
			issues = append(issues, Issue{
				Path:       cond.Then,
				Constraint: "required",
				Message:    fmt.Sprintf("Missing required field '%s' (required when %s is true)", cond.Then, cond.If),
			})
		}
	}
	return issues
}

func checkField(rule fieldRule, value interface{}) []Issue {
	actual, ok := coerce(rule.Type, value)
	if !ok {
		return []Issue{{
			Path:       rule.Path,
			Constraint: "type",
			Message:    fmt.Sprintf("Wrong type for '%s': got %s, expected %s", rule.Path, typeName(value), rule.Type),
		}}
	}

	var issues []Issue
	switch v := actual.(type) {
	case string:
		if len(rule.Enum) > 0 && !contains(rule.Enum, v) {
			issues = append(issues, Issue{
				Path:       rule.Path,
				Constraint: "enum",
				Allowed:    rule.Enum,
				Message:    fmt.Sprintf("Invalid value for '%s': got '%s', expected one of: %s", rule.Path, v, strings.Join(rule.Enum, ", ")),
			})
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(v) {
			issues = append(issues, Issue{
				Path:       rule.Path,
				Constraint: "pattern",
				Message:    fmt.Sprintf("Invalid format for '%s': got '%s', must match %s", rule.Path, v, rule.Pattern.String()),
			})
		}
	case float64:
		if rule.Min != nil && v < *rule.Min {
			issues = append(issues, Issue{
				Path:       rule.Path,
				Constraint: "minimum",
				Message:    fmt.Sprintf("Value out of range for '%s': got %v, minimum is %v", rule.Path, value, *rule.Min),
			})
		}
		if rule.Max != nil && v > *rule.Max {
			issues = append(issues, Issue{
				Path:       rule.Path,
				Constraint: "maximum",
				Message:    fmt.Sprintf("Value out of range for '%s': got %v, maximum is %v", rule.Path, value, *rule.Max),
			})
		}
	}
	return issues
}

// coerce checks value against the rule type and normalizes numerics to
// float64 for range checks and strings for enum/pattern checks.
func coerce(t fieldType, value interface{}) (interface{}, bool) {
	switch t {
	case typeString:
		s, ok := value.(string)
		return s, ok
	case typeBool:
		b, ok := value.(bool)
		return b, ok
	case typeInt:
		switch n := value.(type) {
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
		return nil, false
	case typeNumber:
		switch n := value.(type) {
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case float64:
			return n, true
		}
		return nil, false
	case typeMapping:
		m, ok := value.(map[string]interface{})
		return m, ok
	case typeStringList:
		list, ok := value.([]interface{})
		if !ok {
			return nil, false
		}
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return nil, false
			}
		}
		return list, true
	}
	return nil, false
}

func typeName(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float64:
		return "number"
	case map[string]interface{}:
		return "mapping"
	case []interface{}:
		return "list"
	}
	return fmt.Sprintf("%T", value)
}

func lookupPath(doc map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = doc
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
