package spec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/trakrf/action-spec-sub003/src/pkg/models"
)

var logger = log.WithField("package", "spec")

// MaxDocumentSize caps raw input before any parsing happens. Real
// specifications are a few KB; anything near the cap is hostile.
const MaxDocumentSize = 1 << 20

// SpecParser turns raw YAML into a validated Specification.
type SpecParser interface {
	ParseAndValidate(raw []byte) (*models.Specification, error)
}

// Parser is the default SpecParser backed by the v1 rule table.
type Parser struct {
	schema *Schema
}

var _ SpecParser = (*Parser)(nil)

func NewParser() *Parser {
	return &Parser{schema: SchemaV1}
}

// ParseAndValidate runs the full pipeline: hostile-input checks, YAML
// parsing, schema validation, then typed construction. Errors come out as
// *SecurityError, *ParseError, or *ValidationError; nothing else.
//
// Duplicate mapping keys resolve last-wins, and fields the schema does not
// know about are ignored so documents written for a newer minor revision
// still validate.
func (p *Parser) ParseAndValidate(raw []byte) (*models.Specification, error) {
	if len(raw) > MaxDocumentSize {
		return nil, &SecurityError{
			Message: fmt.Sprintf("document size %d exceeds limit %d", len(raw), MaxDocumentSize),
			Pattern: "oversized",
		}
	}
	if !utf8.Valid(raw) {
		return nil, &SecurityError{
			Message: "document is not valid UTF-8",
			Pattern: "encoding",
		}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, parseErrorFrom(err)
	}

	// An empty document (nothing, or comments only) validates as an empty
	// mapping so the caller sees the missing required fields rather than a
	// parse failure.
	doc := map[string]interface{}{}
	if root.Kind != 0 && len(root.Content) > 0 {
		body := root.Content[0]
		if err := checkTags(body); err != nil {
			return nil, err
		}

		value, err := nodeValue(body)
		if err != nil {
			return nil, err
		}
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, &ValidationError{Issues: []Issue{{
				Path:       "",
				Constraint: "type",
				Message:    fmt.Sprintf("Wrong type for document root: got %s, expected mapping", typeName(value)),
			}}}
		}
		doc = m
	}

	if issues := p.schema.Validate(doc); len(issues) > 0 {
		logger.WithField("issues", len(issues)).Debug("parser: document failed validation")
		return nil, &ValidationError{Issues: issues}
	}

	return buildSpecification(doc), nil
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// parseErrorFrom strips the "yaml:" prefix and pulls the line number out of
// the library's error text.
func parseErrorFrom(err error) *ParseError {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	line := 0
	if m := yamlLinePattern.FindStringSubmatch(msg); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return &ParseError{Message: msg, Line: line}
}

// Tags a plain infrastructure spec may legitimately carry. Anything else,
// custom local tags especially, is treated as a deserialization attack.
var allowedTags = map[string]bool{
	"!!map":       true,
	"!!seq":       true,
	"!!str":       true,
	"!!int":       true,
	"!!float":     true,
	"!!bool":      true,
	"!!null":      true,
	"!!timestamp": true,
	"!!merge":     true,
}

func checkTags(n *yaml.Node) error {
	if n.Kind == yaml.AliasNode {
		return nil
	}
	if n.Tag != "" && !allowedTags[n.Tag] {
		return &SecurityError{
			Message: fmt.Sprintf("disallowed YAML tag at line %d", n.Line),
			Pattern: n.Tag,
		}
	}
	for _, child := range n.Content {
		if err := checkTags(child); err != nil {
			return err
		}
	}
	return nil
}

// nodeValue converts a yaml.Node tree into plain Go values. Mappings are
// built by hand so duplicate keys resolve last-wins instead of erroring the
// way a direct Decode would.
func nodeValue(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			var key string
			if err := keyNode.Decode(&key); err != nil {
				return nil, &ParseError{
					Message: fmt.Sprintf("mapping key is not a string: %s", keyNode.Tag),
					Line:    keyNode.Line,
				}
			}
			val, err := nodeValue(valNode)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]interface{}, 0, len(n.Content))
		for _, child := range n.Content {
			val, err := nodeValue(child)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, &ParseError{Message: err.Error(), Line: n.Line}
		}
		return v, nil
	default:
		return nil, &ParseError{Message: fmt.Sprintf("unsupported node kind %d", n.Kind), Line: n.Line}
	}
}

// buildSpecification assumes the document already passed schema validation,
// so lookups here only distinguish present from absent.
func buildSpecification(doc map[string]interface{}) *models.Specification {
	s := &models.Specification{
		APIVersion: getString(doc, "apiVersion"),
		Kind:       getString(doc, "kind"),
	}

	if meta, ok := getMap(doc, "metadata"); ok {
		s.Metadata = models.Metadata{
			Name:        getString(meta, "name"),
			Environment: getString(meta, "environment"),
			Owner:       getString(meta, "owner"),
		}
	}

	podSpec, ok := getMap(doc, "spec")
	if !ok {
		return s
	}

	if compute, ok := getMap(podSpec, "compute"); ok {
		block := &models.ComputeBlock{Size: getString(compute, "size")}
		if scaling, ok := getMap(compute, "scaling"); ok {
			block.Scaling = &models.ScalingBlock{
				Min: getInt(scaling, "min"),
				Max: getInt(scaling, "max"),
			}
		}
		s.Spec.Compute = block
	}

	if security, ok := getMap(podSpec, "security"); ok {
		block := &models.SecurityBlock{}
		if waf, ok := getMap(security, "waf"); ok {
			block.WAF = &models.WAFBlock{
				Enabled:  getBool(waf, "enabled", false),
				Mode:     getString(waf, "mode"),
				Rulesets: getStringList(waf, "rulesets"),
			}
		}
		if enc, ok := getMap(security, "encryption"); ok {
			// Absent encryption fields mean "on".
			block.Encryption = &models.EncryptionBlock{
				AtRest:    getBool(enc, "atRest", true),
				InTransit: getBool(enc, "inTransit", true),
			}
		}
		s.Spec.Security = block
	}

	if data, ok := getMap(podSpec, "data"); ok {
		s.Spec.Data = &models.DataBlock{
			Engine:           getString(data, "engine"),
			Size:             getString(data, "size"),
			HighAvailability: getBool(data, "highAvailability", false),
			BackupRetention:  getInt(data, "backupRetention"),
		}
	}

	if network, ok := getMap(podSpec, "network"); ok {
		s.Spec.Network = &models.NetworkBlock{
			VPC:          getString(network, "vpc"),
			PublicAccess: getBool(network, "publicAccess", false),
			Subnets:      getStringList(network, "subnets"),
		}
	}

	if gov, ok := getMap(podSpec, "governance"); ok {
		block := &models.GovernanceBlock{
			MaxMonthlySpend: getFloat(gov, "maxMonthlySpend"),
		}
		if shutdown, ok := getMap(gov, "autoShutdown"); ok {
			block.AutoShutdown = &models.AutoShutdownBlock{
				Enabled:    getBool(shutdown, "enabled", false),
				AfterHours: getInt(shutdown, "afterHours"),
			}
		}
		s.Spec.Governance = block
	}

	return s
}

func getMap(m map[string]interface{}, key string) (map[string]interface{}, bool) {
	v, ok := m[key].(map[string]interface{})
	return v, ok
}

func getString(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func getBool(m map[string]interface{}, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func getInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func getStringList(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
