package spec

import (
	"fmt"
	"strings"
)

// ParseError means the document is not well-formed YAML.
type ParseError struct {
	Message string
	Line    int // 1-based, 0 when unknown
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// SecurityError means the document tripped a hostile-input check (oversized,
// bad encoding, or a disallowed YAML construct). It is never downgraded to a
// plain validation failure.
type SecurityError struct {
	Message string
	Pattern string // what was detected, e.g. "oversized" or the offending tag
}

func (e *SecurityError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("security violation: %s (detected: %s)", e.Message, e.Pattern)
	}
	return fmt.Sprintf("security violation: %s", e.Message)
}

// Issue is a single schema violation with enough context to fix the document
// without re-reading the schema.
type Issue struct {
	Path       string   `json:"path"`
	Constraint string   `json:"constraint"`
	Allowed    []string `json:"allowed,omitempty"`
	Message    string   `json:"message"`
}

func (i Issue) String() string { return i.Message }

// ValidationError means the document parsed but violates the schema. It
// carries every issue found, not just the first.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "validation failed: " + e.Issues[0].Message
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("validation failed (%d issues): %s", len(e.Issues), strings.Join(msgs, "; "))
}

// Messages returns the issue messages in order, for JSON error bodies.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return msgs
}
