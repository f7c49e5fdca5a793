package models

// Severity of a detected change, ordered info < warning < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// Rank returns the ordering position of the severity; unknown values rank
// lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// Change categories, in the fixed order the detector runs them.
type Category string

const (
	CategorySecurity   Category = "security"
	CategoryCompute    Category = "compute"
	CategoryData       Category = "data"
	CategoryNetwork    Category = "network"
	CategoryGovernance Category = "governance"
)

// ChangeWarning is one detected risk between two specification versions.
// Severity is assigned by the detector's fixed rules, never by callers.
type ChangeWarning struct {
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	FieldPath string   `json:"field_path"`
	Category  Category `json:"category"`
}
