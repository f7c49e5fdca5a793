package models

// APIVersion is the only specification schema version this build understands.
const APIVersion = "actionspec/v1"

// Pod kinds. The kind decides which blocks are legal: a StaticSite carries no
// compute block, an APIService must carry a data block.
const (
	KindStaticSite     = "StaticSite"
	KindWebApplication = "WebApplication"
	KindAPIService     = "APIService"
)

// Size tiers, strictly ordered demo < small < medium < large.
const (
	SizeDemo   = "demo"
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

// SizeOrder maps a size tier to its position in the ordering. Unknown tiers
// map to zero so a malformed comparison never flags a downgrade.
var SizeOrder = map[string]int{
	SizeDemo:   0,
	SizeSmall:  1,
	SizeMedium: 2,
	SizeLarge:  3,
}

// WAF modes.
const (
	WAFModeMonitor = "monitor"
	WAFModeBlock   = "block"
)

// Data engines.
const (
	EngineNone     = "none"
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
	EngineRedis    = "redis"
)

// Specification is one validated infrastructure pod description. It is built
// fresh on every parse and never mutated afterwards; comparing two versions
// always means comparing two distinct values.
type Specification struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       PodSpec  `yaml:"spec"`
}

// Metadata identifies the pod.
type Metadata struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment,omitempty"`
	Owner       string `yaml:"owner,omitempty"`
}

// PodSpec holds the per-concern blocks. Optional blocks are pointers so an
// absent block is distinguishable from a zero-valued one.
type PodSpec struct {
	Compute    *ComputeBlock    `yaml:"compute,omitempty"`
	Security   *SecurityBlock   `yaml:"security,omitempty"`
	Data       *DataBlock       `yaml:"data,omitempty"`
	Network    *NetworkBlock    `yaml:"network,omitempty"`
	Governance *GovernanceBlock `yaml:"governance,omitempty"`
}

type ComputeBlock struct {
	Size    string        `yaml:"size"`
	Scaling *ScalingBlock `yaml:"scaling,omitempty"`
}

type ScalingBlock struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type SecurityBlock struct {
	WAF        *WAFBlock        `yaml:"waf,omitempty"`
	Encryption *EncryptionBlock `yaml:"encryption,omitempty"`
}

type WAFBlock struct {
	Enabled  bool     `yaml:"enabled"`
	Mode     string   `yaml:"mode,omitempty"`
	Rulesets []string `yaml:"rulesets,omitempty"`
}

// EncryptionBlock defaults to everything on; the parser fills absent fields
// with true so a missing block never reads as an encryption downgrade.
type EncryptionBlock struct {
	AtRest    bool `yaml:"atRest"`
	InTransit bool `yaml:"inTransit"`
}

type DataBlock struct {
	Engine           string `yaml:"engine"`
	Size             string `yaml:"size,omitempty"`
	HighAvailability bool   `yaml:"highAvailability"`
	BackupRetention  int    `yaml:"backupRetention"`
}

type NetworkBlock struct {
	VPC          string   `yaml:"vpc,omitempty"`
	PublicAccess bool     `yaml:"publicAccess"`
	Subnets      []string `yaml:"subnets,omitempty"`
}

type GovernanceBlock struct {
	AutoShutdown    *AutoShutdownBlock `yaml:"autoShutdown,omitempty"`
	MaxMonthlySpend float64            `yaml:"maxMonthlySpend,omitempty"`
}

type AutoShutdownBlock struct {
	Enabled    bool `yaml:"enabled"`
	AfterHours int  `yaml:"afterHours,omitempty"`
}
