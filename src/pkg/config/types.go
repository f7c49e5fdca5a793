package config

import "time"

// Config is the full application configuration, loaded from a YAML file and
// overridable through ACTIONSPEC_* environment variables.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Apply   ApplyConfig   `mapstructure:"apply"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Logging LoggingConfig `mapstructure:"logging"`
	Trace   TraceConfig   `mapstructure:"trace"`
}

// ServerConfig configures the HTTP entrypoint.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listenAddr"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// GitHubConfig configures repository access.
type GitHubConfig struct {
	// AllowedRepos is the exact-match "owner/name" allow-list.
	AllowedRepos []string `mapstructure:"allowedRepos"`
	// TokenSource is "env" or "ssm".
	TokenSource string `mapstructure:"tokenSource"`
	// TokenSecret is the env var name or SSM parameter the token lives under.
	TokenSecret string `mapstructure:"tokenSecret"`
	// BaseURL overrides the API endpoint for GitHub Enterprise.
	BaseURL string `mapstructure:"baseURL"`
	// RequestTimeout bounds each API call.
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

// ApplyConfig configures the change pipeline.
type ApplyConfig struct {
	// BranchPrefix is prepended to generated branch names.
	BranchPrefix string `mapstructure:"branchPrefix"`
	// BaseBranch is the PR target. Empty means the repository default.
	BaseBranch string `mapstructure:"baseBranch"`
	// Labels are attached to every opened PR.
	Labels []string `mapstructure:"labels"`
}

// PolicyConfig configures the optional policy gate over detected changes.
type PolicyConfig struct {
	// Enabled turns the gate on. With no policies configured the gate
	// always passes.
	Enabled  bool               `mapstructure:"enabled"`
	Policies map[string]*Policy `mapstructure:"policies"`
}

// Policy is one rego policy evaluated against a proposed change.
type Policy struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	// FilePath points at the .rego module.
	FilePath string `mapstructure:"filePath"`
	// Level is "warn" or "block".
	Level string `mapstructure:"level"`
}

// Policy levels.
const (
	PolicyLevelWarn  = "warn"
	PolicyLevelBlock = "block"
)

// Token sources.
const (
	TokenSourceEnv = "env"
	TokenSourceSSM = "ssm"
)

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// TraceConfig configures the pipeline tracer.
type TraceConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ReportPath receives the JSON timing report on shutdown. Empty
	// disables the report.
	ReportPath string `mapstructure:"reportPath"`
}
