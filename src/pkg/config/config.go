package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Loader reads and validates application configuration.
type Loader interface {
	Load(path string) (*Config, error)
}

type ViperLoader struct{}

var _ Loader = (*ViperLoader)(nil)

func NewLoader() *ViperLoader {
	return &ViperLoader{}
}

// Load reads the config file at path, applies defaults and ACTIONSPEC_*
// environment overrides, and validates the result. An empty path loads
// defaults and environment only.
func (l *ViperLoader) Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ACTIONSPEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("github.tokenSource", TokenSourceEnv)
	v.SetDefault("github.tokenSecret", "GITHUB_TOKEN")
	v.SetDefault("github.requestTimeout", 30*time.Second)

	v.SetDefault("apply.branchPrefix", "action-spec-update")
	v.SetDefault("apply.labels", []string{"infrastructure-change", "automated"})

	v.SetDefault("policy.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("trace.enabled", false)
}

// Validate checks cross-field constraints the type system cannot express.
func Validate(cfg *Config) error {
	switch cfg.GitHub.TokenSource {
	case TokenSourceEnv, TokenSourceSSM:
	default:
		return fmt.Errorf("github.tokenSource must be %q or %q, got %q",
			TokenSourceEnv, TokenSourceSSM, cfg.GitHub.TokenSource)
	}
	if cfg.GitHub.TokenSecret == "" {
		return fmt.Errorf("github.tokenSecret is required")
	}
	if cfg.Apply.BranchPrefix == "" {
		return fmt.Errorf("apply.branchPrefix is required")
	}

	for id, p := range cfg.Policy.Policies {
		if p.Name == "" {
			return fmt.Errorf("policy %s: name is required", id)
		}
		if p.FilePath == "" {
			return fmt.Errorf("policy %s: filePath is required", id)
		}
		switch p.Level {
		case PolicyLevelWarn, PolicyLevelBlock:
		default:
			return fmt.Errorf("policy %s: level must be %q or %q, got %q",
				id, PolicyLevelWarn, PolicyLevelBlock, p.Level)
		}
	}
	return nil
}
