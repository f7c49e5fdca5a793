package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trakrf/action-spec-sub003/src/pkg/applier"
	"github.com/trakrf/action-spec-sub003/src/pkg/config"
	"github.com/trakrf/action-spec-sub003/src/pkg/detect"
	"github.com/trakrf/action-spec-sub003/src/pkg/github"
	"github.com/trakrf/action-spec-sub003/src/pkg/policy"
	"github.com/trakrf/action-spec-sub003/src/pkg/secrets"
	"github.com/trakrf/action-spec-sub003/src/pkg/spec"
	"github.com/trakrf/action-spec-sub003/src/pkg/template"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "actionspec",
		Short: "Infrastructure spec change pipeline for GitOps repositories",
		Long: `actionspec validates ActionSpec documents, detects destructive changes
against the version already in the repository, and opens reviewable GitHub
pull requests for every change.`,
		Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (optional, env vars apply on top)")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newApplyCmd(&configPath))

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func newSecretProvider(ctx context.Context, cfg config.GitHubConfig) (secrets.Provider, error) {
	switch cfg.TokenSource {
	case config.TokenSourceSSM:
		return secrets.NewSSMProvider(ctx)
	default:
		return secrets.NewEnvProvider(), nil
	}
}

// buildApplier wires the full pipeline from configuration.
func buildApplier(ctx context.Context, cfg *config.Config) (*applier.Applier, github.RepoClient, spec.SpecParser, error) {
	provider, err := newSecretProvider(ctx, cfg.GitHub)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build secret provider: %w", err)
	}

	client := github.NewClient(github.Options{
		AllowedRepos: cfg.GitHub.AllowedRepos,
		TokenSecret:  cfg.GitHub.TokenSecret,
		BaseURL:      cfg.GitHub.BaseURL,
		Timeout:      cfg.GitHub.RequestTimeout,
	}, provider)

	parser := spec.NewParser()
	a := applier.New(
		parser,
		detect.NewDetector(),
		client,
		policy.NewGate(cfg.Policy),
		template.NewRenderer(""),
		cfg.Apply,
	)
	return a, client, parser, nil
}
