package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trakrf/action-spec-sub003/src/pkg/applier"
)

func newApplyCmd(configPath *string) *cobra.Command {
	var (
		repo    string
		path    string
		file    string
		message string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a spec change as a pull request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			a, _, _, err := buildApplier(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			fmt.Printf("🔍 Applying %s to %s:%s\n", file, repo, path)
			result, err := a.Apply(cmd.Context(), applier.Request{
				Repo:          repo,
				Path:          path,
				Content:       content,
				CommitMessage: message,
				DryRun:        dryRun,
			})
			if err != nil {
				return err
			}

			for _, w := range result.Warnings {
				fmt.Printf("   ⚠️  [%s/%s] %s (%s)\n", w.Severity, w.Category, w.Message, w.FieldPath)
			}
			if dryRun {
				fmt.Printf("✅ Dry run complete, %d warnings\n", len(result.Warnings))
				return nil
			}

			fmt.Printf("✅ Pull request opened: %s (branch %s)\n", result.PullRequest.URL, result.BranchName)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Target repository (owner/name) (required)")
	cmd.Flags().StringVar(&path, "path", "", "Spec file path inside the repository (required)")
	cmd.Flags().StringVar(&file, "file", "", "Local file with the proposed spec (required)")
	cmd.Flags().StringVar(&message, "message", "", "Commit message override")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and diff without writing to the repository")

	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
