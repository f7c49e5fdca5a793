package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trakrf/action-spec-sub003/src/pkg/spec"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a local ActionSpec document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			parsed, err := spec.NewParser().ParseAndValidate(raw)
			if err != nil {
				var ve *spec.ValidationError
				if errors.As(err, &ve) {
					fmt.Printf("❌ %s is invalid:\n", args[0])
					for _, msg := range ve.Messages() {
						fmt.Printf("   - %s\n", msg)
					}
					return fmt.Errorf("%d validation issues", len(ve.Issues))
				}
				return err
			}

			fmt.Printf("✅ %s is a valid %s spec for %q\n", args[0], parsed.Kind, parsed.Metadata.Name)
			return nil
		},
	}
}
