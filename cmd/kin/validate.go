package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FROM TYPE TO",
		Short: "Check a relationship without storing it",
		Long: `Check whether FROM can be recorded as TYPE of TO.

Blocking errors make the command fail. Warnings are printed but do not.

Example:
  kin validate ann parent ben`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], args[1], args[2])
		},
	}
}

func runValidate(cmd *cobra.Command, fromID, relType, toID string) error {
	ctx := cmd.Context()

	return withRelationshipHandler(ctx, func(handler *handlers.RelationshipHandler) error {
		result, err := handler.HandleValidate(ctx, fromID, relType, toID)
		if err != nil {
			return fmt.Errorf("validating relationship: %w", err)
		}

		if result.OK() {
			fmt.Println("Relationship is valid.")
		} else {
			fmt.Println("Relationship is not valid:")
			for _, e := range result.Errors {
				fmt.Printf("  x %s\n", e)
			}
		}
		printWarnings(result.Warnings)

		if !result.OK() {
			return fmt.Errorf("%d validation error(s)", len(result.Errors))
		}
		return nil
	})
}
