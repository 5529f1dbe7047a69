package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

func newRelateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relate CURRENT ROLE OTHER",
		Short: "Record how two members are related",
		Long: `Record that OTHER holds ROLE relative to CURRENT.

ROLE is one of parent, child, spouse or sibling. The reciprocal edge is
written automatically, so "kin relate ben parent ann" stores both
"Ann is parent of Ben" and "Ben is child of Ann".

Examples:
  kin relate ben parent ann
  kin relate ann spouse bob
  kin relate delete REL-ID`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelate(cmd, args[0], args[1], args[2])
		},
	}

	cmd.AddCommand(newRelateDeleteCmd())

	return cmd
}

func runRelate(cmd *cobra.Command, currentID, role, otherID string) error {
	ctx := cmd.Context()

	return withRelationshipHandler(ctx, func(handler *handlers.RelationshipHandler) error {
		result, err := handler.HandleRelate(ctx, currentID, role, otherID)
		if err != nil {
			return fmt.Errorf("relating members: %w", err)
		}

		fmt.Println(result.Message)
		fmt.Printf("  relationship: %s\n", result.RelationshipID)
		if result.ReciprocalID != "" {
			fmt.Printf("  reciprocal:   %s\n", result.ReciprocalID)
		}
		printWarnings(result.Warnings)

		return nil
	})
}

func newRelateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete REL-ID",
		Short: "Delete a relationship and its reciprocal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelateDelete(cmd, args[0])
		},
	}
}

func runRelateDelete(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()

	return withRelationshipHandler(ctx, func(handler *handlers.RelationshipHandler) error {
		result, err := handler.HandleDelete(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting relationship: %w", err)
		}

		fmt.Printf("Deleted %d relationship edge(s)\n", len(result.DeletedIDs))
		for _, deleted := range result.DeletedIDs {
			fmt.Printf("  %s\n", deleted)
		}
		return nil
	})
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Warnings:")
	for _, w := range warnings {
		fmt.Printf("  ! %s\n", w)
	}
}
