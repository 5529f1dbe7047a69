package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/kinship"
)

type suggestFlags struct {
	apply         bool
	minConfidence float64
	limit         int
}

func newSuggestCmd() *cobra.Command {
	var flags suggestFlags

	cmd := &cobra.Command{
		Use:   "suggest PERSON-ID",
		Short: "Suggest likely relatives for a member",
		Long: `Suggest relatives inferred from shared parents, shared children,
birth years and birth places. Suggestions are never stored unless --apply
is given, in which case those at or above --min-confidence are written.

Examples:
  kin suggest ben
  kin suggest ben --limit 10
  kin suggest ben --apply --min-confidence 0.85`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(cmd, args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.apply, "apply", false, "Store suggestions at or above --min-confidence")
	cmd.Flags().Float64Var(&flags.minConfidence, "min-confidence", 0, "Minimum confidence (default: configured value, or 0.8 with --apply)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Maximum number of suggestions (default: configured value)")

	return cmd
}

func runSuggest(cmd *cobra.Command, personID string, flags suggestFlags) error {
	ctx := cmd.Context()

	if flags.minConfidence < 0 || flags.minConfidence > 1 {
		return errors.New("--min-confidence must be between 0 and 1")
	}

	return withDeps(ctx, func(d *Deps) error {
		if flags.apply {
			return applySuggestions(cmd, d.SuggestionHandler, personID, flags)
		}

		result, err := d.SuggestionHandler.HandleSuggest(ctx, personID, handlers.SuggestOptions{
			MinConfidence: flags.minConfidence,
			Limit:         flags.limit,
		})
		if err != nil {
			return fmt.Errorf("suggesting relatives: %w", err)
		}

		if len(result.Suggestions) == 0 {
			fmt.Println("No suggestions.")
			return nil
		}

		fmt.Printf("Suggestions for %s:\n\n", personID)
		for _, s := range result.Suggestions {
			fmt.Printf("  %3.0f%%  %-8s %-30s %s\n",
				s.Confidence*100, s.SuggestedRelationship, s.Member.FullName(), s.Member.ID)
			fmt.Printf("        %s\n", s.Reason)
		}
		return nil
	})
}

func applySuggestions(cmd *cobra.Command, handler *handlers.SuggestionHandler, personID string, flags suggestFlags) error {
	threshold := flags.minConfidence
	if threshold == 0 {
		threshold = kinship.HighConfidence
	}

	_, applied, err := handler.HandleSuggestAndApply(cmd.Context(), personID, threshold)
	if applied != nil {
		for _, r := range applied.Results {
			if r.Error != "" {
				fmt.Printf("  x %s %s: %s\n", r.Suggestion.SuggestedRelationship, r.Suggestion.Member.FullName(), r.Error)
				continue
			}
			fmt.Printf("  + %s %s (%s)\n", r.Suggestion.SuggestedRelationship, r.Suggestion.Member.FullName(), r.RelationshipID)
			for _, w := range r.Warnings {
				fmt.Printf("      ! %s\n", w)
			}
		}
		fmt.Printf("\nApplied %d, failed %d\n", applied.Applied, applied.Failed)
	}
	if err != nil {
		return fmt.Errorf("applying suggestions: %w", err)
	}
	return nil
}
