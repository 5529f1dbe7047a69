package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/entities"
)

// memberFlags holds the person attributes shared by add and edit.
type memberFlags struct {
	first  string
	last   string
	born   string
	died   string
	gender string
	place  string
}

func (f *memberFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.first, "first", "", "First name")
	cmd.Flags().StringVar(&f.last, "last", "", "Last name")
	cmd.Flags().StringVar(&f.born, "born", "", "Birth date (YYYY-MM-DD or YYYY)")
	cmd.Flags().StringVar(&f.died, "died", "", "Death date (YYYY-MM-DD or YYYY)")
	cmd.Flags().StringVar(&f.gender, "gender", "", "Gender: male, female or other")
	cmd.Flags().StringVar(&f.place, "place", "", "Birth place")
}

func (f *memberFlags) input() handlers.PersonInput {
	return handlers.PersonInput{
		FirstName:  f.first,
		LastName:   f.last,
		BirthDate:  f.born,
		DeathDate:  f.died,
		Gender:     f.gender,
		BirthPlace: f.place,
	}
}

func newMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "members",
		Aliases: []string{"member"},
		Short:   "Manage the members of a family tree",
		RunE:    runMembersList,
	}

	cmd.AddCommand(
		newMembersAddCmd(),
		newMembersListCmd(),
		newMembersShowCmd(),
		newMembersEditCmd(),
		newMembersDeleteCmd(),
	)

	return cmd
}

func newMembersAddCmd() *cobra.Command {
	var flags memberFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member",
		Long: `Add a person to the family tree.

Examples:
  kin members add --first Ann --last Lee --born 1950-03-14 --gender female
  kin members add --first Ben --born 1978`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMembersAdd(cmd, flags)
		},
	}

	flags.register(cmd)
	_ = cmd.MarkFlagRequired("first")

	return cmd
}

func runMembersAdd(cmd *cobra.Command, flags memberFlags) error {
	ctx := cmd.Context()

	return withPersonHandler(ctx, func(handler *handlers.PersonHandler) error {
		person, err := handler.HandleAdd(ctx, flags.input())
		if err != nil {
			return fmt.Errorf("adding member: %w", err)
		}

		fmt.Printf("Added %s (%s)\n", person.FullName(), person.ID)
		return nil
	})
}

func newMembersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all members",
		Args:  cobra.NoArgs,
		RunE:  runMembersList,
	}
}

func runMembersList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	return withPersonHandler(ctx, func(handler *handlers.PersonHandler) error {
		result, err := handler.HandleList(ctx)
		if err != nil {
			return fmt.Errorf("listing members: %w", err)
		}

		if result.Total == 0 {
			fmt.Println("No members found.")
			fmt.Println("Use 'kin members add --first NAME' to add one.")
			return nil
		}

		fmt.Printf("Members (%d total):\n\n", result.Total)
		fmt.Printf("  %-36s  %-30s  %-10s  %-10s  %s\n", "ID", "NAME", "BORN", "DIED", "GENDER")
		for _, p := range result.Persons {
			fmt.Printf("  %-36s  %-30s  %-10s  %-10s  %s\n",
				p.ID,
				truncateString(p.FullName(), 30),
				entities.FormatOptionalDate(p.BirthDate),
				entities.FormatOptionalDate(p.DeathDate),
				p.Gender,
			)
		}

		return nil
	})
}

func newMembersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a member and their relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMembersShow(cmd, args[0])
		},
	}
}

func runMembersShow(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		detail, err := d.PersonHandler.HandleShow(ctx, id)
		if err != nil {
			return fmt.Errorf("showing member: %w", err)
		}

		p := detail.Person
		fmt.Printf("%s\n", p.FullName())
		fmt.Printf("  ID:          %s\n", p.ID)
		fmt.Printf("  Gender:      %s\n", p.Gender)
		if p.BirthDate != nil {
			fmt.Printf("  Born:        %s\n", p.BirthDate)
		}
		if p.DeathDate != nil {
			fmt.Printf("  Died:        %s\n", p.DeathDate)
		}
		if p.BirthPlace != "" {
			fmt.Printf("  Birth place: %s\n", p.BirthPlace)
		}

		listed, err := d.RelationshipHandler.HandleList(ctx, id, handlers.ListOptions{})
		if err != nil {
			return fmt.Errorf("listing relations: %w", err)
		}

		fmt.Println()
		printRelationList(listed.Relations)
		return nil
	})
}

func newMembersEditCmd() *cobra.Command {
	var flags memberFlags

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a member",
		Long: `Edit a member. Flags that are not given keep their current value.

Example:
  kin members edit 3f2a... --died 2020-01-02`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMembersEdit(cmd, args[0], flags)
		},
	}

	flags.register(cmd)

	return cmd
}

func runMembersEdit(cmd *cobra.Command, id string, flags memberFlags) error {
	ctx := cmd.Context()

	return withPersonHandler(ctx, func(handler *handlers.PersonHandler) error {
		current, err := handler.HandleShow(ctx, id)
		if err != nil {
			return fmt.Errorf("loading member: %w", err)
		}

		input := mergeMemberInput(cmd, current.Person, flags)
		person, err := handler.HandleEdit(ctx, id, input)
		if err != nil {
			return fmt.Errorf("editing member: %w", err)
		}

		fmt.Printf("Updated %s (%s)\n", person.FullName(), person.ID)
		return nil
	})
}

// mergeMemberInput starts from the stored person and applies only the flags
// the user actually set.
func mergeMemberInput(cmd *cobra.Command, p entities.Person, flags memberFlags) handlers.PersonInput {
	input := handlers.PersonInput{
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		BirthDate:  entities.FormatOptionalDate(p.BirthDate),
		DeathDate:  entities.FormatOptionalDate(p.DeathDate),
		Gender:     string(p.Gender),
		BirthPlace: p.BirthPlace,
	}

	changed := cmd.Flags().Changed
	if changed("first") {
		input.FirstName = flags.first
	}
	if changed("last") {
		input.LastName = flags.last
	}
	if changed("born") {
		input.BirthDate = flags.born
	}
	if changed("died") {
		input.DeathDate = flags.died
	}
	if changed("gender") {
		input.Gender = flags.gender
	}
	if changed("place") {
		input.BirthPlace = flags.place
	}

	return input
}

func newMembersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a member and all of their relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMembersDelete(cmd, args[0])
		},
	}
}

func runMembersDelete(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()

	return withPersonHandler(ctx, func(handler *handlers.PersonHandler) error {
		removed, err := handler.HandleDelete(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting member: %w", err)
		}

		fmt.Printf("Deleted member %s (%d relationship edges removed)\n", id, removed)
		return nil
	})
}

// truncateString shortens a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
