package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/entities"
)

// relationGroups is the order relations are grouped in tree output.
var relationGroups = []entities.RelationType{
	entities.RelationParent,
	entities.RelationSpouse,
	entities.RelationSibling,
	entities.RelationChild,
}

func newRelationsCmd() *cobra.Command {
	var relType string
	var format string
	var all bool

	cmd := &cobra.Command{
		Use:   "relations [PERSON-ID]",
		Short: "Show a member's relations",
		Long: `Show every relation of a member as seen from that member.

Examples:
  kin relations ben
  kin relations ben --type parent
  kin relations ben --format json
  kin relations --all --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !contains(relationsFormats, format) {
				return fmt.Errorf("invalid format %q (must be one of: %v)", format, relationsFormats)
			}
			if all {
				return runRelationsAll(cmd, format)
			}
			if len(args) != 1 {
				return errors.New("a person ID is required unless --all is set")
			}
			return runRelations(cmd, args[0], relType, format)
		},
	}

	cmd.Flags().StringVar(&relType, "type", "", "Only show relations of this type")
	cmd.Flags().StringVarP(&format, "format", "f", "tree", "Output format: tree, list, json")
	cmd.Flags().BoolVar(&all, "all", false, "Show the relations of every member")

	return cmd
}

func runRelations(cmd *cobra.Command, personID, relType, format string) error {
	ctx := cmd.Context()

	return withRelationshipHandler(ctx, func(handler *handlers.RelationshipHandler) error {
		result, err := handler.HandleList(ctx, personID, handlers.ListOptions{Type: relType})
		if err != nil {
			return fmt.Errorf("listing relations: %w", err)
		}

		switch format {
		case "json":
			return printJSON(result)
		case "list":
			for _, r := range result.Relations {
				fmt.Printf("%s\t%s\t%s\t%s\n", r.ID, r.Type, r.Person.ID, r.Person.FullName())
			}
			return nil
		default:
			fmt.Printf("%s (%s)\n", result.Person.FullName(), result.Person.ID)
			printRelationList(result.Relations)
			return nil
		}
	})
}

func runRelationsAll(cmd *cobra.Command, format string) error {
	ctx := cmd.Context()

	return withRelationshipHandler(ctx, func(handler *handlers.RelationshipHandler) error {
		tree, err := handler.HandleTree(ctx)
		if err != nil {
			return fmt.Errorf("resolving relations: %w", err)
		}

		if format == "json" {
			return printJSON(tree)
		}

		ids := make([]string, 0, len(tree))
		for id := range tree {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			fmt.Printf("%s\n", id)
			for _, r := range tree[id] {
				fmt.Printf("  %-8s %s\n", r.Type, r.PersonID)
			}
		}
		return nil
	})
}

// printRelationList prints relations grouped by type.
func printRelationList(relations []handlers.RelationInfo) {
	if len(relations) == 0 {
		fmt.Println("  No relations recorded.")
		return
	}

	for _, group := range relationGroups {
		var inGroup []handlers.RelationInfo
		for _, r := range relations {
			if r.Type == group {
				inGroup = append(inGroup, r)
			}
		}
		if len(inGroup) == 0 {
			continue
		}

		fmt.Printf("  %s:\n", pluralize(group, len(inGroup)))
		for _, r := range inGroup {
			fmt.Printf("    %-30s %s  (edge %s)\n", r.Person.FullName(), r.Person.ID, r.ID)
		}
	}
}

func pluralize(t entities.RelationType, n int) string {
	if n == 1 {
		return string(t)
	}
	return string(t) + "s"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
