package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/parsers"
)

type exportFlags struct {
	format string
	output string
}

type exporter struct {
	store  ports.Store
	format string
	output string
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export members and relations to file",
		Long: `Exports the tree in the same JSON or CSV layout 'kin import' reads,
so an export can be imported into another tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runExport(cmd *cobra.Command, flags exportFlags) error {
	if !contains(exportFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, exportFormats)
	}

	ctx := cmd.Context()

	return withStore(ctx, func(store ports.Store) error {
		e := &exporter{
			store:  store,
			format: flags.format,
			output: flags.output,
		}

		persons, err := e.fetchPersons(ctx)
		if err != nil {
			return err
		}

		return e.export(persons)
	})
}

func (e *exporter) fetchPersons(ctx context.Context) ([]parsers.RawPerson, error) {
	persons, err := e.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	if len(persons) == 0 {
		return nil, fmt.Errorf("no members found to export")
	}

	rels, err := e.store.ListRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}

	return toRawPersons(persons, rels), nil
}

// toRawPersons converts stored persons and edges into the import layout.
// Each relationship is attached once, to the target of its first stored edge,
// so a reciprocal row does not produce a second listing.
func toRawPersons(persons []entities.Person, rels []entities.Relationship) []parsers.RawPerson {
	index := make(map[string]int, len(persons))
	raw := make([]parsers.RawPerson, len(persons))
	for i, p := range persons {
		index[p.ID] = i
		raw[i] = parsers.RawPerson{
			ID:         p.ID,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			BirthDate:  entities.FormatOptionalDate(p.BirthDate),
			DeathDate:  entities.FormatOptionalDate(p.DeathDate),
			Gender:     string(p.Gender),
			BirthPlace: p.BirthPlace,
		}
	}

	seen := make(map[[2]string]bool, len(rels))
	for _, r := range rels {
		pair := [2]string{r.SourcePersonID, r.TargetPersonID}
		if pair[0] > pair[1] {
			pair[0], pair[1] = pair[1], pair[0]
		}
		if seen[pair] {
			continue
		}
		seen[pair] = true

		i, ok := index[r.TargetPersonID]
		if !ok {
			continue
		}
		// Source holds Type relative to target.
		raw[i].Relations = append(raw[i].Relations, parsers.RawRelation{
			Role:     string(r.Type),
			PersonID: r.SourcePersonID,
		})
	}

	return raw
}

func (e *exporter) export(persons []parsers.RawPerson) (err error) {
	var w io.Writer
	var f *os.File

	if e.output != "" {
		f, err = os.OpenFile(e.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	} else {
		w = os.Stdout
	}

	if err := e.formatPersons(w, persons); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if e.output != "" {
		fmt.Printf("Exported %d members to %s\n", len(persons), e.output)
	}

	return nil
}

func (e *exporter) formatPersons(w io.Writer, persons []parsers.RawPerson) error {
	switch e.format {
	case "json":
		return formatJSON(w, persons)
	case "csv":
		return formatCSV(w, persons)
	default:
		return fmt.Errorf("unknown format: %s", e.format)
	}
}

func formatJSON(w io.Writer, persons []parsers.RawPerson) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(persons)
}

func formatCSV(w io.Writer, persons []parsers.RawPerson) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "first_name", "last_name", "birth_date", "death_date", "gender", "birth_place"}
	header = append(header, parsers.RelationColumns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range persons {
		row := []string{
			p.ID,
			p.FirstName,
			p.LastName,
			p.BirthDate,
			p.DeathDate,
			p.Gender,
			p.BirthPlace,
		}
		for _, role := range parsers.RelationColumns {
			var ids []string
			for _, r := range p.Relations {
				if r.Role == role {
					ids = append(ids, r.PersonID)
				}
			}
			row = append(row, strings.Join(ids, ";"))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
