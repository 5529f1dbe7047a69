package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/parsers"
)

// ConflictStrategy defines how to handle existing persons during import.
type ConflictStrategy string

const (
	// ConflictSkip skips persons that already exist (by ID).
	ConflictSkip ConflictStrategy = "skip"
	// ConflictOverwrite overwrites existing persons with new data.
	ConflictOverwrite ConflictStrategy = "overwrite"
)

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun     bool             // Validate without saving
	OnConflict ConflictStrategy // How to handle existing persons
}

// ImportError represents an error for a specific record during import.
type ImportError struct {
	Line    int    // Line number (1-indexed, 0 if unknown)
	Field   string // Which field has the error
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Imported             int
	Skipped              int
	RelationshipsCreated int
	RelationshipsSkipped int
	Warnings             []string
	Errors               []ImportError
}

// ImportService handles importing persons and their relationships.
type ImportService struct {
	store         ports.Store
	relationships *RelationshipService
	logger        *zap.Logger
}

// NewImportService creates a new import service.
func NewImportService(store ports.Store, relationships *RelationshipService, logger *zap.Logger) *ImportService {
	return &ImportService{
		store:         store,
		relationships: relationships,
		logger:        logger,
	}
}

// pendingRelation is a relation line waiting for both persons to be stored.
type pendingRelation struct {
	line     int
	personID string
	role     entities.RelationType
	otherID  string
}

// Import validates and imports raw persons. Persons are saved first, then
// every relation runs through the relationship writer so the usual
// validation applies.
func (s *ImportService) Import(ctx context.Context, raws []parsers.RawPerson, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	persons, relations, errs := s.convert(raws)
	result.Errors = errs

	if opts.DryRun {
		result.Imported = len(persons)
		result.RelationshipsCreated = len(relations)
		return result, nil
	}

	imported, skipped, err := s.savePersons(ctx, persons, opts.OnConflict)
	if err != nil {
		return nil, fmt.Errorf("saving persons: %w", err)
	}
	result.Imported = imported
	result.Skipped = skipped

	for _, rel := range relations {
		if err := s.applyRelation(ctx, rel, result); err != nil {
			return nil, err
		}
	}

	s.logger.Info("import finished",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("relationships", result.RelationshipsCreated),
		zap.Int("errors", len(result.Errors)))

	return result, nil
}

// convert validates raw persons and collects their relations. Invalid
// persons are reported and dropped along with their relations.
func (s *ImportService) convert(raws []parsers.RawPerson) ([]entities.Person, []pendingRelation, []ImportError) {
	persons := make([]entities.Person, 0, len(raws))
	var relations []pendingRelation
	var errs []ImportError

	for i := range raws {
		raw := &raws[i]
		lineNum := raw.LineNum
		if lineNum == 0 {
			lineNum = i + 1
		}

		person, err := rawToPerson(raw, lineNum)
		if err != nil {
			errs = append(errs, *err)
			continue
		}

		personRelations, relErrs := rawRelations(raw, person.ID, lineNum)
		errs = append(errs, relErrs...)
		relations = append(relations, personRelations...)
		persons = append(persons, person)
	}

	return persons, relations, errs
}

// rawToPerson converts and validates a single raw person.
func rawToPerson(raw *parsers.RawPerson, lineNum int) (entities.Person, *ImportError) {
	if strings.TrimSpace(raw.FirstName) == "" {
		return entities.Person{}, &ImportError{Line: lineNum, Field: "first_name", Message: "missing required field: first_name"}
	}

	birth, err := entities.ParseOptionalDate(raw.BirthDate)
	if err != nil {
		return entities.Person{}, &ImportError{Line: lineNum, Field: "birth_date", Value: raw.BirthDate, Message: err.Error()}
	}
	death, err := entities.ParseOptionalDate(raw.DeathDate)
	if err != nil {
		return entities.Person{}, &ImportError{Line: lineNum, Field: "death_date", Value: raw.DeathDate, Message: err.Error()}
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = uuid.New().String()
	}

	person := entities.Person{
		ID:         id,
		FirstName:  raw.FirstName,
		LastName:   raw.LastName,
		BirthDate:  birth,
		DeathDate:  death,
		Gender:     entities.Gender(raw.Gender),
		BirthPlace: raw.BirthPlace,
	}

	if messages := validatePerson(&person); len(messages) > 0 {
		return entities.Person{}, &ImportError{Line: lineNum, Message: strings.Join(messages, "; ")}
	}
	return person, nil
}

// rawRelations parses the relations attached to a raw person.
func rawRelations(raw *parsers.RawPerson, personID string, lineNum int) ([]pendingRelation, []ImportError) {
	var relations []pendingRelation
	var errs []ImportError

	for _, rr := range raw.Relations {
		role, err := entities.ParseRelationType(rr.Role)
		if err != nil {
			errs = append(errs, ImportError{Line: lineNum, Field: "role", Value: rr.Role, Message: err.Error()})
			continue
		}
		if strings.TrimSpace(rr.PersonID) == "" {
			errs = append(errs, ImportError{Line: lineNum, Field: "person_id", Message: "relation is missing person_id"})
			continue
		}
		relations = append(relations, pendingRelation{
			line:     lineNum,
			personID: personID,
			role:     role,
			otherID:  strings.TrimSpace(rr.PersonID),
		})
	}
	return relations, errs
}

// savePersons saves persons with conflict handling.
func (s *ImportService) savePersons(ctx context.Context, persons []entities.Person, onConflict ConflictStrategy) (imported, skipped int, err error) {
	for i := range persons {
		existing, err := s.store.FindPersonByID(ctx, persons[i].ID)
		if err != nil {
			return 0, 0, fmt.Errorf("looking up person %s: %w", persons[i].ID, err)
		}

		if existing != nil {
			if onConflict == ConflictSkip {
				skipped++
				continue
			}
			// Overwrite mode: preserve CreatedAt
			persons[i].CreatedAt = existing.CreatedAt
		}

		if err := s.store.SavePerson(ctx, &persons[i]); err != nil {
			return 0, 0, err
		}
		imported++
	}
	return imported, skipped, nil
}

// applyRelation writes one imported relation. Only infrastructure failures
// are returned; everything else is recorded on result.
func (s *ImportService) applyRelation(ctx context.Context, rel pendingRelation, result *ImportResult) error {
	current, err := s.relationships.ResolvePerspective(ctx, rel.personID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			result.Errors = append(result.Errors, ImportError{Line: rel.line, Field: "person_id", Value: rel.personID, Message: err.Error()})
			return nil
		}
		return err
	}

	// Files usually list a relationship on both people; the second listing is not an error.
	if existing, ok := kinship.FindRelation(current, rel.otherID); ok {
		if existing.Type == rel.role {
			result.RelationshipsSkipped++
			return nil
		}
	}

	direction, err := s.relationships.ResolveDirection(rel.personID, rel.otherID, rel.role)
	if err != nil {
		return err
	}

	created, err := s.relationships.Create(ctx, direction.From, direction.To, direction.Type)
	var validationErr *ValidationError
	switch {
	case err == nil:
		result.RelationshipsCreated++
		for _, w := range created.Warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %s", rel.line, w))
		}
	case errors.As(err, &validationErr), errors.Is(err, ports.ErrNotFound), errors.Is(err, ports.ErrConflict):
		result.Errors = append(result.Errors, ImportError{Line: rel.line, Field: "relations", Value: rel.otherID, Message: err.Error()})
	default:
		var partial *PartialWriteError
		if errors.As(err, &partial) {
			result.Errors = append(result.Errors, ImportError{Line: rel.line, Field: "relations", Value: rel.otherID, Message: err.Error()})
			return nil
		}
		return fmt.Errorf("line %d: creating relationship: %w", rel.line, err)
	}
	return nil
}
