package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/validation"
)

// PersonService manages family members.
type PersonService struct {
	store  ports.Store
	logger *zap.Logger
}

// NewPersonService creates a new PersonService.
func NewPersonService(store ports.Store, logger *zap.Logger) *PersonService {
	return &PersonService{
		store:  store,
		logger: logger,
	}
}

// validatePerson normalizes and checks a person, returning one message per problem.
func validatePerson(p *entities.Person) []string {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.BirthPlace = strings.TrimSpace(p.BirthPlace)

	var messages []string
	checked := *p
	gender, err := entities.ParseGender(string(p.Gender))
	if err != nil {
		messages = append(messages, err.Error())
		checked.Gender = entities.GenderOther
	} else {
		p.Gender = gender
		checked.Gender = gender
	}

	messages = append(messages, validation.Messages(checked)...)

	if p.BirthDate != nil && p.DeathDate != nil && p.DeathDate.Before(*p.BirthDate) {
		messages = append(messages, fmt.Sprintf(
			"death_date %s is before birth_date %s", p.DeathDate, p.BirthDate,
		))
	}
	return messages
}

// Create validates and stores a new person. The store assigns the ID.
func (s *PersonService) Create(ctx context.Context, person *entities.Person) error {
	if messages := validatePerson(person); len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	person.ID = ""

	if err := s.store.SavePerson(ctx, person); err != nil {
		return fmt.Errorf("saving person: %w", err)
	}

	s.logger.Debug("person created", zap.String("id", person.ID), zap.String("name", person.FullName()))
	return nil
}

// Get returns a person by ID, or an error wrapping ports.ErrNotFound.
func (s *PersonService) Get(ctx context.Context, id string) (*entities.Person, error) {
	person, err := s.store.FindPersonByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding person: %w", err)
	}
	if person == nil {
		return nil, fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
	}
	return person, nil
}

// List returns every person in the tree.
func (s *PersonService) List(ctx context.Context) ([]entities.Person, error) {
	persons, err := s.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}
	return persons, nil
}

// Update replaces the attributes of an existing person, keeping its ID and creation time.
func (s *PersonService) Update(ctx context.Context, person *entities.Person) error {
	existing, err := s.Get(ctx, person.ID)
	if err != nil {
		return err
	}

	if messages := validatePerson(person); len(messages) > 0 {
		return &ValidationError{Messages: messages}
	}
	person.CreatedAt = existing.CreatedAt

	if err := s.store.SavePerson(ctx, person); err != nil {
		return fmt.Errorf("saving person: %w", err)
	}
	return nil
}

// Delete removes a person and every edge touching them. Returns how many
// edges were removed.
func (s *PersonService) Delete(ctx context.Context, id string) (int, error) {
	person, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	removed, err := s.store.DeleteRelationshipsByPerson(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("deleting relationships of %s: %w", person.FullName(), err)
	}

	if err := s.store.DeletePerson(ctx, id); err != nil {
		return removed, fmt.Errorf("deleting person: %w", err)
	}

	if err := s.store.LogAction(ctx, entities.AuditPersonDeleted, id, map[string]any{
		"name":          person.FullName(),
		"relationships": removed,
	}); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", entities.AuditPersonDeleted), zap.Error(err))
	}

	s.logger.Info("person deleted", zap.String("id", id), zap.Int("relationships_removed", removed))
	return removed, nil
}
