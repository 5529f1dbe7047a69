package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// PersonHandler handles person operations at the application layer.
type PersonHandler struct {
	persons       *services.PersonService
	relationships *services.RelationshipService
}

// NewPersonHandler creates a new PersonHandler.
func NewPersonHandler(persons *services.PersonService, relationships *services.RelationshipService) *PersonHandler {
	return &PersonHandler{
		persons:       persons,
		relationships: relationships,
	}
}

// PersonInput carries person attributes as entered by a user.
// Dates are YYYY-MM-DD or a bare year.
type PersonInput struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	BirthDate  string `json:"birth_date"`
	DeathDate  string `json:"death_date"`
	Gender     string `json:"gender"`
	BirthPlace string `json:"birth_place" validate:"max=200"`
}

// PersonListResult contains the result of listing persons.
type PersonListResult struct {
	Persons []entities.Person `json:"persons"`
	Total   int               `json:"total"`
}

// PersonDetail is a person together with their resolved relations.
type PersonDetail struct {
	Person    entities.Person                `json:"person"`
	Relations []entities.PerspectiveRelation `json:"relations"`
}

// toPerson converts input into a person, collecting every date problem.
func (in PersonInput) toPerson() (*entities.Person, error) {
	var messages []string

	birth, err := entities.ParseOptionalDate(in.BirthDate)
	if err != nil {
		messages = append(messages, fmt.Sprintf("birth_date: %v", err))
	}
	death, err := entities.ParseOptionalDate(in.DeathDate)
	if err != nil {
		messages = append(messages, fmt.Sprintf("death_date: %v", err))
	}
	if len(messages) > 0 {
		return nil, &services.ValidationError{Messages: messages}
	}

	return &entities.Person{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		BirthDate:  birth,
		DeathDate:  death,
		Gender:     entities.Gender(in.Gender),
		BirthPlace: in.BirthPlace,
	}, nil
}

// HandleAdd creates a person from user input.
func (h *PersonHandler) HandleAdd(ctx context.Context, input PersonInput) (*entities.Person, error) {
	person, err := input.toPerson()
	if err != nil {
		return nil, err
	}
	if err := h.persons.Create(ctx, person); err != nil {
		return nil, err
	}
	return person, nil
}

// HandleList returns every person in the tree.
func (h *PersonHandler) HandleList(ctx context.Context) (*PersonListResult, error) {
	persons, err := h.persons.List(ctx)
	if err != nil {
		return nil, err
	}
	return &PersonListResult{
		Persons: persons,
		Total:   len(persons),
	}, nil
}

// HandleShow returns a person and their relations.
func (h *PersonHandler) HandleShow(ctx context.Context, id string) (*PersonDetail, error) {
	person, err := h.persons.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	relations, err := h.relationships.ResolvePerspective(ctx, id)
	if err != nil {
		return nil, err
	}

	return &PersonDetail{
		Person:    *person,
		Relations: relations,
	}, nil
}

// HandleEdit replaces the attributes of an existing person.
func (h *PersonHandler) HandleEdit(ctx context.Context, id string, input PersonInput) (*entities.Person, error) {
	person, err := input.toPerson()
	if err != nil {
		return nil, err
	}
	person.ID = id
	if err := h.persons.Update(ctx, person); err != nil {
		return nil, err
	}
	return person, nil
}

// HandleDelete removes a person and every relationship touching them.
// Returns how many relationship edges were removed.
func (h *PersonHandler) HandleDelete(ctx context.Context, id string) (int, error) {
	return h.persons.Delete(ctx, id)
}
