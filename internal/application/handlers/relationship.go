package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// RelationshipHandler handles relationship operations.
type RelationshipHandler struct {
	service *services.RelationshipService
	persons ports.PersonStore
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(service *services.RelationshipService, persons ports.PersonStore) *RelationshipHandler {
	return &RelationshipHandler{
		service: service,
		persons: persons,
	}
}

// ListOptions configures relationship listing behavior.
type ListOptions struct {
	Type string // Filter by perspective type (empty = all)
}

// RelationInfo is a perspective relation with the other person's details.
type RelationInfo struct {
	ID     string                `json:"id"`
	Type   entities.RelationType `json:"type"`
	Person entities.Person       `json:"person"`
}

// ListResult contains the result of listing a person's relations.
type ListResult struct {
	Person    entities.Person `json:"person"`
	Relations []RelationInfo  `json:"relations"`
}

// RelateResult contains the outcome of relating two persons.
type RelateResult struct {
	Direction      kinship.Direction `json:"direction"`
	RelationshipID string            `json:"relationship_id"`
	ReciprocalID   string            `json:"reciprocal_id"`
	Message        string            `json:"message"`
	Warnings       []string          `json:"warnings"`
}

// HandleRelate records that other is current's role, storing the edge in
// its canonical direction.
func (h *RelationshipHandler) HandleRelate(ctx context.Context, currentID, role, otherID string) (*RelateResult, error) {
	rt, err := entities.ParseRelationType(role)
	if err != nil {
		return nil, err
	}

	persons, err := h.persons.FindPersonsByIDs(ctx, []string{currentID, otherID})
	if err != nil {
		return nil, err
	}
	current, other := persons[0], persons[1]

	direction, err := h.service.ResolveDirection(currentID, otherID, rt)
	if err != nil {
		return nil, err
	}

	created, err := h.service.Create(ctx, direction.From, direction.To, direction.Type)
	if err != nil {
		return nil, err
	}

	return &RelateResult{
		Direction:      direction,
		RelationshipID: created.RelationshipID,
		ReciprocalID:   created.ReciprocalID,
		Message:        direction.Describe(current, other),
		Warnings:       created.Warnings,
	}, nil
}

// HandleCreate stores the edge (from, to, relType) exactly as given, with its reciprocal.
func (h *RelationshipHandler) HandleCreate(ctx context.Context, fromID, relType, toID string) (*services.CreateResult, error) {
	rt, err := entities.ParseRelationType(relType)
	if err != nil {
		return nil, err
	}
	return h.service.Create(ctx, fromID, toID, rt)
}

// HandleDirection resolves the edge that relating other as current's role would store.
func (h *RelationshipHandler) HandleDirection(currentID, role, otherID string) (kinship.Direction, error) {
	rt, err := entities.ParseRelationType(role)
	if err != nil {
		return kinship.Direction{}, err
	}
	return h.service.ResolveDirection(currentID, otherID, rt)
}

// HandleValidate checks a proposed edge without writing it.
func (h *RelationshipHandler) HandleValidate(ctx context.Context, fromID, relType, toID string) (entities.ValidationResult, error) {
	rt, err := entities.ParseRelationType(relType)
	if err != nil {
		return entities.ValidationResult{}, err
	}
	return h.service.Validate(ctx, fromID, toID, rt)
}

// HandleDelete removes a relationship edge and, when configured, its reciprocal.
func (h *RelationshipHandler) HandleDelete(ctx context.Context, id string) (*services.DeleteResult, error) {
	return h.service.Delete(ctx, id)
}

// HandleList returns a person's relations from their point of view.
func (h *RelationshipHandler) HandleList(ctx context.Context, personID string, opts ListOptions) (*ListResult, error) {
	var filter entities.RelationType
	if opts.Type != "" {
		rt, err := entities.ParseRelationType(opts.Type)
		if err != nil {
			return nil, err
		}
		filter = rt
	}

	relations, err := h.service.ResolvePerspective(ctx, personID)
	if err != nil {
		return nil, err
	}

	if filter != "" {
		filtered := make([]entities.PerspectiveRelation, 0, len(relations))
		for i := range relations {
			if relations[i].Type == filter {
				filtered = append(filtered, relations[i])
			}
		}
		relations = filtered
	}

	// The subject comes first so one lookup covers everyone.
	ids := make([]string, 0, len(relations)+1)
	ids = append(ids, personID)
	for i := range relations {
		ids = append(ids, relations[i].PersonID)
	}

	persons, err := h.persons.FindPersonsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching persons: %w", err)
	}

	result := &ListResult{
		Person:    persons[0],
		Relations: make([]RelationInfo, 0, len(relations)),
	}
	for i := range relations {
		result.Relations = append(result.Relations, RelationInfo{
			ID:     relations[i].ID,
			Type:   relations[i].Type,
			Person: persons[i+1],
		})
	}

	return result, nil
}

// HandleTree returns every person's relations keyed by person ID.
func (h *RelationshipHandler) HandleTree(ctx context.Context) (map[string][]entities.PerspectiveRelation, error) {
	return h.service.ResolveAll(ctx)
}
