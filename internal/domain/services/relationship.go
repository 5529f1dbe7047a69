package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/observability"
)

// RelationshipOptions configures the relationship writer.
type RelationshipOptions struct {
	Policy kinship.Policy
	// ReciprocalRetries is how many extra attempts the reciprocal insert gets
	// on stores that cannot write both edges in one transaction.
	ReciprocalRetries int
	// CascadeDelete removes the mirror edge along with the named one.
	CascadeDelete bool
}

// DefaultRelationshipOptions returns the default writer settings.
func DefaultRelationshipOptions() RelationshipOptions {
	return RelationshipOptions{
		Policy:            kinship.DefaultPolicy(),
		ReciprocalRetries: 2,
		CascadeDelete:     true,
	}
}

// CreateResult is the outcome of a successful relationship write.
type CreateResult struct {
	RelationshipID string   `json:"relationship_id"`
	ReciprocalID   string   `json:"reciprocal_id"`
	Warnings       []string `json:"warnings"`
}

// DeleteResult lists the edges removed by a delete.
type DeleteResult struct {
	DeletedIDs []string `json:"deleted_ids"`
}

// RelationshipService validates, writes and reads relationships.
type RelationshipService struct {
	store  ports.Store
	opts   RelationshipOptions
	logger *zap.Logger
}

// NewRelationshipService creates a new RelationshipService.
func NewRelationshipService(store ports.Store, opts RelationshipOptions, logger *zap.Logger) *RelationshipService {
	if opts.ReciprocalRetries < 0 {
		opts.ReciprocalRetries = 0
	}
	return &RelationshipService{
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// ResolvePerspective returns personID's relations as that person sees them.
// On a store failure it returns an empty list alongside the error.
func (s *RelationshipService) ResolvePerspective(ctx context.Context, personID string) ([]entities.PerspectiveRelation, error) {
	person, err := s.store.FindPersonByID(ctx, personID)
	if err != nil {
		return []entities.PerspectiveRelation{}, fmt.Errorf("finding person: %w", err)
	}
	if person == nil {
		return []entities.PerspectiveRelation{}, fmt.Errorf("person %s: %w", personID, ports.ErrNotFound)
	}

	edges, err := s.store.FindRelationshipsByPerson(ctx, personID)
	if err != nil {
		return []entities.PerspectiveRelation{}, fmt.Errorf("loading relationships of %s: %w", personID, err)
	}
	return kinship.ResolvePerspective(personID, edges), nil
}

// ResolveAll returns the perspective of every person in the tree, keyed by person ID.
func (s *RelationshipService) ResolveAll(ctx context.Context) (map[string][]entities.PerspectiveRelation, error) {
	persons, err := s.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}
	edges, err := s.store.ListRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}

	ids := make([]string, len(persons))
	for i := range persons {
		ids[i] = persons[i].ID
	}
	return kinship.ResolveAll(ids, edges), nil
}

// ResolveDirection maps "other is current's role" to the edge to store.
func (s *RelationshipService) ResolveDirection(currentID, otherID string, role entities.RelationType) (kinship.Direction, error) {
	if !role.Valid() {
		return kinship.Direction{}, fmt.Errorf("%w: %q", entities.ErrInvalidRelationType, string(role))
	}
	return kinship.ResolveDirection(currentID, otherID, role), nil
}

// Validate checks the edge (from, to, relType) against the current store
// state without writing anything.
func (s *RelationshipService) Validate(
	ctx context.Context,
	fromID, toID string,
	relType entities.RelationType,
) (entities.ValidationResult, error) {
	if fromID == "" || toID == "" {
		return kinship.Validate(entities.Person{ID: fromID}, entities.Person{ID: toID}, relType, nil, s.opts.Policy), nil
	}

	persons, err := s.store.FindPersonsByIDs(ctx, []string{fromID, toID})
	if err != nil {
		return entities.ValidationResult{}, fmt.Errorf("loading persons: %w", err)
	}

	edges, err := s.store.FindRelationshipsByPerson(ctx, fromID)
	if err != nil {
		return entities.ValidationResult{}, fmt.Errorf("loading relationships of %s: %w", fromID, err)
	}

	fromRelations := kinship.ResolvePerspective(fromID, edges)
	return kinship.Validate(persons[0], persons[1], relType, fromRelations, s.opts.Policy), nil
}

// Create validates and stores a relationship together with its reciprocal edge.
//
// Validation errors come back as *ValidationError and nothing is written.
// Store uniqueness violations wrap ports.ErrConflict. When the reciprocal edge
// cannot be written after the primary one was, the error is *PartialWriteError.
func (s *RelationshipService) Create(
	ctx context.Context,
	fromID, toID string,
	relType entities.RelationType,
) (*CreateResult, error) {
	check, err := s.Validate(ctx, fromID, toID, relType)
	if err != nil {
		return nil, err
	}
	if !check.OK() {
		observability.ValidationFailures.Inc()
		return nil, &ValidationError{Messages: check.Errors}
	}

	result := &CreateResult{Warnings: check.Warnings}

	if pw, ok := s.store.(ports.RelationshipPairWriter); ok {
		result.RelationshipID, result.ReciprocalID, err = pw.InsertRelationshipPair(ctx, fromID, toID, relType)
		if err != nil {
			return nil, fmt.Errorf("storing relationship: %w", err)
		}
	} else {
		result.RelationshipID, err = s.store.InsertRelationship(ctx, fromID, toID, relType)
		if err != nil {
			return nil, fmt.Errorf("storing relationship: %w", err)
		}

		result.ReciprocalID, err = s.insertReciprocal(ctx, fromID, toID, relType)
		if err != nil {
			s.reportPartialWrite(ctx, result.RelationshipID, fromID, toID, relType, err)
			return nil, &PartialWriteError{PrimaryID: result.RelationshipID, Err: err}
		}
	}

	observability.RelationshipsCreated.WithLabelValues(string(relType)).Inc()
	s.audit(ctx, entities.AuditRelationshipCreated, fromID, map[string]any{
		"relationship_id": result.RelationshipID,
		"reciprocal_id":   result.ReciprocalID,
		"to":              toID,
		"type":            string(relType),
	})

	s.logger.Info("relationship created",
		zap.String("id", result.RelationshipID),
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.String("type", string(relType)),
		zap.Int("warnings", len(result.Warnings)))

	return result, nil
}

// insertReciprocal writes the mirror edge, retrying transient failures.
func (s *RelationshipService) insertReciprocal(
	ctx context.Context,
	fromID, toID string,
	relType entities.RelationType,
) (string, error) {
	reciprocal := relType.Reciprocal()

	var lastErr error
	for attempt := 0; attempt <= s.opts.ReciprocalRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id, err := s.store.InsertRelationship(ctx, toID, fromID, reciprocal)
		if err == nil {
			return id, nil
		}
		lastErr = err

		s.logger.Warn("reciprocal insert failed",
			zap.String("from", toID),
			zap.String("to", fromID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		// Another row already holds the pair; retrying cannot succeed.
		if errors.Is(err, ports.ErrConflict) {
			break
		}
	}
	return "", lastErr
}

func (s *RelationshipService) reportPartialWrite(
	ctx context.Context,
	primaryID, fromID, toID string,
	relType entities.RelationType,
	err error,
) {
	observability.PartialWrites.Inc()
	s.logger.Error("relationship stored without reciprocal edge",
		zap.String("primary_id", primaryID),
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.String("type", string(relType)),
		zap.Error(err))
	s.audit(ctx, entities.AuditPartialWrite, fromID, map[string]any{
		"relationship_id": primaryID,
		"to":              toID,
		"type":            string(relType),
		"error":           err.Error(),
	})
}

// Delete removes an edge and, when cascading is enabled, its mirror edge.
func (s *RelationshipService) Delete(ctx context.Context, edgeID string) (*DeleteResult, error) {
	rel, err := s.store.FindRelationshipByID(ctx, edgeID)
	if err != nil {
		return nil, fmt.Errorf("finding relationship: %w", err)
	}
	if rel == nil {
		return nil, fmt.Errorf("relationship %s: %w", edgeID, ports.ErrNotFound)
	}

	ids := []string{rel.ID}
	if s.opts.CascadeDelete {
		mirror, err := s.findMirror(ctx, *rel)
		if err != nil {
			return nil, err
		}
		if mirror != nil {
			ids = append(ids, mirror.ID)
		}
	}

	if err := s.deleteEdges(ctx, ids); err != nil {
		return nil, err
	}

	observability.RelationshipsDeleted.Add(float64(len(ids)))
	s.audit(ctx, entities.AuditRelationshipDeleted, rel.SourcePersonID, map[string]any{
		"relationship_ids": ids,
		"to":               rel.TargetPersonID,
		"type":             string(rel.Type),
	})

	s.logger.Info("relationship deleted", zap.Strings("ids", ids))
	return &DeleteResult{DeletedIDs: ids}, nil
}

// findMirror returns the reciprocal row of rel, or nil when there is none.
func (s *RelationshipService) findMirror(ctx context.Context, rel entities.Relationship) (*entities.Relationship, error) {
	edges, err := s.store.FindRelationshipsByPerson(ctx, rel.SourcePersonID)
	if err != nil {
		return nil, fmt.Errorf("loading relationships of %s: %w", rel.SourcePersonID, err)
	}
	for i := range edges {
		if rel.Mirrors(edges[i]) {
			return &edges[i], nil
		}
	}
	return nil, nil
}

func (s *RelationshipService) deleteEdges(ctx context.Context, ids []string) error {
	if pw, ok := s.store.(ports.RelationshipPairWriter); ok && len(ids) > 1 {
		if err := pw.DeleteRelationships(ctx, ids); err != nil {
			return fmt.Errorf("deleting relationships: %w", err)
		}
		return nil
	}

	for i, id := range ids {
		if err := s.store.DeleteRelationship(ctx, id); err != nil {
			if i > 0 {
				s.logger.Error("mirror edge delete failed", zap.String("id", id), zap.Error(err))
			}
			return fmt.Errorf("deleting relationship %s: %w", id, err)
		}
	}
	return nil
}

// audit records an action; a failed audit write never fails the operation.
func (s *RelationshipService) audit(ctx context.Context, action, personID string, details map[string]any) {
	if err := s.store.LogAction(ctx, action, personID, details); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
