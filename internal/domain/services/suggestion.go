package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/observability"
)

// ApplyResult is the outcome of applying one accepted suggestion.
type ApplyResult struct {
	Suggestion     entities.Suggestion `json:"suggestion"`
	Direction      kinship.Direction   `json:"direction"`
	RelationshipID string              `json:"relationship_id,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// SuggestionService proposes and applies inferred relationships.
type SuggestionService struct {
	store         ports.Store
	relationships *RelationshipService
	opts          kinship.SuggestOptions
	logger        *zap.Logger
}

// NewSuggestionService creates a new SuggestionService.
func NewSuggestionService(
	store ports.Store,
	relationships *RelationshipService,
	opts kinship.SuggestOptions,
	logger *zap.Logger,
) *SuggestionService {
	return &SuggestionService{
		store:         store,
		relationships: relationships,
		opts:          opts,
		logger:        logger,
	}
}

// Options returns the configured suggestion settings.
func (s *SuggestionService) Options() kinship.SuggestOptions {
	return s.opts
}

// Suggest returns suggestions for personID using the configured settings.
func (s *SuggestionService) Suggest(ctx context.Context, personID string) ([]entities.Suggestion, error) {
	return s.SuggestWithOptions(ctx, personID, s.opts)
}

// SuggestWithOptions returns suggestions for personID using opts.
func (s *SuggestionService) SuggestWithOptions(
	ctx context.Context,
	personID string,
	opts kinship.SuggestOptions,
) ([]entities.Suggestion, error) {
	persons, err := s.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}

	var target *entities.Person
	for i := range persons {
		if persons[i].ID == personID {
			target = &persons[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("person %s: %w", personID, ports.ErrNotFound)
	}

	edges, err := s.store.ListRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}

	suggestions := kinship.Suggest(*target, persons, edges, opts)
	for i := range suggestions {
		observability.SuggestionsServed.WithLabelValues(string(suggestions[i].SuggestedRelationship)).Inc()
	}

	s.logger.Debug("suggestions computed",
		zap.String("person_id", personID),
		zap.Int("candidates", len(persons)-1),
		zap.Int("suggestions", len(suggestions)))

	return suggestions, nil
}

// Apply writes each accepted suggestion for personID, one at a time. Each
// write stands alone: a failure is recorded in its result and the rest
// still run.
func (s *SuggestionService) Apply(
	ctx context.Context,
	personID string,
	accepted []entities.Suggestion,
) ([]ApplyResult, error) {
	results := make([]ApplyResult, 0, len(accepted))
	for i := range accepted {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		suggestion := accepted[i]
		result := ApplyResult{Suggestion: suggestion}

		direction, err := s.relationships.ResolveDirection(personID, suggestion.Member.ID, suggestion.SuggestedRelationship)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		result.Direction = direction

		created, err := s.relationships.Create(ctx, direction.From, direction.To, direction.Type)
		if err != nil {
			result.Error = err.Error()
			s.logger.Warn("suggestion not applied",
				zap.String("person_id", personID),
				zap.String("member_id", suggestion.Member.ID),
				zap.Error(err))
		} else {
			result.RelationshipID = created.RelationshipID
			result.Warnings = created.Warnings
		}
		results = append(results, result)
	}
	return results, nil
}
