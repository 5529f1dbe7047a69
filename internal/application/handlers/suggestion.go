package handlers

import (
	"context"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// SuggestionHandler handles relationship suggestions.
type SuggestionHandler struct {
	service *services.SuggestionService
}

// NewSuggestionHandler creates a new SuggestionHandler.
func NewSuggestionHandler(service *services.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{
		service: service,
	}
}

// SuggestOptions overrides the configured suggestion settings.
// Zero values keep the configured setting.
type SuggestOptions struct {
	MinConfidence float64
	Limit         int
}

// SuggestResult contains suggestions for one person.
type SuggestResult struct {
	PersonID    string                `json:"person_id"`
	Suggestions []entities.Suggestion `json:"suggestions"`
}

// ApplyResult contains the outcome of writing accepted suggestions.
type ApplyResult struct {
	Applied int                    `json:"applied"`
	Failed  int                    `json:"failed"`
	Results []services.ApplyResult `json:"results"`
}

// HandleSuggest returns suggested relatives for a person.
func (h *SuggestionHandler) HandleSuggest(ctx context.Context, personID string, opts SuggestOptions) (*SuggestResult, error) {
	settings := h.service.Options()
	if opts.MinConfidence > 0 {
		settings.MinConfidence = opts.MinConfidence
	}
	if opts.Limit > 0 {
		settings.MaxSuggestions = opts.Limit
	}

	suggestions, err := h.service.SuggestWithOptions(ctx, personID, settings)
	if err != nil {
		return nil, err
	}

	return &SuggestResult{
		PersonID:    personID,
		Suggestions: suggestions,
	}, nil
}

// HandleApply writes the accepted suggestions for a person.
func (h *SuggestionHandler) HandleApply(ctx context.Context, personID string, accepted []entities.Suggestion) (*ApplyResult, error) {
	results, err := h.service.Apply(ctx, personID, accepted)
	summary := &ApplyResult{Results: results}
	for i := range results {
		if results[i].Error != "" {
			summary.Failed++
		} else {
			summary.Applied++
		}
	}
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// HandleSuggestAndApply computes suggestions and writes those at or above minConfidence.
func (h *SuggestionHandler) HandleSuggestAndApply(
	ctx context.Context,
	personID string,
	minConfidence float64,
) (*SuggestResult, *ApplyResult, error) {
	suggested, err := h.HandleSuggest(ctx, personID, SuggestOptions{})
	if err != nil {
		return nil, nil, err
	}

	accepted := make([]entities.Suggestion, 0, len(suggested.Suggestions))
	for i := range suggested.Suggestions {
		if suggested.Suggestions[i].Confidence >= minConfidence {
			accepted = append(accepted, suggested.Suggestions[i])
		}
	}

	applied, err := h.HandleApply(ctx, personID, accepted)
	return suggested, applied, err
}
