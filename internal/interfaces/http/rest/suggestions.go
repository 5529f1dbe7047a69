package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
)

type applyRequest struct {
	// Suggestions to write. When empty, fresh suggestions at or above
	// MinConfidence are computed and written.
	Suggestions   []entities.Suggestion `json:"suggestions"`
	MinConfidence float64               `json:"min_confidence" validate:"gte=0,lte=1"`
}

// getSuggestions handles GET /persons/{personID}/suggestions?min_confidence=&limit=.
func (rt *Router) getSuggestions(w http.ResponseWriter, r *http.Request) {
	opts, err := suggestOptions(r)
	if err != nil {
		rt.respondBadRequest(w, err)
		return
	}

	result, err := rt.suggestions.HandleSuggest(r.Context(), chi.URLParam(r, "personID"), opts)
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// applySuggestions handles POST /persons/{personID}/suggestions/apply.
func (rt *Router) applySuggestions(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.respondBadRequest(w, err)
		return
	}
	personID := chi.URLParam(r, "personID")

	var (
		result *handlers.ApplyResult
		err    error
	)
	if len(req.Suggestions) > 0 {
		result, err = rt.suggestions.HandleApply(r.Context(), personID, req.Suggestions)
	} else {
		threshold := req.MinConfidence
		if threshold == 0 {
			threshold = kinship.HighConfidence
		}
		_, result, err = rt.suggestions.HandleSuggestAndApply(r.Context(), personID, threshold)
	}
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func suggestOptions(r *http.Request) (handlers.SuggestOptions, error) {
	var opts handlers.SuggestOptions
	q := r.URL.Query()

	if v := q.Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return opts, fmt.Errorf("min_confidence must be a number between 0 and 1, got %q", v)
		}
		opts.MinConfidence = f
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("limit must be a positive integer, got %q", v)
		}
		opts.Limit = n
	}
	return opts, nil
}
