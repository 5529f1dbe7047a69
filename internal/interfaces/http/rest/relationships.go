package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

type relationshipRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
	Type string `json:"type" validate:"required"`
}

type directionRequest struct {
	CurrentID string `json:"current_id" validate:"required"`
	OtherID   string `json:"other_id" validate:"required"`
	Role      string `json:"role" validate:"required"`
}

type relateRequest struct {
	Role    string `json:"role" validate:"required"`
	OtherID string `json:"other_id" validate:"required"`
}

type createResponse struct {
	Success        bool     `json:"success"`
	RelationshipID string   `json:"relationshipId"`
	ReciprocalID   string   `json:"reciprocalId,omitempty"`
	Warnings       []string `json:"warnings"`
}

// createRelationship handles POST /relationships. The edge is stored as given.
func (rt *Router) createRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.respondBadRequest(w, err)
		return
	}

	result, err := rt.relationships.HandleCreate(r.Context(), req.From, req.Type, req.To)
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		Success:        true,
		RelationshipID: result.RelationshipID,
		ReciprocalID:   result.ReciprocalID,
		Warnings:       result.Warnings,
	})
}

// deleteRelationship handles DELETE /relationships/{relationshipID}.
func (rt *Router) deleteRelationship(w http.ResponseWriter, r *http.Request) {
	result, err := rt.relationships.HandleDelete(r.Context(), chi.URLParam(r, "relationshipID"))
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"deleted_ids": result.DeletedIDs,
	})
}

// resolveDirection handles POST /relationships/direction.
func (rt *Router) resolveDirection(w http.ResponseWriter, r *http.Request) {
	var req directionRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.respondBadRequest(w, err)
		return
	}

	direction, err := rt.relationships.HandleDirection(req.CurrentID, req.Role, req.OtherID)
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, direction)
}

// validateRelationship handles POST /relationships/validate.
func (rt *Router) validateRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.respondBadRequest(w, err)
		return
	}

	result, err := rt.relationships.HandleValidate(r.Context(), req.From, req.Type, req.To)
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    result.OK(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// resolveAll handles GET /relationships: every person's relations, keyed by person ID.
func (rt *Router) resolveAll(w http.ResponseWriter, r *http.Request) {
	views, err := rt.relationships.HandleTree(r.Context())
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// listRelations handles GET /persons/{personID}/relations?type=.
func (rt *Router) listRelations(w http.ResponseWriter, r *http.Request) {
	result, err := rt.relationships.HandleList(r.Context(), chi.URLParam(r, "personID"), handlers.ListOptions{
		Type: r.URL.Query().Get("type"),
	})
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// relate handles POST /persons/{personID}/relations: other becomes the person's role.
func (rt *Router) relate(w http.ResponseWriter, r *http.Request) {
	var req relateRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.respondBadRequest(w, err)
		return
	}

	result, err := rt.relationships.HandleRelate(r.Context(), chi.URLParam(r, "personID"), req.Role, req.OtherID)
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
