package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

// listPersons handles GET /persons.
func (rt *Router) listPersons(w http.ResponseWriter, r *http.Request) {
	result, err := rt.persons.HandleList(r.Context())
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// createPerson handles POST /persons.
func (rt *Router) createPerson(w http.ResponseWriter, r *http.Request) {
	var req handlers.PersonInput
	if err := decodeJSON(r, &req); err != nil {
		rt.respondBadRequest(w, err)
		return
	}

	person, err := rt.persons.HandleAdd(r.Context(), req)
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

// getPerson handles GET /persons/{personID}.
func (rt *Router) getPerson(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.persons.HandleShow(r.Context(), chi.URLParam(r, "personID"))
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// updatePerson handles PUT /persons/{personID}.
func (rt *Router) updatePerson(w http.ResponseWriter, r *http.Request) {
	var req handlers.PersonInput
	if err := decodeJSON(r, &req); err != nil {
		rt.respondBadRequest(w, err)
		return
	}

	person, err := rt.persons.HandleEdit(r.Context(), chi.URLParam(r, "personID"), req)
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// deletePerson handles DELETE /persons/{personID}.
func (rt *Router) deletePerson(w http.ResponseWriter, r *http.Request) {
	removed, err := rt.persons.HandleDelete(r.Context(), chi.URLParam(r, "personID"))
	if err != nil {
		rt.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":               true,
		"relationships_removed": removed,
	})
}
