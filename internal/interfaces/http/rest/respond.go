package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/domain/services"
	"github.com/ersonp/kin-core/internal/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success        bool     `json:"success"`
	Error          string   `json:"error"`
	Details        []string `json:"details,omitempty"`
	RelationshipID string   `json:"relationshipId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out, so an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validation.ValidateStruct(dst); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var partial *services.PartialWriteError
	var invalid *services.ValidationError
	switch {
	case errors.As(err, &partial):
		return http.StatusBadGateway
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrInvalidRelationType):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the response body for err. Internal failures keep a generic
// error string and carry the wrapped message in details.
func errorBody(err error, status int) errorResponse {
	body := errorResponse{Error: err.Error()}

	var invalid *services.ValidationError
	if errors.As(err, &invalid) {
		body.Details = invalid.Messages
	}
	var partial *services.PartialWriteError
	if errors.As(err, &partial) {
		body.RelationshipID = partial.PrimaryID
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
		body.Details = []string{err.Error()}
	}
	return body
}
