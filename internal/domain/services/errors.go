package services

import (
	"fmt"
	"strings"
)

// ValidationError is returned when a request breaks a user-correctable rule.
// Messages are shown to the operator verbatim.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// PartialWriteError reports a relationship whose primary edge was stored but
// whose reciprocal edge could not be written. The primary edge is left in place.
type PartialWriteError struct {
	PrimaryID string
	Err       error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("relationship %s stored without its reciprocal edge: %v", e.PrimaryID, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}
