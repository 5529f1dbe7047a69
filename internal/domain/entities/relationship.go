package entities

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRelationType is returned when a string does not name a known relationship type.
var ErrInvalidRelationType = errors.New("invalid relationship type")

// RelationType defines the kind of relationship between two persons.
// The set is closed: every switch over it must cover all four values.
type RelationType string

const (
	RelationParent  RelationType = "parent"
	RelationChild   RelationType = "child"
	RelationSpouse  RelationType = "spouse"
	RelationSibling RelationType = "sibling"
)

// RelationTypes lists every valid relationship type.
var RelationTypes = []RelationType{RelationParent, RelationChild, RelationSpouse, RelationSibling}

// ParseRelationType validates and converts a string to RelationType.
func ParseRelationType(s string) (RelationType, error) {
	switch RelationType(strings.ToLower(strings.TrimSpace(s))) {
	case RelationParent:
		return RelationParent, nil
	case RelationChild:
		return RelationChild, nil
	case RelationSpouse:
		return RelationSpouse, nil
	case RelationSibling:
		return RelationSibling, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: parent, child, spouse, sibling)", ErrInvalidRelationType, s)
	}
}

// Valid reports whether t is one of the four known types.
func (t RelationType) Valid() bool {
	switch t {
	case RelationParent, RelationChild, RelationSpouse, RelationSibling:
		return true
	default:
		return false
	}
}

// Symmetric reports whether the type reads the same from both sides.
func (t RelationType) Symmetric() bool {
	switch t {
	case RelationSpouse, RelationSibling:
		return true
	case RelationParent, RelationChild:
		return false
	default:
		panic(fmt.Sprintf("entities: unknown relationship type %q", string(t)))
	}
}

// Reciprocal returns the type stored on the mirror edge: parent<->child,
// spouse and sibling map to themselves.
func (t RelationType) Reciprocal() RelationType {
	switch t {
	case RelationParent:
		return RelationChild
	case RelationChild:
		return RelationParent
	case RelationSpouse:
		return RelationSpouse
	case RelationSibling:
		return RelationSibling
	default:
		panic(fmt.Sprintf("entities: unknown relationship type %q", string(t)))
	}
}

// Relationship is a stored directed edge between two persons.
// parent from A to B means "A is parent of B"; child from A to B means "A is child of B".
type Relationship struct {
	ID             string       `json:"id"`
	SourcePersonID string       `json:"source_person_id"`
	TargetPersonID string       `json:"target_person_id"`
	Type           RelationType `json:"type"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Involves reports whether personID is either endpoint of the edge.
func (r Relationship) Involves(personID string) bool {
	return r.SourcePersonID == personID || r.TargetPersonID == personID
}

// Mirrors reports whether other is the reciprocal row of r.
func (r Relationship) Mirrors(other Relationship) bool {
	return other.ID != r.ID &&
		other.SourcePersonID == r.TargetPersonID &&
		other.TargetPersonID == r.SourcePersonID &&
		other.Type == r.Type.Reciprocal()
}

// PerspectiveRelation is an edge as seen from one person: Type is the role the
// other person holds relative to that person. Derived on every read, never stored.
type PerspectiveRelation struct {
	ID       string       `json:"id"`
	Type     RelationType `json:"type"`
	PersonID string       `json:"person_id"`
}

// ValidationResult holds blocking errors and advisory warnings for a proposed edge.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether the result carries no blocking errors.
func (v ValidationResult) OK() bool {
	return len(v.Errors) == 0
}

// Suggestion is an inferred, unpersisted relationship proposal for a target person.
type Suggestion struct {
	Member                Person       `json:"member"`
	SuggestedRelationship RelationType `json:"suggested_relationship"`
	Confidence            float64      `json:"confidence"`
	Reason                string       `json:"reason"`
}
