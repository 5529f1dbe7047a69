package ports

import (
	"context"
	"errors"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

var (
	// ErrNotFound is returned when a person or relationship does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with an existing row,
	// such as a second edge for the same ordered pair of persons.
	ErrConflict = errors.New("conflict")
)

// PersonStore handles person persistence.
type PersonStore interface {
	// SavePerson inserts or updates a person. An empty ID is assigned by the store.
	SavePerson(ctx context.Context, person *entities.Person) error

	// FindPersonByID finds a person by ID. Returns nil if not found.
	FindPersonByID(ctx context.Context, id string) (*entities.Person, error)

	// FindPersonsByIDs returns the persons in ids order.
	// Returns an error wrapping ErrNotFound if any ID is missing.
	FindPersonsByIDs(ctx context.Context, ids []string) ([]entities.Person, error)

	// ListPersons lists every person ordered by last name, first name.
	ListPersons(ctx context.Context) ([]entities.Person, error)

	// DeletePerson deletes a person by ID.
	DeletePerson(ctx context.Context, id string) error
}

// RelationshipStore handles directed relationship edges.
type RelationshipStore interface {
	// InsertRelationship stores a single directed edge and returns its ID.
	InsertRelationship(ctx context.Context, fromID, toID string, relType entities.RelationType) (string, error)

	// FindRelationshipByID finds an edge by ID. Returns nil if not found.
	FindRelationshipByID(ctx context.Context, id string) (*entities.Relationship, error)

	// FindRelationshipsByPerson returns every edge where the person is source or target.
	FindRelationshipsByPerson(ctx context.Context, personID string) ([]entities.Relationship, error)

	// ListRelationships returns every stored edge.
	ListRelationships(ctx context.Context) ([]entities.Relationship, error)

	// DeleteRelationship deletes an edge by ID. Returns ErrNotFound if it does not exist.
	DeleteRelationship(ctx context.Context, id string) error

	// DeleteRelationshipsByPerson deletes all edges touching a person and
	// returns how many were removed.
	DeleteRelationshipsByPerson(ctx context.Context, personID string) (int, error)
}

// RelationshipPairWriter is implemented by stores that can write an edge
// and its reciprocal in one transaction.
type RelationshipPairWriter interface {
	// InsertRelationshipPair stores from->to with relType and to->from with
	// the reciprocal type, both or neither.
	InsertRelationshipPair(ctx context.Context, fromID, toID string, relType entities.RelationType) (primaryID, reciprocalID string, err error)

	// DeleteRelationships deletes all the given edges, both or neither.
	DeleteRelationships(ctx context.Context, ids []string) error
}

// AuditLog records writes for later inspection.
type AuditLog interface {
	// LogAction logs an action to the audit log.
	LogAction(ctx context.Context, action, personID string, details map[string]any) error

	// FindAuditLog finds audit log entries for a person, newest first.
	FindAuditLog(ctx context.Context, personID string) ([]entities.AuditEntry, error)

	// FindAuditLogByAction finds audit log entries by action type, newest first.
	FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error)
}

// Store is the full persistence port a family tree backend implements.
type Store interface {
	PersonStore
	RelationshipStore
	AuditLog

	// EnsureSchema creates the schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
