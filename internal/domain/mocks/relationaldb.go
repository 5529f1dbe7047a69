package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// Store is an in-memory implementation of ports.Store.
// It enforces one edge per ordered pair like the SQL stores do.
type Store struct {
	mu sync.Mutex

	Persons       map[string]entities.Person
	Relationships []entities.Relationship
	Audit         []entities.AuditEntry

	// Err, when set, is returned by every method.
	Err error

	// InsertErrs is consumed one entry per InsertRelationship call;
	// a nil entry lets that call succeed.
	InsertErrs []error

	// InsertCalls counts InsertRelationship calls, failed ones included.
	InsertCalls int

	nextID int
}

// NewStore creates a new empty mock Store.
func NewStore() *Store {
	return &Store{
		Persons: make(map[string]entities.Person),
	}
}

// AddPersons stores persons directly, bypassing validation.
func (m *Store) AddPersons(persons ...entities.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range persons {
		m.Persons[persons[i].ID] = persons[i]
	}
}

// AddRelationship stores a raw edge directly and returns its ID.
func (m *Store) AddRelationship(fromID, toID string, relType entities.RelationType) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEdge(fromID, toID, relType)
}

// EnsureSchema is a no-op.
func (m *Store) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close is a no-op.
func (m *Store) Close() error {
	return nil
}

// SavePerson inserts or updates a person.
func (m *Store) SavePerson(_ context.Context, person *entities.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if person.ID == "" {
		m.nextID++
		person.ID = fmt.Sprintf("person-%d", m.nextID)
	}
	m.Persons[person.ID] = *person
	return nil
}

// FindPersonByID finds a person by ID.
func (m *Store) FindPersonByID(_ context.Context, id string) (*entities.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Persons[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// FindPersonsByIDs returns the persons in ids order.
func (m *Store) FindPersonsByIDs(_ context.Context, ids []string) ([]entities.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]entities.Person, 0, len(ids))
	for _, id := range ids {
		p, ok := m.Persons[id]
		if !ok {
			return nil, fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
		}
		result = append(result, p)
	}
	return result, nil
}

// ListPersons lists persons ordered by last name, first name.
func (m *Store) ListPersons(_ context.Context) ([]entities.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([]entities.Person, 0, len(m.Persons))
	for _, p := range m.Persons {
		result = append(result, p)
	}
	// Sort for deterministic test results
	sort.Slice(result, func(i, j int) bool {
		if result[i].LastName != result[j].LastName {
			return result[i].LastName < result[j].LastName
		}
		if result[i].FirstName != result[j].FirstName {
			return result[i].FirstName < result[j].FirstName
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeletePerson deletes a person by ID.
func (m *Store) DeletePerson(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Persons[id]; !ok {
		return fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
	}
	delete(m.Persons, id)
	return nil
}

// InsertRelationship stores a single directed edge.
func (m *Store) InsertRelationship(_ context.Context, fromID, toID string, relType entities.RelationType) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.InsertErrs) > 0 {
		err := m.InsertErrs[0]
		m.InsertErrs = m.InsertErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if m.hasPair(fromID, toID) {
		return "", fmt.Errorf("relationship %s -> %s: %w", fromID, toID, ports.ErrConflict)
	}
	return m.appendEdge(fromID, toID, relType), nil
}

// FindRelationshipByID finds an edge by ID.
func (m *Store) FindRelationshipByID(_ context.Context, id string) (*entities.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for i := range m.Relationships {
		if m.Relationships[i].ID == id {
			rel := m.Relationships[i]
			return &rel, nil
		}
	}
	return nil, nil
}

// FindRelationshipsByPerson returns every edge touching the person.
func (m *Store) FindRelationshipsByPerson(_ context.Context, personID string) ([]entities.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.Relationship
	for _, rel := range m.Relationships {
		if rel.Involves(personID) {
			result = append(result, rel)
		}
	}
	return result, nil
}

// ListRelationships returns every stored edge in insertion order.
func (m *Store) ListRelationships(_ context.Context) ([]entities.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]entities.Relationship(nil), m.Relationships...), nil
}

// DeleteRelationship deletes an edge by ID.
func (m *Store) DeleteRelationship(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for i := range m.Relationships {
		if m.Relationships[i].ID == id {
			m.Relationships = append(m.Relationships[:i], m.Relationships[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("relationship %s: %w", id, ports.ErrNotFound)
}

// DeleteRelationshipsByPerson deletes all edges touching a person.
func (m *Store) DeleteRelationshipsByPerson(_ context.Context, personID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	kept := m.Relationships[:0]
	removed := 0
	for _, rel := range m.Relationships {
		if rel.Involves(personID) {
			removed++
			continue
		}
		kept = append(kept, rel)
	}
	m.Relationships = kept
	return removed, nil
}

// LogAction records an audit entry.
func (m *Store) LogAction(_ context.Context, action, personID string, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Audit = append(m.Audit, entities.AuditEntry{
		ID:        int64(len(m.Audit) + 1),
		Action:    action,
		PersonID:  personID,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return nil
}

// FindAuditLog finds audit entries for a person, newest first.
func (m *Store) FindAuditLog(_ context.Context, personID string) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.AuditEntry
	for i := len(m.Audit) - 1; i >= 0; i-- {
		if m.Audit[i].PersonID == personID {
			result = append(result, m.Audit[i])
		}
	}
	return result, nil
}

// FindAuditLogByAction finds audit entries by action, newest first.
func (m *Store) FindAuditLogByAction(_ context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var result []entities.AuditEntry
	for i := len(m.Audit) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if m.Audit[i].Action == action {
			result = append(result, m.Audit[i])
		}
	}
	return result, nil
}

func (m *Store) hasPair(fromID, toID string) bool {
	for _, rel := range m.Relationships {
		if rel.SourcePersonID == fromID && rel.TargetPersonID == toID {
			return true
		}
	}
	return false
}

func (m *Store) appendEdge(fromID, toID string, relType entities.RelationType) string {
	m.nextID++
	id := fmt.Sprintf("rel-%d", m.nextID)
	m.Relationships = append(m.Relationships, entities.Relationship{
		ID:             id,
		SourcePersonID: fromID,
		TargetPersonID: toID,
		Type:           relType,
		CreatedAt:      time.Now(),
	})
	return id
}

// PairStore is a Store that also implements ports.RelationshipPairWriter.
type PairStore struct {
	*Store

	// PairErr, when set, makes pair writes fail without touching any edge.
	PairErr error
}

// NewPairStore creates a new empty mock PairStore.
func NewPairStore() *PairStore {
	return &PairStore{Store: NewStore()}
}

// InsertRelationshipPair stores an edge and its reciprocal, both or neither.
func (m *PairStore) InsertRelationshipPair(
	_ context.Context,
	fromID, toID string,
	relType entities.RelationType,
) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PairErr != nil {
		return "", "", m.PairErr
	}
	if m.hasPair(fromID, toID) || m.hasPair(toID, fromID) {
		return "", "", fmt.Errorf("relationship %s <-> %s: %w", fromID, toID, ports.ErrConflict)
	}
	primary := m.appendEdge(fromID, toID, relType)
	reciprocal := m.appendEdge(toID, fromID, relType.Reciprocal())
	return primary, reciprocal, nil
}

// DeleteRelationships deletes all the given edges, both or neither.
func (m *PairStore) DeleteRelationships(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PairErr != nil {
		return m.PairErr
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := make([]entities.Relationship, 0, len(m.Relationships))
	for _, rel := range m.Relationships {
		if !drop[rel.ID] {
			kept = append(kept, rel)
		}
	}
	if len(m.Relationships)-len(kept) != len(drop) {
		return fmt.Errorf("deleting relationships %v: %w", ids, ports.ErrNotFound)
	}
	m.Relationships = kept
	return nil
}
