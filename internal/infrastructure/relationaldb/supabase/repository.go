// Package supabase provides a ports.Store backed by Supabase tables through
// the PostgREST API. Every call runs through a circuit breaker so an
// unreachable project fails fast instead of stalling each request.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	supa "github.com/supabase-community/supabase-go"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
	"github.com/ersonp/kin-core/internal/infrastructure/observability"
)

// Table names. The schema matches the postgres store's kin_* tables.
const (
	tablePersons       = "kin_persons"
	tableRelationships = "kin_relationships"
	tableAudit         = "kin_audit_log"
)

// ErrCircuitOpen is returned while the breaker rejects calls to Supabase.
var ErrCircuitOpen = errors.New("supabase circuit breaker is open")

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// newID returns a new UUID string (can be mocked in tests).
var newID = func() string { return uuid.New().String() }

// Repository implements ports.Store and ports.RelationshipPairWriter on Supabase.
type Repository struct {
	client  *supa.Client
	breaker *gobreaker.CircuitBreaker
	tree    string
	logger  *zap.Logger
}

var (
	_ ports.Store                  = (*Repository)(nil)
	_ ports.RelationshipPairWriter = (*Repository)(nil)
)

type personRow struct {
	ID         string    `json:"id"`
	Tree       string    `json:"tree"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	BirthDate  *string   `json:"birth_date"`
	DeathDate  *string   `json:"death_date"`
	Gender     string    `json:"gender"`
	BirthPlace string    `json:"birth_place"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type relationshipRow struct {
	ID             string    `json:"id"`
	Tree           string    `json:"tree"`
	SourcePersonID string    `json:"source_person_id"`
	TargetPersonID string    `json:"target_person_id"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
}

type auditRow struct {
	ID        int64          `json:"id,omitempty"`
	Tree      string         `json:"tree"`
	Action    string         `json:"action"`
	PersonID  *string        `json:"person_id"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRepository creates a Supabase client for cfg scoped to tree.
func NewRepository(cfg config.SupabaseConfig, tree string, logger *zap.Logger) (*Repository, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errors.New("supabase url and key are required")
	}
	if tree == "" {
		return nil, errors.New("tree key is required")
	}

	client, err := supa.NewClient(cfg.URL, cfg.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "supabase",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Missing rows and conflicts are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ports.ErrNotFound) || errors.Is(err, ports.ErrConflict)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			observability.StoreCircuitState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Repository{client: client, breaker: breaker, tree: tree, logger: logger}, nil
}

// Close is a no-op; the client holds no persistent connection.
func (r *Repository) Close() error {
	return nil
}

// call runs fn through the circuit breaker.
func (r *Repository) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// EnsureSchema checks the tables are reachable. PostgREST cannot run DDL, so
// the schema has to be applied with the postgres store or a migration.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, table := range []string{tablePersons, tableRelationships, tableAudit} {
		err := r.call(ctx, func() error {
			_, _, err := r.client.From(table).Select("id", "", false).Limit(1, "").Execute()
			return err
		})
		if err != nil {
			return fmt.Errorf("checking table %s (apply the kin schema to the project first): %w", table, err)
		}
	}
	return nil
}

// Person operations

// SavePerson inserts or updates a person. An empty ID is assigned a new UUID.
func (r *Repository) SavePerson(ctx context.Context, person *entities.Person) error {
	now := timeNow()
	if person.ID == "" {
		person.ID = newID()
	}
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now

	row := toPersonRow(r.tree, person)
	err := r.call(ctx, func() error {
		_, _, err := r.client.From(tablePersons).Upsert(row, "tree,id", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("saving person: %w", err)
	}
	return nil
}

// FindPersonByID finds a person by ID. Returns nil if not found.
func (r *Repository) FindPersonByID(ctx context.Context, id string) (*entities.Person, error) {
	var rows []personRow
	err := r.call(ctx, func() error {
		_, err := r.client.From(tablePersons).
			Select("*", "", false).
			Eq("tree", r.tree).
			Eq("id", id).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding person: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toEntity()
}

// FindPersonsByIDs returns the persons in ids order.
func (r *Repository) FindPersonsByIDs(ctx context.Context, ids []string) ([]entities.Person, error) {
	if len(ids) == 0 {
		return []entities.Person{}, nil
	}

	var rows []personRow
	err := r.call(ctx, func() error {
		_, err := r.client.From(tablePersons).
			Select("*", "", false).
			Eq("tree", r.tree).
			In("id", ids).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding persons: %w", err)
	}

	byID := make(map[string]personRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	result := make([]entities.Person, 0, len(ids))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
		}
		p, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, nil
}

// ListPersons lists every person in the tree ordered by last name, first name.
func (r *Repository) ListPersons(ctx context.Context) ([]entities.Person, error) {
	var rows []personRow
	asc := &postgrest.OrderOpts{Ascending: true}
	err := r.call(ctx, func() error {
		_, err := r.client.From(tablePersons).
			Select("*", "", false).
			Eq("tree", r.tree).
			Order("last_name", asc).
			Order("first_name", asc).
			Order("id", asc).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}

	persons := make([]entities.Person, 0, len(rows))
	for _, row := range rows {
		p, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		persons = append(persons, *p)
	}
	return persons, nil
}

// DeletePerson deletes a person by ID. Edges touching the person cascade.
func (r *Repository) DeletePerson(ctx context.Context, id string) error {
	var deleted []personRow
	err := r.call(ctx, func() error {
		_, err := r.client.From(tablePersons).
			Delete("representation", "").
			Eq("tree", r.tree).
			Eq("id", id).
			ExecuteTo(&deleted)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting person: %w", err)
	}
	if len(deleted) == 0 {
		return fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

func toPersonRow(tree string, p *entities.Person) personRow {
	row := personRow{
		ID:         p.ID,
		Tree:       tree,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Gender:     string(p.Gender),
		BirthPlace: p.BirthPlace,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.BirthDate != nil {
		s := p.BirthDate.String()
		row.BirthDate = &s
	}
	if p.DeathDate != nil {
		s := p.DeathDate.String()
		row.DeathDate = &s
	}
	return row
}

func (row personRow) toEntity() (*entities.Person, error) {
	p := &entities.Person{
		ID:         row.ID,
		FirstName:  row.FirstName,
		LastName:   row.LastName,
		Gender:     entities.Gender(row.Gender),
		BirthPlace: row.BirthPlace,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	var err error
	if row.BirthDate != nil {
		if p.BirthDate, err = entities.ParseOptionalDate(*row.BirthDate); err != nil {
			return nil, fmt.Errorf("birth date of %s: %w", row.ID, err)
		}
	}
	if row.DeathDate != nil {
		if p.DeathDate, err = entities.ParseOptionalDate(*row.DeathDate); err != nil {
			return nil, fmt.Errorf("death date of %s: %w", row.ID, err)
		}
	}
	return p, nil
}

// Relationship operations

func (r *Repository) newEdgeRow(fromID, toID string, relType entities.RelationType) relationshipRow {
	return relationshipRow{
		ID:             newID(),
		Tree:           r.tree,
		SourcePersonID: fromID,
		TargetPersonID: toID,
		Type:           string(relType),
		CreatedAt:      timeNow(),
	}
}

func (r *Repository) insertEdges(ctx context.Context, rows []relationshipRow) error {
	err := r.call(ctx, func() error {
		_, _, err := r.client.From(tableRelationships).Insert(rows, false, "", "minimal", "").Execute()
		if err != nil && isUniqueViolation(err) {
			return fmt.Errorf("relationship %s -> %s: %w", rows[0].SourcePersonID, rows[0].TargetPersonID, ports.ErrConflict)
		}
		return err
	})
	if err != nil && !errors.Is(err, ports.ErrConflict) {
		return fmt.Errorf("saving relationship: %w", err)
	}
	return err
}

// InsertRelationship stores a single directed edge and returns its ID.
func (r *Repository) InsertRelationship(ctx context.Context, fromID, toID string, relType entities.RelationType) (string, error) {
	row := r.newEdgeRow(fromID, toID, relType)
	if err := r.insertEdges(ctx, []relationshipRow{row}); err != nil {
		return "", err
	}
	return row.ID, nil
}

// InsertRelationshipPair stores an edge and its reciprocal. PostgREST runs a
// bulk insert as one statement, so both rows land or neither does.
func (r *Repository) InsertRelationshipPair(
	ctx context.Context,
	fromID, toID string,
	relType entities.RelationType,
) (string, string, error) {
	primary := r.newEdgeRow(fromID, toID, relType)
	reciprocal := r.newEdgeRow(toID, fromID, relType.Reciprocal())
	if err := r.insertEdges(ctx, []relationshipRow{primary, reciprocal}); err != nil {
		return "", "", err
	}
	return primary.ID, reciprocal.ID, nil
}

func (r *Repository) selectEdges(ctx context.Context, filter func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) ([]entities.Relationship, error) {
	var rows []relationshipRow
	err := r.call(ctx, func() error {
		q := r.client.From(tableRelationships).
			Select("id,tree,source_person_id,target_person_id,type,created_at", "", false).
			Eq("tree", r.tree)
		_, err := filter(q).
			Order("seq", &postgrest.OrderOpts{Ascending: true}).
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}

	rels := make([]entities.Relationship, 0, len(rows))
	for _, row := range rows {
		rels = append(rels, entities.Relationship{
			ID:             row.ID,
			SourcePersonID: row.SourcePersonID,
			TargetPersonID: row.TargetPersonID,
			Type:           entities.RelationType(row.Type),
			CreatedAt:      row.CreatedAt,
		})
	}
	return rels, nil
}

// FindRelationshipByID finds an edge by ID. Returns nil if not found.
func (r *Repository) FindRelationshipByID(ctx context.Context, id string) (*entities.Relationship, error) {
	rels, err := r.selectEdges(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Eq("id", id)
	})
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, nil
	}
	return &rels[0], nil
}

// FindRelationshipsByPerson returns every edge where the person is source or target.
func (r *Repository) FindRelationshipsByPerson(ctx context.Context, personID string) ([]entities.Relationship, error) {
	return r.selectEdges(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Or(touchesPerson(personID), "")
	})
}

// ListRelationships returns every edge in the tree in insertion order.
func (r *Repository) ListRelationships(ctx context.Context) ([]entities.Relationship, error) {
	return r.selectEdges(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q
	})
}

// touchesPerson builds the or filter matching either endpoint. Values are
// quoted so reserved characters in an ID cannot add clauses.
func touchesPerson(personID string) string {
	v := quoteFilterValue(personID)
	return "source_person_id.eq." + v + ",target_person_id.eq." + v
}

// quoteFilterValue wraps a value in double quotes for a PostgREST logic filter.
func quoteFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func (r *Repository) deleteEdges(ctx context.Context, filter func(*postgrest.FilterBuilder) *postgrest.FilterBuilder) (int, error) {
	var deleted []relationshipRow
	err := r.call(ctx, func() error {
		q := r.client.From(tableRelationships).Delete("representation", "").Eq("tree", r.tree)
		_, err := filter(q).ExecuteTo(&deleted)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("deleting relationships: %w", err)
	}
	return len(deleted), nil
}

// DeleteRelationship deletes an edge by ID.
func (r *Repository) DeleteRelationship(ctx context.Context, id string) error {
	n, err := r.deleteEdges(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Eq("id", id)
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("relationship %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// DeleteRelationships deletes the given edges in one statement. Reports
// ErrNotFound when some of them were already gone.
func (r *Repository) DeleteRelationships(ctx context.Context, ids []string) error {
	n, err := r.deleteEdges(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.In("id", ids)
	})
	if err != nil {
		return err
	}
	if n != len(ids) {
		return fmt.Errorf("deleted %d of %d relationships: %w", n, len(ids), ports.ErrNotFound)
	}
	return nil
}

// DeleteRelationshipsByPerson deletes all edges touching a person.
func (r *Repository) DeleteRelationshipsByPerson(ctx context.Context, personID string) (int, error) {
	return r.deleteEdges(ctx, func(q *postgrest.FilterBuilder) *postgrest.FilterBuilder {
		return q.Or(touchesPerson(personID), "")
	})
}

// Audit log operations

// LogAction logs an action to the audit log.
func (r *Repository) LogAction(ctx context.Context, action, personID string, details map[string]any) error {
	row := auditRow{Tree: r.tree, Action: action, Details: details, CreatedAt: timeNow()}
	if personID != "" {
		row.PersonID = &personID
	}
	err := r.call(ctx, func() error {
		_, _, err := r.client.From(tableAudit).Insert(row, false, "", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindAuditLog finds audit log entries for a person, newest first.
func (r *Repository) FindAuditLog(ctx context.Context, personID string) ([]entities.AuditEntry, error) {
	return r.queryAudit(ctx, "person_id", personID, 0)
}

// FindAuditLogByAction finds audit log entries by action type, newest first.
func (r *Repository) FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	return r.queryAudit(ctx, "action", action, limit)
}

func (r *Repository) queryAudit(ctx context.Context, column, value string, limit int) ([]entities.AuditEntry, error) {
	var rows []auditRow
	err := r.call(ctx, func() error {
		q := r.client.From(tableAudit).
			Select("*", "", false).
			Eq("tree", r.tree).
			Eq(column, value).
			Order("id", &postgrest.OrderOpts{Ascending: false})
		if limit > 0 {
			q = q.Limit(limit, "")
		}
		_, err := q.ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}

	entries := make([]entities.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := entities.AuditEntry{
			ID:        row.ID,
			Action:    row.Action,
			Details:   row.Details,
			CreatedAt: row.CreatedAt,
		}
		if row.PersonID != nil {
			entry.PersonID = *row.PersonID
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// isUniqueViolation reports whether PostgREST relayed a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "23505")
}
