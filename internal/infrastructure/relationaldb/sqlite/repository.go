// Package sqlite provides a SQLite implementation of the ports.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitedriver "modernc.org/sqlite" // Pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// generateUUID returns a new UUID string.
func generateUUID() string {
	return uuid.New().String()
}

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Repository implements ports.Store and ports.RelationshipPairWriter using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

var (
	_ ports.Store                  = (*Repository)(nil)
	_ ports.RelationshipPairWriter = (*Repository)(nil)
)

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	// Foreign keys and the busy timeout are per connection, so they go in the
	// DSN where the driver applies them to every pooled connection.
	dsn := cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Persons in the family tree
	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		birth_date TEXT,
		death_date TEXT,
		gender TEXT NOT NULL DEFAULT 'other',
		birth_place TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_persons_name ON persons(last_name, first_name);

	-- Directed relationship edges; every relationship is stored with its reciprocal
	CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		source_person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		target_person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('parent', 'child', 'spouse', 'sibling')),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CHECK (source_person_id <> target_person_id),
		UNIQUE(source_person_id, target_person_id)
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_person_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_person_id);

	-- Audit log (tracks all writes)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		person_id TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_person ON audit_log(person_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Person operations

// SavePerson saves or updates a person. An empty ID is assigned a new UUID.
func (r *Repository) SavePerson(ctx context.Context, person *entities.Person) error {
	now := timeNow()
	if person.ID == "" {
		person.ID = generateUUID()
	}
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now

	query := `
		INSERT INTO persons (id, first_name, last_name, birth_date, death_date, gender, birth_place, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			birth_date = excluded.birth_date,
			death_date = excluded.death_date,
			gender = excluded.gender,
			birth_place = excluded.birth_place,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		person.ID,
		person.FirstName,
		person.LastName,
		nullDate(person.BirthDate),
		nullDate(person.DeathDate),
		string(person.Gender),
		person.BirthPlace,
		person.CreatedAt,
		person.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving person: %w", err)
	}
	return nil
}

const personColumns = `id, first_name, last_name, birth_date, death_date, gender, birth_place, created_at, updated_at`

// FindPersonByID finds a person by ID. Returns nil if not found.
func (r *Repository) FindPersonByID(ctx context.Context, id string) (*entities.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	person, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning person: %w", err)
	}
	return person, nil
}

// FindPersonsByIDs returns the persons in ids order.
func (r *Repository) FindPersonsByIDs(ctx context.Context, ids []string) ([]entities.Person, error) {
	if len(ids) == 0 {
		return []entities.Person{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + personColumns + ` FROM persons WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	found, err := r.queryPersons(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]entities.Person, len(found))
	for i := range found {
		byID[found[i].ID] = found[i]
	}

	result := make([]entities.Person, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
		}
		result = append(result, p)
	}
	return result, nil
}

// ListPersons lists every person ordered by last name, first name.
func (r *Repository) ListPersons(ctx context.Context) ([]entities.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons ORDER BY last_name, first_name, id`
	return r.queryPersons(ctx, query)
}

// DeletePerson deletes a person by ID. Edges touching the person cascade.
func (r *Repository) DeletePerson(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting person: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// queryPersons is a helper to execute person queries.
func (r *Repository) queryPersons(ctx context.Context, query string, args ...any) ([]entities.Person, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying persons: %w", err)
	}
	defer rows.Close()

	persons := make([]entities.Person, 0)
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning person: %w", err)
		}
		persons = append(persons, *person)
	}
	return persons, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (*entities.Person, error) {
	var p entities.Person
	var birth, death sql.NullString
	var gender string

	if err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&birth,
		&death,
		&gender,
		&p.BirthPlace,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if p.BirthDate, err = entities.ParseOptionalDate(birth.String); err != nil {
		return nil, fmt.Errorf("birth date of %s: %w", p.ID, err)
	}
	if p.DeathDate, err = entities.ParseOptionalDate(death.String); err != nil {
		return nil, fmt.Errorf("death date of %s: %w", p.ID, err)
	}
	p.Gender = entities.Gender(gender)
	return &p, nil
}

func nullDate(d *entities.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// Relationship operations

// InsertRelationship stores a single directed edge and returns its ID.
func (r *Repository) InsertRelationship(ctx context.Context, fromID, toID string, relType entities.RelationType) (string, error) {
	id := generateUUID()
	if err := insertEdge(ctx, r.db, id, fromID, toID, relType); err != nil {
		return "", err
	}
	return id, nil
}

// InsertRelationshipPair stores an edge and its reciprocal in one transaction.
func (r *Repository) InsertRelationshipPair(
	ctx context.Context,
	fromID, toID string,
	relType entities.RelationType,
) (string, string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	primaryID := generateUUID()
	if err := insertEdge(ctx, tx, primaryID, fromID, toID, relType); err != nil {
		return "", "", err
	}
	reciprocalID := generateUUID()
	if err := insertEdge(ctx, tx, reciprocalID, toID, fromID, relType.Reciprocal()); err != nil {
		return "", "", fmt.Errorf("reciprocal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", "", fmt.Errorf("committing relationship pair: %w", err)
	}
	return primaryID, reciprocalID, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEdge(ctx context.Context, db execer, id, fromID, toID string, relType entities.RelationType) error {
	query := `
		INSERT INTO relationships (id, source_person_id, target_person_id, type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query, id, fromID, toID, string(relType), timeNow())
	if isUniqueViolation(err) {
		return fmt.Errorf("relationship %s -> %s: %w", fromID, toID, ports.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("saving relationship: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

const relationshipColumns = `id, source_person_id, target_person_id, type, created_at`

// FindRelationshipByID finds an edge by ID. Returns nil if not found.
func (r *Repository) FindRelationshipByID(ctx context.Context, id string) (*entities.Relationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM relationships WHERE id = ?`
	rels, err := r.queryRelationships(ctx, query, id)
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
	query := `
		SELECT ` + relationshipColumns + `
		FROM relationships
		WHERE source_person_id = ? OR target_person_id = ?
		ORDER BY rowid
	`
	return r.queryRelationships(ctx, query, personID, personID)
}

// ListRelationships returns every stored edge in insertion order.
func (r *Repository) ListRelationships(ctx context.Context) ([]entities.Relationship, error) {
	query := `SELECT ` + relationshipColumns + ` FROM relationships ORDER BY rowid`
	return r.queryRelationships(ctx, query)
}

// DeleteRelationship deletes an edge by ID.
func (r *Repository) DeleteRelationship(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting relationship: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("relationship %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// DeleteRelationships deletes all the given edges in one transaction.
func (r *Repository) DeleteRelationships(ctx context.Context, ids []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, id := range ids {
		result, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting relationship %s: %w", id, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("relationship %s: %w", id, ports.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing relationship delete: %w", err)
	}
	return nil
}

// DeleteRelationshipsByPerson deletes all edges touching a person.
func (r *Repository) DeleteRelationshipsByPerson(ctx context.Context, personID string) (int, error) {
	query := `DELETE FROM relationships WHERE source_person_id = ? OR target_person_id = ?`
	result, err := r.db.ExecContext(ctx, query, personID, personID)
	if err != nil {
		return 0, fmt.Errorf("deleting person relationships: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// queryRelationships is a helper to execute relationship queries.
func (r *Repository) queryRelationships(ctx context.Context, query string, args ...any) ([]entities.Relationship, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]entities.Relationship, 0)
	for rows.Next() {
		var rel entities.Relationship
		var relType string

		if err := rows.Scan(
			&rel.ID,
			&rel.SourcePersonID,
			&rel.TargetPersonID,
			&relType,
			&rel.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rel.Type = entities.RelationType(relType)
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}

// Audit log operations

// LogAction logs an action to the audit log.
func (r *Repository) LogAction(ctx context.Context, action, personID string, details map[string]any) error {
	var detailsJSON sql.NullString
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(data), Valid: true}
	}

	var personIDPtr sql.NullString
	if personID != "" {
		personIDPtr = sql.NullString{String: personID, Valid: true}
	}

	query := `INSERT INTO audit_log (action, person_id, details, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, action, personIDPtr, detailsJSON, timeNow())
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindAuditLog finds audit log entries for a person, newest first.
func (r *Repository) FindAuditLog(ctx context.Context, personID string) ([]entities.AuditEntry, error) {
	query := `
		SELECT id, action, person_id, details, created_at
		FROM audit_log
		WHERE person_id = ?
		ORDER BY id DESC
	`
	return r.queryAuditLog(ctx, query, personID)
}

// FindAuditLogByAction finds audit log entries by action type, newest first.
func (r *Repository) FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `
		SELECT id, action, person_id, details, created_at
		FROM audit_log
		WHERE action = ?
		ORDER BY id DESC
		LIMIT ?
	`
	return r.queryAuditLog(ctx, query, action, limit)
}

// queryAuditLog is a helper to execute audit log queries.
func (r *Repository) queryAuditLog(ctx context.Context, query string, args ...any) ([]entities.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []entities.AuditEntry
	for rows.Next() {
		var entry entities.AuditEntry
		var personID, details sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&personID,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		entry.PersonID = personID.String

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
