// Package postgres provides a PostgreSQL implementation of the ports.Store
// interface. Several family trees share one database, scoped by a tree key.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DBPool abstracts the pgxpool.Pool methods the repository needs so tests
// can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// newID returns a new UUID string (can be mocked in tests).
var newID = func() string { return uuid.New().String() }

// Repository implements ports.Store and ports.RelationshipPairWriter using Postgres.
type Repository struct {
	pool   DBPool
	tree   string
	logger *zap.Logger
}

var (
	_ ports.Store                  = (*Repository)(nil)
	_ ports.RelationshipPairWriter = (*Repository)(nil)
)

// Connect opens a pgx pool from cfg and returns a repository scoped to tree.
func Connect(ctx context.Context, cfg config.PostgresConfig, tree string, logger *zap.Logger) (*Repository, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres url is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	repo, err := New(ctx, pool, tree, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// New wraps an existing pool after checking it is reachable.
func New(ctx context.Context, pool DBPool, tree string, logger *zap.Logger) (*Repository, error) {
	if tree == "" {
		return nil, errors.New("tree key is required")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	logger.Debug("connected to postgres", zap.String("tree", tree))
	return &Repository{pool: pool, tree: tree, logger: logger}, nil
}

// Close closes the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kin_persons (
	tree TEXT NOT NULL,
	id TEXT NOT NULL,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL DEFAULT '',
	birth_date DATE,
	death_date DATE,
	gender TEXT NOT NULL DEFAULT 'other',
	birth_place TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tree, id)
);
CREATE INDEX IF NOT EXISTS idx_kin_persons_tree ON kin_persons(tree, last_name, first_name);

CREATE TABLE IF NOT EXISTS kin_relationships (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	tree TEXT NOT NULL,
	source_person_id TEXT NOT NULL,
	target_person_id TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('parent', 'child', 'spouse', 'sibling')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (source_person_id <> target_person_id),
	UNIQUE (tree, source_person_id, target_person_id),
	FOREIGN KEY (tree, source_person_id) REFERENCES kin_persons(tree, id) ON DELETE CASCADE,
	FOREIGN KEY (tree, target_person_id) REFERENCES kin_persons(tree, id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_kin_relationships_source ON kin_relationships(tree, source_person_id);
CREATE INDEX IF NOT EXISTS idx_kin_relationships_target ON kin_relationships(tree, target_person_id);

CREATE TABLE IF NOT EXISTS kin_audit_log (
	id BIGSERIAL PRIMARY KEY,
	tree TEXT NOT NULL,
	action TEXT NOT NULL,
	person_id TEXT,
	details JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_kin_audit_log_person ON kin_audit_log(tree, person_id);
`

// EnsureSchema creates the tables if they don't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Person operations

// Person IDs are unique within a tree only, so the same ID can be imported
// into several trees sharing the database.
const sqlUpsertPerson = `
	INSERT INTO kin_persons (id, tree, first_name, last_name, birth_date, death_date, gender, birth_place, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (tree, id) DO UPDATE SET
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		birth_date = EXCLUDED.birth_date,
		death_date = EXCLUDED.death_date,
		gender = EXCLUDED.gender,
		birth_place = EXCLUDED.birth_place,
		updated_at = EXCLUDED.updated_at`

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

	tag, err := r.pool.Exec(ctx, sqlUpsertPerson,
		person.ID, r.tree, person.FirstName, person.LastName,
		toPgDate(person.BirthDate), toPgDate(person.DeathDate),
		string(person.Gender), person.BirthPlace, person.CreatedAt, person.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %s not written: %w", person.ID, ports.ErrConflict)
	}
	return nil
}

const personColumns = `id, first_name, last_name, birth_date, death_date, gender, birth_place, created_at, updated_at`

// FindPersonByID finds a person by ID. Returns nil if not found.
func (r *Repository) FindPersonByID(ctx context.Context, id string) (*entities.Person, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM kin_persons WHERE tree = $1 AND id = $2`, r.tree, id)
	person, err := scanPerson(row)
	if errors.Is(err, pgx.ErrNoRows) {
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

	found, err := r.queryPersons(ctx, `SELECT `+personColumns+` FROM kin_persons WHERE tree = $1 AND id = ANY($2)`, r.tree, ids)
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

// ListPersons lists every person in the tree ordered by last name, first name.
func (r *Repository) ListPersons(ctx context.Context) ([]entities.Person, error) {
	return r.queryPersons(ctx, `SELECT `+personColumns+` FROM kin_persons WHERE tree = $1 ORDER BY last_name, first_name, id`, r.tree)
}

// DeletePerson deletes a person by ID. Edges touching the person cascade.
func (r *Repository) DeletePerson(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM kin_persons WHERE tree = $1 AND id = $2`, r.tree, id)
	if err != nil {
		return fmt.Errorf("deleting person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

func (r *Repository) queryPersons(ctx context.Context, query string, args ...any) ([]entities.Person, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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

func scanPerson(row pgx.Row) (*entities.Person, error) {
	var p entities.Person
	var birth, death pgtype.Date
	var gender string

	if err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &birth, &death,
		&gender, &p.BirthPlace, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.BirthDate = fromPgDate(birth)
	p.DeathDate = fromPgDate(death)
	p.Gender = entities.Gender(gender)
	return &p, nil
}

func toPgDate(d *entities.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time, Valid: true}
}

func fromPgDate(d pgtype.Date) *entities.Date {
	if !d.Valid {
		return nil
	}
	date := entities.DateFromTime(d.Time)
	return &date
}

// Relationship operations

const sqlInsertRelationship = `
	INSERT INTO kin_relationships (id, tree, source_person_id, target_person_id, type, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *Repository) insertEdge(ctx context.Context, db execer, fromID, toID string, relType entities.RelationType) (string, error) {
	id := newID()
	_, err := db.Exec(ctx, sqlInsertRelationship, id, r.tree, fromID, toID, string(relType), timeNow())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return "", fmt.Errorf("relationship %s -> %s: %w", fromID, toID, ports.ErrConflict)
	}
	if err != nil {
		return "", fmt.Errorf("saving relationship: %w", err)
	}
	return id, nil
}

// InsertRelationship stores a single directed edge and returns its ID.
func (r *Repository) InsertRelationship(ctx context.Context, fromID, toID string, relType entities.RelationType) (string, error) {
	return r.insertEdge(ctx, r.pool, fromID, toID, relType)
}

// InsertRelationshipPair stores an edge and its reciprocal in one transaction.
func (r *Repository) InsertRelationshipPair(
	ctx context.Context,
	fromID, toID string,
	relType entities.RelationType,
) (primaryID, reciprocalID string, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.Warn("rolling back relationship pair", zap.Error(rbErr))
			}
		}
	}()

	if primaryID, err = r.insertEdge(ctx, tx, fromID, toID, relType); err != nil {
		return "", "", err
	}
	if reciprocalID, err = r.insertEdge(ctx, tx, toID, fromID, relType.Reciprocal()); err != nil {
		return "", "", fmt.Errorf("reciprocal: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return "", "", fmt.Errorf("committing relationship pair: %w", err)
	}
	return primaryID, reciprocalID, nil
}

const relationshipColumns = `id, source_person_id, target_person_id, type, created_at`

// FindRelationshipByID finds an edge by ID. Returns nil if not found.
func (r *Repository) FindRelationshipByID(ctx context.Context, id string) (*entities.Relationship, error) {
	rels, err := r.queryRelationships(ctx,
		`SELECT `+relationshipColumns+` FROM kin_relationships WHERE tree = $1 AND id = $2`, r.tree, id)
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
	return r.queryRelationships(ctx, `
		SELECT `+relationshipColumns+`
		FROM kin_relationships
		WHERE tree = $1 AND (source_person_id = $2 OR target_person_id = $2)
		ORDER BY seq`, r.tree, personID)
}

// ListRelationships returns every edge in the tree in insertion order.
func (r *Repository) ListRelationships(ctx context.Context) ([]entities.Relationship, error) {
	return r.queryRelationships(ctx,
		`SELECT `+relationshipColumns+` FROM kin_relationships WHERE tree = $1 ORDER BY seq`, r.tree)
}

// DeleteRelationship deletes an edge by ID.
func (r *Repository) DeleteRelationship(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM kin_relationships WHERE tree = $1 AND id = $2`, r.tree, id)
	if err != nil {
		return fmt.Errorf("deleting relationship: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relationship %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// DeleteRelationships deletes all the given edges in one transaction.
func (r *Repository) DeleteRelationships(ctx context.Context, ids []string) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.Warn("rolling back relationship delete", zap.Error(rbErr))
			}
		}
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM kin_relationships WHERE tree = $1 AND id = ANY($2)`, r.tree, ids)
	if err != nil {
		return fmt.Errorf("deleting relationships: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("deleting relationships %v: %w", ids, ports.ErrNotFound)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing relationship delete: %w", err)
	}
	return nil
}

// DeleteRelationshipsByPerson deletes all edges touching a person.
func (r *Repository) DeleteRelationshipsByPerson(ctx context.Context, personID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM kin_relationships WHERE tree = $1 AND (source_person_id = $2 OR target_person_id = $2)`,
		r.tree, personID)
	if err != nil {
		return 0, fmt.Errorf("deleting person relationships: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) queryRelationships(ctx context.Context, query string, args ...any) ([]entities.Relationship, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	rels := make([]entities.Relationship, 0)
	for rows.Next() {
		var rel entities.Relationship
		var relType string
		if err := rows.Scan(&rel.ID, &rel.SourcePersonID, &rel.TargetPersonID, &relType, &rel.CreatedAt); err != nil {
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
	var detailsJSON []byte
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		detailsJSON = data
	}

	var personIDArg pgtype.Text
	if personID != "" {
		personIDArg = pgtype.Text{String: personID, Valid: true}
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO kin_audit_log (tree, action, person_id, details, created_at) VALUES ($1, $2, $3, $4, $5)`,
		r.tree, action, personIDArg, detailsJSON, timeNow())
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindAuditLog finds audit log entries for a person, newest first.
func (r *Repository) FindAuditLog(ctx context.Context, personID string) ([]entities.AuditEntry, error) {
	return r.queryAuditLog(ctx, `
		SELECT id, action, person_id, details, created_at
		FROM kin_audit_log
		WHERE tree = $1 AND person_id = $2
		ORDER BY id DESC`, r.tree, personID)
}

// FindAuditLogByAction finds audit log entries by action type, newest first.
func (r *Repository) FindAuditLogByAction(ctx context.Context, action string, limit int) ([]entities.AuditEntry, error) {
	var limitArg pgtype.Int8
	if limit > 0 {
		limitArg = pgtype.Int8{Int64: int64(limit), Valid: true}
	}
	return r.queryAuditLog(ctx, `
		SELECT id, action, person_id, details, created_at
		FROM kin_audit_log
		WHERE tree = $1 AND action = $2
		ORDER BY id DESC
		LIMIT $3`, r.tree, action, limitArg)
}

func (r *Repository) queryAuditLog(ctx context.Context, query string, args ...any) ([]entities.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []entities.AuditEntry
	for rows.Next() {
		var entry entities.AuditEntry
		var personID pgtype.Text
		var details []byte

		if err := rows.Scan(&entry.ID, &entry.Action, &personID, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entry.PersonID = personID.String

		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
