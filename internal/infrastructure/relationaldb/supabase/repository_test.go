package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// fakeRest is a tiny in-memory PostgREST covering the filters the repository uses.
type fakeRest struct {
	mu       sync.Mutex
	tables   map[string][]map[string]any
	auditSeq int
	requests int
	fail     bool
	url      string
	lastOr   string
}

func newFakeRest() *fakeRest {
	return &fakeRest{tables: make(map[string][]map[string]any)}
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if f.fail {
		writeError(w, http.StatusServiceUnavailable, "XX000", "upstream unavailable")
		return
	}

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	query := r.URL.Query()
	if or := query.Get("or"); or != "" {
		f.lastOr = or
	}

	switch r.Method {
	case http.MethodGet:
		rows := f.filter(table, query)
		writeJSON(w, http.StatusOK, rows)
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		var incoming []map[string]any
		if strings.HasPrefix(strings.TrimSpace(string(body)), "[") {
			_ = json.Unmarshal(body, &incoming)
		} else {
			var one map[string]any
			_ = json.Unmarshal(body, &one)
			incoming = []map[string]any{one}
		}
		upsert := strings.Contains(r.Header.Get("Prefer"), "merge-duplicates")
		if err := f.insert(table, incoming, upsert); err != nil {
			writeError(w, http.StatusConflict, "23505", err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		matched := f.filter(table, query)
		drop := make(map[string]bool, len(matched))
		for _, row := range matched {
			drop[rowKey(row)] = true
		}
		kept := f.tables[table][:0]
		for _, row := range f.tables[table] {
			if !drop[rowKey(row)] {
				kept = append(kept, row)
			}
		}
		f.tables[table] = kept
		writeJSON(w, http.StatusOK, matched)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeRest) insert(table string, rows []map[string]any, upsert bool) error {
	for _, row := range rows {
		for _, existing := range f.tables[table] {
			if table == tablePersons && sameKey(existing, row) && !upsert {
				return fmt.Errorf("duplicate key value violates unique constraint %q", "kin_persons_pkey")
			}
			if table == tableRelationships &&
				existing["tree"] == row["tree"] &&
				existing["source_person_id"] == row["source_person_id"] &&
				existing["target_person_id"] == row["target_person_id"] {
				return fmt.Errorf("duplicate key value violates unique constraint %q", "kin_relationships_pair")
			}
		}
	}

	for _, row := range rows {
		if table == tableAudit {
			f.auditSeq++
			row["id"] = float64(f.auditSeq)
		}
		replaced := false
		if upsert {
			for i, existing := range f.tables[table] {
				if sameKey(existing, row) {
					f.tables[table][i] = row
					replaced = true
				}
			}
		}
		if !replaced {
			f.tables[table] = append(f.tables[table], row)
		}
	}
	return nil
}

// sameKey compares rows by primary key; persons are keyed per tree.
func sameKey(a, b map[string]any) bool {
	if _, ok := a["first_name"]; ok {
		return a["tree"] == b["tree"] && a["id"] == b["id"]
	}
	return a["id"] == b["id"]
}

func rowKey(row map[string]any) string {
	return fmt.Sprint(row["tree"], "/", row["id"])
}

// splitLogic splits a PostgREST logic filter on commas outside double quotes.
func splitLogic(expr string) []string {
	var parts []string
	var cur strings.Builder
	quoted, escaped := false, false
	for _, c := range expr {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quoted:
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	return append(parts, cur.String())
}

func (f *fakeRest) filter(table string, query map[string][]string) []map[string]any {
	result := make([]map[string]any, 0)
	for _, row := range f.tables[table] {
		if matches(row, query) {
			result = append(result, row)
		}
	}

	if order := first(query["order"]); order != "" {
		keys := strings.Split(order, ",")
		sort.SliceStable(result, func(i, j int) bool {
			for _, key := range keys {
				parts := strings.Split(key, ".")
				a, b := fmt.Sprint(result[i][parts[0]]), fmt.Sprint(result[j][parts[0]])
				if fa, ok := result[i][parts[0]].(float64); ok {
					fb, _ := result[j][parts[0]].(float64)
					a, b = fmt.Sprintf("%020.0f", fa), fmt.Sprintf("%020.0f", fb)
				}
				if a == b {
					continue
				}
				if len(parts) > 1 && parts[1] == "desc" {
					return a > b
				}
				return a < b
			}
			return false
		})
	}

	if limit := first(query["limit"]); limit != "" {
		var n int
		_, _ = fmt.Sscanf(limit, "%d", &n)
		if n < len(result) {
			result = result[:n]
		}
	}
	return result
}

func matches(row map[string]any, query map[string][]string) bool {
	for key, values := range query {
		value := first(values)
		switch key {
		case "select", "order", "limit", "on_conflict":
			continue
		case "or":
			hit := false
			for _, clause := range splitLogic(strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")) {
				parts := strings.SplitN(clause, ".", 3)
				if len(parts) == 3 && parts[1] == "eq" && fmt.Sprint(row[parts[0]]) == parts[2] {
					hit = true
				}
			}
			if !hit {
				return false
			}
		default:
			op, arg, _ := strings.Cut(value, ".")
			cell := fmt.Sprint(row[key])
			if f, ok := row[key].(float64); ok {
				cell = fmt.Sprintf("%.0f", f)
			}
			switch op {
			case "eq":
				if cell != arg {
					return false
				}
			case "in":
				found := false
				for _, v := range strings.Split(strings.Trim(arg, "()"), ",") {
					if strings.Trim(v, `"`) == cell {
						found = true
					}
				}
				if !found {
					return false
				}
			}
		}
	}
	return true
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// setupRepo returns a repository talking to a fake PostgREST with deterministic ids.
func setupRepo(t *testing.T, cfg config.SupabaseConfig) (*Repository, *fakeRest) {
	t.Helper()

	fake := newFakeRest()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	fake.url = server.URL

	origNow, origID := timeNow, newID
	counter := 0
	timeNow = func() time.Time { return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC) }
	newID = func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}
	t.Cleanup(func() { timeNow, newID = origNow, origID })

	cfg.URL = server.URL
	cfg.Key = "service-role-key"
	repo, err := NewRepository(cfg, "lees", zap.NewNop())
	require.NoError(t, err)
	return repo, fake
}

func seedPersons(t *testing.T, repo *Repository, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, repo.SavePerson(context.Background(), &entities.Person{
			ID:        id,
			FirstName: id,
			LastName:  "Lee",
			Gender:    entities.GenderOther,
		}))
	}
}

func TestNewRepository(t *testing.T) {
	_, err := NewRepository(config.SupabaseConfig{}, "lees", zap.NewNop())
	assert.Error(t, err)

	_, err = NewRepository(config.SupabaseConfig{URL: "http://localhost", Key: "k"}, "", zap.NewNop())
	assert.Error(t, err)
}

func TestRepository_EnsureSchema(t *testing.T) {
	repo, fake := setupRepo(t, config.SupabaseConfig{})
	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.Equal(t, 3, fake.requests)
}

func TestRepository_Persons(t *testing.T) {
	repo, _ := setupRepo(t, config.SupabaseConfig{})
	ctx := context.Background()

	birth := entities.NewDate(1950, time.March, 14)
	ann := &entities.Person{FirstName: "Ann", LastName: "Lee", BirthDate: &birth, Gender: entities.GenderFemale}
	require.NoError(t, repo.SavePerson(ctx, ann))
	assert.Equal(t, "id-1", ann.ID)

	found, err := repo.FindPersonByID(ctx, ann.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Ann Lee", found.FullName())
	require.NotNil(t, found.BirthDate)
	assert.Equal(t, "1950-03-14", found.BirthDate.String())
	assert.Nil(t, found.DeathDate)

	missing, err := repo.FindPersonByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ann.LastName = "Hart"
	require.NoError(t, repo.SavePerson(ctx, ann))
	seedPersons(t, repo, "ben")

	all, err := repo.ListPersons(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Hart", all[0].LastName)

	byIDs, err := repo.FindPersonsByIDs(ctx, []string{"ben", ann.ID})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "ben", byIDs[0].ID)

	_, err = repo.FindPersonsByIDs(ctx, []string{"ben", "ghost"})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, repo.DeletePerson(ctx, "ben"))
	assert.ErrorIs(t, repo.DeletePerson(ctx, "ben"), ports.ErrNotFound)
}

func TestRepository_Relationships(t *testing.T) {
	repo, _ := setupRepo(t, config.SupabaseConfig{})
	ctx := context.Background()
	seedPersons(t, repo, "ann", "ben", "carl")

	primary, reciprocal, err := repo.InsertRelationshipPair(ctx, "ann", "ben", entities.RelationParent)
	require.NoError(t, err)

	rel, err := repo.FindRelationshipByID(ctx, reciprocal)
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, entities.RelationChild, rel.Type)
	assert.Equal(t, "ben", rel.SourcePersonID)

	t.Run("pair conflict writes nothing", func(t *testing.T) {
		_, _, err := repo.InsertRelationshipPair(ctx, "ben", "ann", entities.RelationSpouse)
		assert.ErrorIs(t, err, ports.ErrConflict)

		rels, err := repo.ListRelationships(ctx)
		require.NoError(t, err)
		assert.Len(t, rels, 2)
	})

	t.Run("single insert and lookup by person", func(t *testing.T) {
		id, err := repo.InsertRelationship(ctx, "carl", "ann", entities.RelationSibling)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		rels, err := repo.FindRelationshipsByPerson(ctx, "ann")
		require.NoError(t, err)
		assert.Len(t, rels, 3)

		_, err = repo.InsertRelationship(ctx, "carl", "ann", entities.RelationSpouse)
		assert.ErrorIs(t, err, ports.ErrConflict)
	})

	t.Run("delete pair reports missing", func(t *testing.T) {
		require.NoError(t, repo.DeleteRelationships(ctx, []string{primary, reciprocal}))
		assert.ErrorIs(t, repo.DeleteRelationships(ctx, []string{primary}), ports.ErrNotFound)
		assert.ErrorIs(t, repo.DeleteRelationship(ctx, primary), ports.ErrNotFound)
	})

	t.Run("delete by person", func(t *testing.T) {
		removed, err := repo.DeleteRelationshipsByPerson(ctx, "carl")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})
}

func TestRepository_SameIDInTwoTrees(t *testing.T) {
	lees, fake := setupRepo(t, config.SupabaseConfig{})
	ctx := context.Background()

	harts, err := NewRepository(config.SupabaseConfig{URL: fake.url, Key: "service-role-key"}, "harts", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, lees.SavePerson(ctx, &entities.Person{ID: "ann", FirstName: "Ann", LastName: "Lee", Gender: entities.GenderFemale}))
	require.NoError(t, harts.SavePerson(ctx, &entities.Person{ID: "ann", FirstName: "Ann", LastName: "Hart", Gender: entities.GenderFemale}))

	inLees, err := lees.FindPersonByID(ctx, "ann")
	require.NoError(t, err)
	require.NotNil(t, inLees, "saving in another tree must not move the person")
	assert.Equal(t, "Lee", inLees.LastName)

	inHarts, err := harts.FindPersonByID(ctx, "ann")
	require.NoError(t, err)
	require.NotNil(t, inHarts)
	assert.Equal(t, "Hart", inHarts.LastName)
}

func TestTouchesPerson(t *testing.T) {
	assert.Equal(t,
		`source_person_id.eq."ann",target_person_id.eq."ann"`,
		touchesPerson("ann"))
	assert.Equal(t,
		`source_person_id.eq."x,type.eq.spouse",target_person_id.eq."x,type.eq.spouse"`,
		touchesPerson("x,type.eq.spouse"))
	assert.Equal(t, `"a\"b\\c"`, quoteFilterValue(`a"b\c`))
}

func TestRepository_ReservedCharactersInPersonID(t *testing.T) {
	repo, fake := setupRepo(t, config.SupabaseConfig{})
	ctx := context.Background()
	odd := "x,type.eq.spouse"
	seedPersons(t, repo, "ann", "bob", "carl", odd)

	_, _, err := repo.InsertRelationshipPair(ctx, "ann", "bob", entities.RelationSpouse)
	require.NoError(t, err)
	_, _, err = repo.InsertRelationshipPair(ctx, odd, "carl", entities.RelationSibling)
	require.NoError(t, err)

	rels, err := repo.FindRelationshipsByPerson(ctx, odd)
	require.NoError(t, err)
	assert.Len(t, rels, 2, "unrelated spouse edges must not match")
	assert.Equal(t, `(source_person_id.eq."x,type.eq.spouse",target_person_id.eq."x,type.eq.spouse")`, fake.lastOr)

	removed, err := repo.DeleteRelationshipsByPerson(ctx, odd)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := repo.ListRelationships(ctx)
	require.NoError(t, err)
	assert.Len(t, left, 2, "the spouse pair survives")
}

func TestRepository_AuditLog(t *testing.T) {
	repo, _ := setupRepo(t, config.SupabaseConfig{})
	ctx := context.Background()

	require.NoError(t, repo.LogAction(ctx, entities.AuditRelationshipCreated, "ann", map[string]any{"type": "parent"}))
	require.NoError(t, repo.LogAction(ctx, entities.AuditRelationshipDeleted, "ann", nil))
	require.NoError(t, repo.LogAction(ctx, entities.AuditRelationshipCreated, "", nil))

	entries, err := repo.FindAuditLog(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entities.AuditRelationshipDeleted, entries[0].Action)
	assert.Equal(t, "parent", entries[1].Details["type"])

	entries, err = repo.FindAuditLogByAction(ctx, entities.AuditRelationshipCreated, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].PersonID)
}

func TestRepository_CircuitBreaker(t *testing.T) {
	repo, fake := setupRepo(t, config.SupabaseConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
	ctx := context.Background()
	fake.fail = true

	for i := 0; i < 2; i++ {
		_, err := repo.ListPersons(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := repo.ListPersons(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, fake.requests, "open breaker must not reach the server")
}

func TestRepository_NotFoundDoesNotTripBreaker(t *testing.T) {
	repo, fake := setupRepo(t, config.SupabaseConfig{FailureThreshold: 1, OpenTimeout: time.Minute})
	ctx := context.Background()

	assert.ErrorIs(t, repo.DeletePerson(ctx, "ghost"), ports.ErrNotFound)
	seedPersons(t, repo, "ann")
	assert.Equal(t, 2, fake.requests)
}

func TestRepository_CanceledContext(t *testing.T) {
	repo, fake := setupRepo(t, config.SupabaseConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListPersons(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fake.requests)
}
