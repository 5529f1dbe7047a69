package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

func TestRelationshipService_Create_ParentAndChildViews(t *testing.T) {
	store := family()
	service := newRelationshipService(store)
	ctx := context.Background()

	result, err := service.Create(ctx, "ann", "ben", entities.RelationParent)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RelationshipID)
	assert.NotEmpty(t, result.ReciprocalID)
	assert.Len(t, store.Relationships, 2)

	annView, err := service.ResolvePerspective(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, []entities.PerspectiveRelation{
		{ID: result.RelationshipID, Type: entities.RelationChild, PersonID: "ben"},
	}, annView)

	benView, err := service.ResolvePerspective(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, []entities.PerspectiveRelation{
		{ID: result.ReciprocalID, Type: entities.RelationParent, PersonID: "ann"},
	}, benView)
}

func TestRelationshipService_Create_ReversedParentRejected(t *testing.T) {
	store := family()
	service := newRelationshipService(store)

	_, err := service.Create(context.Background(), "ben", "ann", entities.RelationParent)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Error(), "parent cannot be younger than or same age as child")
	assert.Contains(t, validationErr.Error(), "Ben Lee (born 1980)")
	assert.Zero(t, store.InsertCalls)
}

func TestRelationshipService_Create_SecondRelationshipRejected(t *testing.T) {
	store := family()
	service := newRelationshipService(store)
	ctx := context.Background()

	_, err := service.Create(ctx, "ann", "ben", entities.RelationParent)
	require.NoError(t, err)
	calls := store.InsertCalls

	attempts := []struct {
		from, to string
		relType  entities.RelationType
	}{
		{"ann", "ben", entities.RelationSpouse},
		{"ann", "ben", entities.RelationParent},
		{"ben", "ann", entities.RelationSibling},
		{"ben", "ann", entities.RelationChild},
	}

	for _, a := range attempts {
		t.Run(fmt.Sprintf("%s %s %s", a.from, a.relType, a.to), func(t *testing.T) {
			_, err := service.Create(ctx, a.from, a.to, a.relType)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Error(), "already related")
		})
	}
	assert.Equal(t, calls, store.InsertCalls, "rejected writes never reach the store")
}

func TestRelationshipService_Create_ReciprocalSymmetry(t *testing.T) {
	tests := []struct {
		relType  entities.RelationType
		fromSees entities.RelationType
		toSees   entities.RelationType
	}{
		{entities.RelationParent, entities.RelationChild, entities.RelationParent},
		{entities.RelationChild, entities.RelationParent, entities.RelationChild},
		{entities.RelationSpouse, entities.RelationSpouse, entities.RelationSpouse},
		{entities.RelationSibling, entities.RelationSibling, entities.RelationSibling},
	}

	stores := map[string]func() ports.Store{
		"sequential": func() ports.Store { return family() },
		"pair":       func() ports.Store { return pairFamily() },
	}

	for name, newStore := range stores {
		for _, tt := range tests {
			t.Run(name+"/"+string(tt.relType), func(t *testing.T) {
				service := newRelationshipService(newStore())
				ctx := context.Background()

				from, to := "ben", "carl"
				if tt.relType == entities.RelationChild {
					from, to = "carl", "ben"
				}

				_, err := service.Create(ctx, from, to, tt.relType)
				require.NoError(t, err)

				fromView, err := service.ResolvePerspective(ctx, from)
				require.NoError(t, err)
				require.Len(t, fromView, 1)
				assert.Equal(t, to, fromView[0].PersonID)
				assert.Equal(t, tt.fromSees, fromView[0].Type)

				toView, err := service.ResolvePerspective(ctx, to)
				require.NoError(t, err)
				require.Len(t, toView, 1)
				assert.Equal(t, from, toView[0].PersonID)
				assert.Equal(t, tt.toSees, toView[0].Type)
			})
		}
	}
}

func TestRelationshipService_Create_WarningsPassThrough(t *testing.T) {
	service := newRelationshipService(family())

	result, err := service.Create(context.Background(), "eve", "finn", entities.RelationParent)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Eve Lee and Finn Lee")
}

func TestRelationshipService_Create_PrimaryFailure(t *testing.T) {
	store := family()
	store.InsertErrs = []error{errors.New("connection reset")}
	service := newRelationshipService(store)

	_, err := service.Create(context.Background(), "ann", "ben", entities.RelationParent)
	require.Error(t, err)

	var partial *PartialWriteError
	assert.False(t, errors.As(err, &partial))
	assert.Equal(t, 1, store.InsertCalls, "no reciprocal insert after a failed primary")
	assert.Empty(t, store.Relationships)
}

func TestRelationshipService_Create_ReciprocalRetried(t *testing.T) {
	store := family()
	store.InsertErrs = []error{nil, errors.New("timeout")}
	service := newRelationshipService(store)

	result, err := service.Create(context.Background(), "ann", "ben", entities.RelationParent)
	require.NoError(t, err)
	assert.Equal(t, 3, store.InsertCalls)
	assert.Len(t, store.Relationships, 2)
	assert.NotEmpty(t, result.ReciprocalID)
}

func TestRelationshipService_Create_PartialWrite(t *testing.T) {
	boom := errors.New("timeout")
	store := family()
	store.InsertErrs = []error{nil, boom, boom, boom}
	service := newRelationshipService(store)

	_, err := service.Create(context.Background(), "ann", "ben", entities.RelationParent)

	var partial *PartialWriteError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, boom)
	require.Len(t, store.Relationships, 1, "primary edge stays in place")
	assert.Equal(t, store.Relationships[0].ID, partial.PrimaryID)
	assert.Equal(t, 4, store.InsertCalls, "one primary plus three reciprocal attempts")

	entries, err := store.FindAuditLogByAction(context.Background(), entities.AuditPartialWrite, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, partial.PrimaryID, entries[0].Details["relationship_id"])
}

func TestRelationshipService_Create_ReciprocalConflictNotRetried(t *testing.T) {
	store := family()
	store.InsertErrs = []error{nil, fmt.Errorf("duplicate: %w", ports.ErrConflict)}
	service := newRelationshipService(store)

	_, err := service.Create(context.Background(), "ann", "ben", entities.RelationParent)

	var partial *PartialWriteError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, ports.ErrConflict)
	assert.Equal(t, 2, store.InsertCalls)
}

func TestRelationshipService_Create_PairStore(t *testing.T) {
	store := pairFamily()
	service := newRelationshipService(store)
	ctx := context.Background()

	result, err := service.Create(ctx, "ann", "ben", entities.RelationParent)
	require.NoError(t, err)
	assert.Zero(t, store.InsertCalls, "pair writes bypass the single insert")
	assert.Len(t, store.Relationships, 2)
	assert.NotEmpty(t, result.ReciprocalID)

	t.Run("store conflict surfaces as ErrConflict", func(t *testing.T) {
		store.PairErr = fmt.Errorf("unique violation: %w", ports.ErrConflict)
		defer func() { store.PairErr = nil }()

		_, err := service.Create(ctx, "carl", "dana", entities.RelationSibling)
		assert.ErrorIs(t, err, ports.ErrConflict)
	})
}

func TestRelationshipService_Validate(t *testing.T) {
	service := newRelationshipService(family())
	ctx := context.Background()

	t.Run("missing birth dates warn once", func(t *testing.T) {
		result, err := service.Validate(ctx, "eve", "finn", entities.RelationParent)
		require.NoError(t, err)
		assert.Empty(t, result.Errors)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("unknown person", func(t *testing.T) {
		_, err := service.Validate(ctx, "ann", "ghost", entities.RelationSpouse)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("empty id", func(t *testing.T) {
		result, err := service.Validate(ctx, "", "ann", entities.RelationSpouse)
		require.NoError(t, err)
		assert.False(t, result.OK())
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := service.Validate(ctx, "ben", "ann", entities.RelationParent)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			again, err := service.Validate(ctx, "ben", "ann", entities.RelationParent)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})
}

func TestRelationshipService_ResolvePerspective_StoreFailure(t *testing.T) {
	store := family()
	store.Err = errors.New("database unavailable")
	service := newRelationshipService(store)

	relations, err := service.ResolvePerspective(context.Background(), "ann")
	require.Error(t, err)
	assert.NotNil(t, relations)
	assert.Empty(t, relations)
}

func TestRelationshipService_ResolvePerspective_UnknownPerson(t *testing.T) {
	service := newRelationshipService(family())

	_, err := service.ResolvePerspective(context.Background(), "ghost")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRelationshipService_ResolveAll(t *testing.T) {
	service := newRelationshipService(family())
	ctx := context.Background()

	_, err := service.Create(ctx, "ann", "ben", entities.RelationParent)
	require.NoError(t, err)

	views, err := service.ResolveAll(ctx)
	require.NoError(t, err)
	assert.Len(t, views, 6)
	assert.Len(t, views["ann"], 1)
	assert.Empty(t, views["eve"])
}

func TestRelationshipService_ResolveDirection(t *testing.T) {
	service := newRelationshipService(family())

	d, err := service.ResolveDirection("ben", "ann", entities.RelationParent)
	require.NoError(t, err)
	assert.Equal(t, kinship.Direction{
		From: "ann", To: "ben", Type: entities.RelationParent, SelectedMemberRole: entities.RelationParent,
	}, d)

	_, err = service.ResolveDirection("ben", "ann", entities.RelationType("cousin"))
	assert.ErrorIs(t, err, entities.ErrInvalidRelationType)
}

func TestRelationshipService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("cascades to the mirror edge", func(t *testing.T) {
		store := family()
		service := newRelationshipService(store)
		created, err := service.Create(ctx, "ann", "ben", entities.RelationParent)
		require.NoError(t, err)

		result, err := service.Delete(ctx, created.RelationshipID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{created.RelationshipID, created.ReciprocalID}, result.DeletedIDs)
		assert.Empty(t, store.Relationships)

		benView, err := service.ResolvePerspective(ctx, "ben")
		require.NoError(t, err)
		assert.Empty(t, benView)
	})

	t.Run("deleting the reciprocal also removes the primary", func(t *testing.T) {
		store := family()
		service := newRelationshipService(store)
		created, err := service.Create(ctx, "carl", "dana", entities.RelationSibling)
		require.NoError(t, err)

		_, err = service.Delete(ctx, created.ReciprocalID)
		require.NoError(t, err)
		assert.Empty(t, store.Relationships)
	})

	t.Run("without cascade only the named edge goes", func(t *testing.T) {
		store := family()
		opts := DefaultRelationshipOptions()
		opts.CascadeDelete = false
		service := NewRelationshipService(store, opts, zap.NewNop())
		created, err := service.Create(ctx, "ann", "ben", entities.RelationParent)
		require.NoError(t, err)

		result, err := service.Delete(ctx, created.RelationshipID)
		require.NoError(t, err)
		assert.Equal(t, []string{created.RelationshipID}, result.DeletedIDs)
		require.Len(t, store.Relationships, 1)
		assert.Equal(t, created.ReciprocalID, store.Relationships[0].ID)
	})

	t.Run("pair store deletes both at once", func(t *testing.T) {
		store := pairFamily()
		service := newRelationshipService(store)
		created, err := service.Create(ctx, "ann", "ben", entities.RelationSpouse)
		require.NoError(t, err)

		store.PairErr = errors.New("tx aborted")
		_, err = service.Delete(ctx, created.RelationshipID)
		require.Error(t, err)
		assert.Len(t, store.Relationships, 2, "failed pair delete leaves both edges")

		store.PairErr = nil
		_, err = service.Delete(ctx, created.RelationshipID)
		require.NoError(t, err)
		assert.Empty(t, store.Relationships)
	})

	t.Run("missing edge", func(t *testing.T) {
		service := newRelationshipService(family())
		_, err := service.Delete(ctx, "rel-404")
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("audit entry", func(t *testing.T) {
		store := family()
		service := newRelationshipService(store)
		created, err := service.Create(ctx, "ann", "ben", entities.RelationParent)
		require.NoError(t, err)
		_, err = service.Delete(ctx, created.RelationshipID)
		require.NoError(t, err)

		entries, err := store.FindAuditLog(ctx, "ann")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, entities.AuditRelationshipDeleted, entries[0].Action)
		assert.Equal(t, entities.AuditRelationshipCreated, entries[1].Action)
	})
}
