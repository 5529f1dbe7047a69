package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/services"
)

// writeFile writes content to name inside a temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestImportHandler_Handle_JSONFile(t *testing.T) {
	h := newTestHandlers()

	path := writeFile(t, "family.json", `[
		{"id": "ann", "first_name": "Ann", "last_name": "Lee", "birth_date": "1950", "gender": "female"},
		{"id": "ben", "first_name": "Ben", "last_name": "Lee", "birth_date": "1980",
		 "relations": [{"role": "parent", "person_id": "ann"}]}
	]`)

	result, err := h.imports.Handle(context.Background(), path, ImportOptions{
		OnConflict: services.ConflictOverwrite,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.RelationshipsCreated)
	assert.Empty(t, result.Errors)
	assert.Len(t, h.store.Relationships, 2)
}

func TestImportHandler_Handle_CSVFile(t *testing.T) {
	h := newTestHandlers()

	path := writeFile(t, "family.csv", "id,first_name,last_name,birth_date,parent\n"+
		"ann,Ann,Lee,1950,\n"+
		"ben,Ben,Lee,1980,ann\n")

	result, err := h.imports.Handle(context.Background(), path, ImportOptions{
		OnConflict: services.ConflictOverwrite,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.RelationshipsCreated)
}

func TestImportHandler_Handle_ExplicitFormat(t *testing.T) {
	h := newTestHandlers()

	path := writeFile(t, "family.txt", `[{"first_name": "Ann"}]`)

	result, err := h.imports.Handle(context.Background(), path, ImportOptions{Format: "json"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestImportHandler_Handle_DryRun(t *testing.T) {
	h := newTestHandlers()

	path := writeFile(t, "family.json", `[{"id": "ann", "first_name": "Ann"}]`)

	result, err := h.imports.Handle(context.Background(), path, ImportOptions{Format: "auto", DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Empty(t, h.store.Persons)
}

func TestImportHandler_Handle_EmptyFile(t *testing.T) {
	h := newTestHandlers()

	path := writeFile(t, "family.json", `[]`)

	result, err := h.imports.Handle(context.Background(), path, ImportOptions{})

	require.NoError(t, err)
	assert.Zero(t, result.Imported)
}

func TestImportHandler_Handle_Errors(t *testing.T) {
	h := newTestHandlers()

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, "family.xml", "<family/>")
		_, err := h.imports.Handle(context.Background(), path, ImportOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})

	t.Run("unsupported explicit format", func(t *testing.T) {
		_, err := h.imports.Handle(context.Background(), "family.json", ImportOptions{Format: "gedcom"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := h.imports.Handle(context.Background(), filepath.Join(t.TempDir(), "none.json"), ImportOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "opening file")
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeFile(t, "family.json", `{not json`)
		_, err := h.imports.Handle(context.Background(), path, ImportOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing file")
	})
}
