package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

func TestResolveTree(t *testing.T) {
	one := &config.TreesConfig{Trees: map[string]config.TreeEntry{
		"lee": {Key: "lee"},
	}}
	two := &config.TreesConfig{Trees: map[string]config.TreeEntry{
		"lee":  {Key: "lee"},
		"hart": {Key: "hart"},
	}}
	none := &config.TreesConfig{}

	tests := []struct {
		name    string
		trees   *config.TreesConfig
		flag    string
		want    string
		wantErr string
	}{
		{name: "single tree is the default", trees: one, want: "lee"},
		{name: "named tree", trees: two, flag: "hart", want: "hart"},
		{name: "unknown tree", trees: two, flag: "moss", wantErr: `tree "moss" not found`},
		{name: "ambiguous", trees: two, wantErr: "pick one with --tree"},
		{name: "no trees", trees: none, wantErr: "no trees configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTree(tt.trees, tt.flag)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddTree(t *testing.T) {
	trees := &config.TreesConfig{}

	key, err := addTree(trees, "Lee Family", "Dad's side")
	require.NoError(t, err)
	assert.Equal(t, "lee_family", key)
	assert.Equal(t, "Dad's side", trees.Trees["Lee Family"].Description)

	_, err = addTree(trees, "Lee Family", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = addTree(trees, "lee-family", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `already uses key "lee_family"`)
}

func TestMergeMemberInput(t *testing.T) {
	born := entities.NewDate(1950, time.March, 14)
	stored := entities.Person{
		ID:         "ann",
		FirstName:  "Ann",
		LastName:   "Lee",
		BirthDate:  &born,
		Gender:     entities.GenderFemale,
		BirthPlace: "Leeds",
	}

	cmd := newMembersEditCmd()
	require.NoError(t, cmd.Flags().Set("died", "2020"))
	require.NoError(t, cmd.Flags().Set("last", "Hart"))

	input := mergeMemberInput(cmd, stored, memberFlags{died: "2020", last: "Hart", first: "ignored"})

	assert.Equal(t, "Ann", input.FirstName, "unset flags keep the stored value")
	assert.Equal(t, "Hart", input.LastName)
	assert.Equal(t, "1950-03-14", input.BirthDate)
	assert.Equal(t, "2020", input.DeathDate)
	assert.Equal(t, "female", input.Gender)
	assert.Equal(t, "Leeds", input.BirthPlace)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmno", 10))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

func TestSQLitePath(t *testing.T) {
	one := &config.TreesConfig{Trees: map[string]config.TreeEntry{"lee": {Key: "lee"}}}
	two := &config.TreesConfig{Trees: map[string]config.TreeEntry{
		"lee":  {Key: "lee"},
		"hart": {Key: "hart"},
	}}

	tests := []struct {
		name    string
		path    string
		trees   *config.TreesConfig
		want    string
		wantErr string
	}{
		{name: "per tree default", trees: two, want: config.SQLitePathForTree("/base", "lee")},
		{name: "explicit with one tree", path: "/data/kin.db", trees: one, want: "/data/kin.db"},
		{name: "explicit shared by two trees", path: "/data/kin.db", trees: two, wantErr: "2 trees are configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sqlitePath("/base", config.SQLiteConfig{Path: tt.path}, tt.trees, "lee")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Clean(tt.want), got)
		})
	}
}
