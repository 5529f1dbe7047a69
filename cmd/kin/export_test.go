package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/infrastructure/parsers"
)

func exportFixture() ([]entities.Person, []entities.Relationship) {
	born := entities.NewDate(1950, time.March, 14)
	persons := []entities.Person{
		{ID: "ann", FirstName: "Ann", LastName: "Lee", BirthDate: &born, Gender: entities.GenderFemale, BirthPlace: "Leeds"},
		{ID: "ben", FirstName: "Ben", LastName: "Lee", Gender: entities.GenderMale},
		{ID: "cara", FirstName: "Cara", LastName: "Lee", Gender: entities.GenderFemale},
	}
	rels := []entities.Relationship{
		{ID: "r1", SourcePersonID: "ann", TargetPersonID: "ben", Type: entities.RelationParent},
		{ID: "r2", SourcePersonID: "ben", TargetPersonID: "ann", Type: entities.RelationChild},
		{ID: "r3", SourcePersonID: "ann", TargetPersonID: "cara", Type: entities.RelationParent},
		{ID: "r4", SourcePersonID: "cara", TargetPersonID: "ann", Type: entities.RelationChild},
		{ID: "r5", SourcePersonID: "ben", TargetPersonID: "cara", Type: entities.RelationSibling},
		{ID: "r6", SourcePersonID: "cara", TargetPersonID: "ben", Type: entities.RelationSibling},
	}
	return persons, rels
}

func TestToRawPersons(t *testing.T) {
	persons, rels := exportFixture()

	raw := toRawPersons(persons, rels)
	require.Len(t, raw, 3)

	assert.Equal(t, "1950-03-14", raw[0].BirthDate)
	assert.Equal(t, "female", raw[0].Gender)
	assert.Equal(t, "Leeds", raw[0].BirthPlace)
	assert.Empty(t, raw[0].Relations)

	assert.Equal(t, []parsers.RawRelation{{Role: "parent", PersonID: "ann"}}, raw[1].Relations)
	assert.Equal(t, []parsers.RawRelation{
		{Role: "parent", PersonID: "ann"},
		{Role: "sibling", PersonID: "ben"},
	}, raw[2].Relations)
}

func TestToRawPersons_SkipsUnknownPersons(t *testing.T) {
	persons, _ := exportFixture()
	rels := []entities.Relationship{
		{ID: "r1", SourcePersonID: "ann", TargetPersonID: "ghost", Type: entities.RelationParent},
	}

	raw := toRawPersons(persons, rels)
	for _, p := range raw {
		assert.Empty(t, p.Relations)
	}
}

func TestFormatJSON_RoundTrip(t *testing.T) {
	persons, rels := exportFixture()
	raw := toRawPersons(persons, rels)

	var buf bytes.Buffer
	require.NoError(t, formatJSON(&buf, raw))

	parsed, err := (&parsers.JSONParser{}).Parse(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	for i := range parsed {
		assert.Equal(t, raw[i].ID, parsed[i].ID)
		assert.Equal(t, raw[i].FirstName, parsed[i].FirstName)
		assert.Equal(t, raw[i].BirthDate, parsed[i].BirthDate)
		assert.Equal(t, raw[i].Relations, parsed[i].Relations)
	}
}

func TestFormatJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatJSON(&buf, []parsers.RawPerson{}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestFormatCSV_RoundTrip(t *testing.T) {
	persons, rels := exportFixture()
	raw := toRawPersons(persons, rels)

	var buf bytes.Buffer
	require.NoError(t, formatCSV(&buf, raw))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "id,first_name,last_name,birth_date,death_date,gender,birth_place,parent,child,spouse,sibling", string(lines[0]))
	assert.Equal(t, "cara,Cara,Lee,,,female,,ann,,,ben", string(lines[3]))

	parsed, err := (&parsers.CSVParser{}).Parse(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	assert.Equal(t, "Leeds", parsed[0].BirthPlace)
	assert.Equal(t, raw[2].Relations, parsed[2].Relations)
}

func TestFormatCSV_JoinsSeveralIDs(t *testing.T) {
	raw := []parsers.RawPerson{{
		ID:        "ben",
		FirstName: "Ben",
		Relations: []parsers.RawRelation{
			{Role: "parent", PersonID: "ann"},
			{Role: "parent", PersonID: "bob"},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, formatCSV(&buf, raw))
	assert.Contains(t, buf.String(), "ann;bob")
}

func TestContains(t *testing.T) {
	assert.True(t, contains(exportFormats, "csv"))
	assert.False(t, contains(exportFormats, "markdown"))
}
