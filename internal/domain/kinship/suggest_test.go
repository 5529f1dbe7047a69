package kinship

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// parentOf returns the primary edge and its reciprocal for "parent is child's parent".
func parentOf(parent, child string) []entities.Relationship {
	return []entities.Relationship{
		edge(parent+"-"+child, parent, child, entities.RelationParent),
		edge(child+"-"+parent, child, parent, entities.RelationChild),
	}
}

func findSuggestion(suggestions []entities.Suggestion, id string) (entities.Suggestion, bool) {
	for _, s := range suggestions {
		if s.Member.ID == id {
			return s, true
		}
	}
	return entities.Suggestion{}, false
}

func TestSuggest_SharedParentSuggestsSibling(t *testing.T) {
	ann := person("ann", "Ann", 1960)
	carl := person("carl", "Carl", 1990)
	dana := person("dana", "Dana", 1992)

	var edges []entities.Relationship
	edges = append(edges, parentOf("ann", "carl")...)
	edges = append(edges, parentOf("ann", "dana")...)

	suggestions := Suggest(carl, []entities.Person{ann, carl, dana}, edges, DefaultSuggestOptions())

	require.Len(t, suggestions, 1, "already related persons are excluded")
	s := suggestions[0]
	assert.Equal(t, "dana", s.Member.ID)
	assert.Equal(t, entities.RelationSibling, s.SuggestedRelationship)
	assert.GreaterOrEqual(t, s.Confidence, HighConfidence)
	assert.Contains(t, s.Reason, "Ann Lee")
}

func TestSuggest_MoreEvidenceNeverLowersConfidence(t *testing.T) {
	ann := person("ann", "Ann", 1960)
	carl := person("carl", "Carl", 1990)
	dana := person("dana", "Dana", 1992)
	persons := []entities.Person{ann, carl, dana}

	before := Suggest(carl, persons, nil, DefaultSuggestOptions())
	weak, ok := findSuggestion(before, "dana")
	require.True(t, ok)
	assert.Equal(t, entities.RelationSibling, weak.SuggestedRelationship)
	assert.InDelta(t, 0.45, weak.Confidence, 0.001)

	var edges []entities.Relationship
	edges = append(edges, parentOf("ann", "carl")...)
	edges = append(edges, parentOf("ann", "dana")...)

	after := Suggest(carl, persons, edges, DefaultSuggestOptions())
	strong, ok := findSuggestion(after, "dana")
	require.True(t, ok)
	assert.GreaterOrEqual(t, strong.Confidence, 0.85)
	assert.Greater(t, strong.Confidence, weak.Confidence)
}

func TestSuggest_SecondSharedParentRaisesConfidence(t *testing.T) {
	ann := person("ann", "Ann", 1960)
	bob := person("bob", "Bob", 1958)
	carl := entities.Person{ID: "carl", FirstName: "Carl", LastName: "Moss"}
	dana := entities.Person{ID: "dana", FirstName: "Dana", LastName: "Reed"}
	persons := []entities.Person{ann, bob, carl, dana}

	var edges []entities.Relationship
	edges = append(edges, parentOf("ann", "carl")...)
	edges = append(edges, parentOf("ann", "dana")...)
	one, ok := findSuggestion(Suggest(carl, persons, edges, DefaultSuggestOptions()), "dana")
	require.True(t, ok)
	assert.InDelta(t, 0.85, one.Confidence, 0.001)

	edges = append(edges, parentOf("bob", "carl")...)
	edges = append(edges, parentOf("bob", "dana")...)
	two, ok := findSuggestion(Suggest(carl, persons, edges, DefaultSuggestOptions()), "dana")
	require.True(t, ok)
	assert.InDelta(t, 0.90, two.Confidence, 0.001)
	assert.Contains(t, two.Reason, "Ann Lee and Bob Lee")
}

func TestSuggest_SharedChildSuggestsSpouse(t *testing.T) {
	ann := entities.Person{ID: "ann", FirstName: "Ann", LastName: "Lee"}
	bob := entities.Person{ID: "bob", FirstName: "Bob", LastName: "Hart"}
	carl := entities.Person{ID: "carl", FirstName: "Carl", LastName: "Lee"}

	var edges []entities.Relationship
	edges = append(edges, parentOf("ann", "carl")...)
	edges = append(edges, parentOf("bob", "carl")...)

	suggestions := Suggest(ann, []entities.Person{ann, bob, carl}, edges, DefaultSuggestOptions())
	s, ok := findSuggestion(suggestions, "bob")
	require.True(t, ok)
	assert.Equal(t, entities.RelationSpouse, s.SuggestedRelationship)
	assert.InDelta(t, 0.65, s.Confidence, 0.001)
	assert.Equal(t, "both are parents of Carl Lee", s.Reason)
	assert.Less(t, s.Confidence, HighConfidence)
}

func TestSuggest_AgeGap(t *testing.T) {
	carl := entities.Person{ID: "carl", FirstName: "Carl", LastName: "Moss"}
	carl.BirthDate = person("", "", 1990).BirthDate
	gus := entities.Person{ID: "gus", FirstName: "Gus", LastName: "Hart"}
	gus.BirthDate = person("", "", 1950).BirthDate
	kim := entities.Person{ID: "kim", FirstName: "Kim", LastName: "Reed"}
	kim.BirthDate = person("", "", 2020).BirthDate

	suggestions := Suggest(carl, []entities.Person{carl, gus, kim}, nil, DefaultSuggestOptions())
	require.Len(t, suggestions, 2)

	s, ok := findSuggestion(suggestions, "gus")
	require.True(t, ok)
	assert.Equal(t, entities.RelationParent, s.SuggestedRelationship)
	assert.InDelta(t, 0.5, s.Confidence, 0.001)
	assert.Equal(t, "born 40 years earlier than Carl Moss, a plausible parent", s.Reason)

	s, ok = findSuggestion(suggestions, "kim")
	require.True(t, ok)
	assert.Equal(t, entities.RelationChild, s.SuggestedRelationship)
	assert.Equal(t, "born 30 years after Carl Moss, a plausible child", s.Reason)
}

func TestSuggest_AgeGapSkippedWhenParentsKnown(t *testing.T) {
	ann := person("ann", "Ann", 1960)
	bob := person("bob", "Bob", 1958)
	carl := person("carl", "Carl", 1990)
	gus := entities.Person{ID: "gus", FirstName: "Gus", LastName: "Hart"}
	gus.BirthDate = person("", "", 1950).BirthDate

	var edges []entities.Relationship
	edges = append(edges, parentOf("ann", "carl")...)
	edges = append(edges, parentOf("bob", "carl")...)

	suggestions := Suggest(carl, []entities.Person{ann, bob, carl, gus}, edges, DefaultSuggestOptions())
	_, ok := findSuggestion(suggestions, "gus")
	assert.False(t, ok)
}

func TestSuggest_NoSignalNoSuggestion(t *testing.T) {
	carl := entities.Person{ID: "carl", FirstName: "Carl", LastName: "Moss"}
	eve := entities.Person{ID: "eve", FirstName: "Eve", LastName: "Hart"}

	suggestions := Suggest(carl, []entities.Person{carl, eve}, nil, DefaultSuggestOptions())
	assert.NotNil(t, suggestions)
	assert.Empty(t, suggestions)
}

func TestSuggest_BirthPlaceNudge(t *testing.T) {
	carl := entities.Person{ID: "carl", FirstName: "Carl", LastName: "Moss", BirthPlace: "Leeds"}
	eve := entities.Person{ID: "eve", FirstName: "Eve", LastName: "Hart", BirthPlace: "leeds"}

	suggestions := Suggest(carl, []entities.Person{carl, eve}, nil, DefaultSuggestOptions())
	require.Len(t, suggestions, 1)
	assert.InDelta(t, 0.4, suggestions[0].Confidence, 0.001)
	assert.Equal(t, "same birth place (leeds)", suggestions[0].Reason)
}

func TestSuggest_OrderingAndCap(t *testing.T) {
	target := person("t", "Tom", 0)
	persons := []entities.Person{target}
	for i := 0; i < 7; i++ {
		persons = append(persons, person(fmt.Sprintf("p%d", i), fmt.Sprintf("Name%d", 6-i), 0))
	}

	opts := DefaultSuggestOptions()
	suggestions := Suggest(target, persons, nil, opts)
	require.Len(t, suggestions, opts.MaxSuggestions)

	// Equal confidence falls back to full name.
	for i := 1; i < len(suggestions); i++ {
		assert.Less(t, suggestions[i-1].Member.FullName(), suggestions[i].Member.FullName())
	}
	assert.Equal(t, "Name0 Lee", suggestions[0].Member.FullName())
}

func TestSuggest_MinConfidence(t *testing.T) {
	ann := person("ann", "Ann", 1960)
	carl := person("carl", "Carl", 1990)
	dana := person("dana", "Dana", 1992)
	eve := person("eve", "Eve", 1991)

	var edges []entities.Relationship
	edges = append(edges, parentOf("ann", "carl")...)
	edges = append(edges, parentOf("ann", "dana")...)

	opts := DefaultSuggestOptions()
	opts.MinConfidence = HighConfidence

	suggestions := Suggest(carl, []entities.Person{ann, carl, dana, eve}, edges, opts)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "dana", suggestions[0].Member.ID)
}

func TestSuggest_Deterministic(t *testing.T) {
	ann := person("ann", "Ann", 1960)
	carl := person("carl", "Carl", 1990)
	dana := person("dana", "Dana", 1992)
	eve := person("eve", "Eve", 1991)
	persons := []entities.Person{ann, carl, dana, eve}
	edges := parentOf("ann", "carl")

	first := Suggest(carl, persons, edges, DefaultSuggestOptions())
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Suggest(carl, persons, edges, DefaultSuggestOptions()))
	}
}
