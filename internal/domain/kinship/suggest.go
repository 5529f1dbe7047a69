package kinship

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// HighConfidence is the score at or above which a suggestion is considered strong.
// Only shared-parent evidence reaches it.
const HighConfidence = 0.8

// Confidence weights. Every signal only ever adds to a score, so more
// corroborating evidence never lowers it.
const (
	sharedParentBase  = 0.85
	sharedParentExtra = 0.05
	sharedChildBase   = 0.65
	sharedChildExtra  = 0.05
	ageGapBase        = 0.5
	nameOnlyBase      = 0.3
	surnameBonus      = 0.15
	birthPlaceBonus   = 0.10
	weakCeiling       = 0.75
	strongCeiling     = 0.99
)

// SuggestOptions tunes the suggestion engine.
type SuggestOptions struct {
	MinParentGap   int
	MaxParentGap   int
	MaxSuggestions int
	MinConfidence  float64
}

// DefaultSuggestOptions returns the default suggestion settings.
func DefaultSuggestOptions() SuggestOptions {
	return SuggestOptions{
		MinParentGap:   15,
		MaxParentGap:   50,
		MaxSuggestions: 5,
	}
}

// graph is the read-only view the heuristics work against.
type graph struct {
	persons map[string]entities.Person
	views   map[string][]entities.PerspectiveRelation
}

func (g *graph) names(ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if p, ok := g.persons[id]; ok {
			names = append(names, p.FullName())
		} else {
			names = append(names, id)
		}
	}
	return strings.Join(names, " and ")
}

// Suggest proposes relationships between target and every person not yet
// related to it, best first, capped at opts.MaxSuggestions.
func Suggest(
	target entities.Person,
	persons []entities.Person,
	edges []entities.Relationship,
	opts SuggestOptions,
) []entities.Suggestion {
	g := &graph{persons: make(map[string]entities.Person, len(persons))}
	ids := make([]string, 0, len(persons)+1)
	for i := range persons {
		g.persons[persons[i].ID] = persons[i]
		ids = append(ids, persons[i].ID)
	}
	if _, ok := g.persons[target.ID]; !ok {
		g.persons[target.ID] = target
		ids = append(ids, target.ID)
	}
	g.views = ResolveAll(ids, edges)

	related := make(map[string]bool)
	for _, rel := range g.views[target.ID] {
		related[rel.PersonID] = true
	}

	suggestions := make([]entities.Suggestion, 0)
	for i := range persons {
		candidate := persons[i]
		if candidate.ID == target.ID || related[candidate.ID] {
			continue
		}

		best, ok := g.evaluate(target, candidate, opts)
		if !ok || best.Confidence < opts.MinConfidence {
			continue
		}
		suggestions = append(suggestions, best)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Member.FullName() != b.Member.FullName() {
			return a.Member.FullName() < b.Member.FullName()
		}
		return a.Member.ID < b.Member.ID
	})

	if opts.MaxSuggestions > 0 && len(suggestions) > opts.MaxSuggestions {
		suggestions = suggestions[:opts.MaxSuggestions]
	}
	return suggestions
}

// evaluate runs every heuristic for one candidate and keeps the highest score.
func (g *graph) evaluate(target, candidate entities.Person, opts SuggestOptions) (entities.Suggestion, bool) {
	nudge, nudgeReasons := corroboration(target, candidate)

	var best entities.Suggestion
	found := false
	consider := func(s entities.Suggestion) {
		if !found || s.Confidence > best.Confidence {
			best = s
			found = true
		}
	}

	if shared := intersect(
		RelatedIDs(g.views[target.ID], entities.RelationParent),
		RelatedIDs(g.views[candidate.ID], entities.RelationParent),
	); len(shared) > 0 {
		score := sharedParentBase + sharedParentExtra*float64(len(shared)-1) + nudge
		consider(entities.Suggestion{
			Member:                candidate,
			SuggestedRelationship: entities.RelationSibling,
			Confidence:            clamp(score, strongCeiling),
			Reason:                joinReasons(fmt.Sprintf("shares parent %s", g.names(shared)), nudgeReasons),
		})
	}

	if shared := intersect(
		RelatedIDs(g.views[target.ID], entities.RelationChild),
		RelatedIDs(g.views[candidate.ID], entities.RelationChild),
	); len(shared) > 0 {
		score := sharedChildBase + sharedChildExtra*float64(len(shared)-1) + nudge
		consider(entities.Suggestion{
			Member:                candidate,
			SuggestedRelationship: entities.RelationSpouse,
			Confidence:            clamp(score, weakCeiling),
			Reason:                joinReasons(fmt.Sprintf("both are parents of %s", g.names(shared)), nudgeReasons),
		})
	}

	gapMatched := false
	if role, gap, ok := g.ageGapRole(target, candidate, opts); ok {
		gapMatched = true
		reason := fmt.Sprintf("born %d years earlier than %s, a plausible parent", gap, target.FullName())
		if role == entities.RelationChild {
			reason = fmt.Sprintf("born %d years after %s, a plausible child", gap, target.FullName())
		}
		consider(entities.Suggestion{
			Member:                candidate,
			SuggestedRelationship: role,
			Confidence:            clamp(ageGapBase+nudge, weakCeiling),
			Reason:                joinReasons(reason, nudgeReasons),
		})
	}

	if !gapMatched && nudge > 0 && sameGeneration(target, candidate, opts) {
		consider(entities.Suggestion{
			Member:                candidate,
			SuggestedRelationship: entities.RelationSibling,
			Confidence:            clamp(nameOnlyBase+nudge, weakCeiling),
			Reason:                strings.Join(nudgeReasons, "; "),
		})
	}

	return best, found
}

// ageGapRole returns the role candidate would hold for target when their
// birth years are a plausible generation apart and no existing parent
// relation rules it out.
func (g *graph) ageGapRole(target, candidate entities.Person, opts SuggestOptions) (entities.RelationType, int, bool) {
	targetYear, ok := target.BirthYear()
	if !ok {
		return "", 0, false
	}
	candidateYear, ok := candidate.BirthYear()
	if !ok {
		return "", 0, false
	}

	gap := targetYear - candidateYear
	switch {
	case gap >= opts.MinParentGap && gap <= opts.MaxParentGap:
		if len(RelatedIDs(g.views[target.ID], entities.RelationParent)) >= 2 {
			return "", 0, false
		}
		return entities.RelationParent, gap, true
	case -gap >= opts.MinParentGap && -gap <= opts.MaxParentGap:
		if len(RelatedIDs(g.views[candidate.ID], entities.RelationParent)) >= 2 {
			return "", 0, false
		}
		return entities.RelationChild, -gap, true
	default:
		return "", 0, false
	}
}

// corroboration scores the weak signals shared by both persons.
func corroboration(a, b entities.Person) (float64, []string) {
	var score float64
	var reasons []string
	if a.LastName != "" && entities.NormalizeName(a.LastName) == entities.NormalizeName(b.LastName) {
		score += surnameBonus
		reasons = append(reasons, fmt.Sprintf("same last name (%s)", b.LastName))
	}
	if a.BirthPlace != "" && entities.NormalizeName(a.BirthPlace) == entities.NormalizeName(b.BirthPlace) {
		score += birthPlaceBonus
		reasons = append(reasons, fmt.Sprintf("same birth place (%s)", b.BirthPlace))
	}
	return score, reasons
}

// sameGeneration reports whether the two birth years are closer than a
// generation, or unknown.
func sameGeneration(a, b entities.Person, opts SuggestOptions) bool {
	ay, aok := a.BirthYear()
	by, bok := b.BirthYear()
	if !aok || !bok {
		return true
	}
	diff := ay - by
	if diff < 0 {
		diff = -diff
	}
	return diff < opts.MinParentGap
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	var shared []string
	for _, id := range b {
		if set[id] {
			shared = append(shared, id)
		}
	}
	return shared
}

func clamp(score, ceiling float64) float64 {
	return math.Round(math.Min(math.Max(score, 0), ceiling)*100) / 100
}

func joinReasons(primary string, extra []string) string {
	if len(extra) == 0 {
		return primary
	}
	return primary + "; " + strings.Join(extra, "; ")
}
