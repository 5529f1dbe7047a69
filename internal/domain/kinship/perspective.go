// Package kinship implements the family relationship consistency engine:
// perspective resolution over directed edges, direction resolution,
// validation and suggestion inference. Everything here is pure; callers
// pass in the persons and edges they fetched.
package kinship

import (
	"fmt"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// PerspectiveType maps a stored edge type to the role the other participant
// holds from the viewing person's side. The table is the same whichever side
// the viewer occupies.
func PerspectiveType(t entities.RelationType) entities.RelationType {
	switch t {
	case entities.RelationParent:
		return entities.RelationChild
	case entities.RelationChild:
		return entities.RelationParent
	case entities.RelationSpouse:
		return entities.RelationSpouse
	case entities.RelationSibling:
		return entities.RelationSibling
	default:
		panic(fmt.Sprintf("kinship: unknown relationship type %q", string(t)))
	}
}

// ResolvePerspective returns personID's deduplicated relations, one per other person.
//
// When two edges reach the same person, a kept spouse or sibling relation wins
// over anything seen later. A kept parent or child relation is replaced only
// when personID is the source of the newer relation's edge.
func ResolvePerspective(personID string, edges []entities.Relationship) []entities.PerspectiveRelation {
	result := make([]entities.PerspectiveRelation, 0, len(edges))
	index := make(map[string]int, len(edges))

	for i := range edges {
		edge := &edges[i]
		if edge.SourcePersonID == edge.TargetPersonID || !edge.Involves(personID) {
			continue
		}

		isSource := edge.SourcePersonID == personID
		other := edge.TargetPersonID
		if !isSource {
			other = edge.SourcePersonID
		}

		rel := entities.PerspectiveRelation{
			ID:       edge.ID,
			Type:     PerspectiveType(edge.Type),
			PersonID: other,
		}

		pos, seen := index[other]
		if !seen {
			index[other] = len(result)
			result = append(result, rel)
			continue
		}

		if result[pos].Type.Symmetric() {
			continue
		}
		if isSource {
			result[pos] = rel
		}
	}

	return result
}

// ResolveAll computes the perspective of every given person over the same edge set.
func ResolveAll(personIDs []string, edges []entities.Relationship) map[string][]entities.PerspectiveRelation {
	byPerson := make(map[string][]entities.Relationship, len(personIDs))
	for i := range edges {
		byPerson[edges[i].SourcePersonID] = append(byPerson[edges[i].SourcePersonID], edges[i])
		if edges[i].TargetPersonID != edges[i].SourcePersonID {
			byPerson[edges[i].TargetPersonID] = append(byPerson[edges[i].TargetPersonID], edges[i])
		}
	}

	views := make(map[string][]entities.PerspectiveRelation, len(personIDs))
	for _, id := range personIDs {
		views[id] = ResolvePerspective(id, byPerson[id])
	}
	return views
}

// FindRelation returns the relation pointing at otherID, if any.
func FindRelation(relations []entities.PerspectiveRelation, otherID string) (entities.PerspectiveRelation, bool) {
	for _, rel := range relations {
		if rel.PersonID == otherID {
			return rel, true
		}
	}
	return entities.PerspectiveRelation{}, false
}

// RelatedIDs returns the person IDs holding the given role in relations.
func RelatedIDs(relations []entities.PerspectiveRelation, role entities.RelationType) []string {
	var ids []string
	for _, rel := range relations {
		if rel.Type == role {
			ids = append(ids, rel.PersonID)
		}
	}
	return ids
}
