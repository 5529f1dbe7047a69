package kinship

import (
	"fmt"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// Direction is the canonical edge to store for a relationship picked from one
// person's point of view.
type Direction struct {
	From string                `json:"from"`
	To   string                `json:"to"`
	Type entities.RelationType `json:"type"`
	// SelectedMemberRole is the role the other person holds once the edge is stored.
	SelectedMemberRole entities.RelationType `json:"selected_member_role"`
}

// ResolveDirection maps "other is current's <role>" to the edge to persist:
//
//	parent  -> other   parent  current
//	child   -> current parent  other
//	spouse  -> current spouse  other
//	sibling -> current sibling other
//
// An unknown role is a programming error and panics.
func ResolveDirection(currentID, otherID string, role entities.RelationType) Direction {
	switch role {
	case entities.RelationParent:
		return Direction{From: otherID, To: currentID, Type: entities.RelationParent, SelectedMemberRole: role}
	case entities.RelationChild:
		return Direction{From: currentID, To: otherID, Type: entities.RelationParent, SelectedMemberRole: role}
	case entities.RelationSpouse:
		return Direction{From: currentID, To: otherID, Type: entities.RelationSpouse, SelectedMemberRole: role}
	case entities.RelationSibling:
		return Direction{From: currentID, To: otherID, Type: entities.RelationSibling, SelectedMemberRole: role}
	default:
		panic(fmt.Sprintf("kinship: unknown relationship role %q", string(role)))
	}
}

// Describe builds the confirmation text shown once the edge is stored.
func (d Direction) Describe(current, other entities.Person) string {
	return fmt.Sprintf("%s is now %s's %s", other.FullName(), current.FullName(), d.SelectedMemberRole)
}
