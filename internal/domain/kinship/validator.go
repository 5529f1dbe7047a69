package kinship

import (
	"fmt"
	"strings"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// Default generational gap thresholds, in years.
const (
	DefaultMinGenerationGap = 15
	DefaultMaxGenerationGap = 60
)

// Policy holds the tunable thresholds used by Validate.
type Policy struct {
	// MinGenerationGap below which a parent/child gap draws a warning.
	MinGenerationGap int
	// MaxGenerationGap above which a parent/child gap draws a warning. Zero disables the check.
	MaxGenerationGap int
}

// DefaultPolicy returns the default validation thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinGenerationGap: DefaultMinGenerationGap,
		MaxGenerationGap: DefaultMaxGenerationGap,
	}
}

// Validate checks a directed edge candidate (from, to, relType) against the
// relations from already has. It never touches a store, so repeated calls
// with the same inputs return the same result.
func Validate(
	from, to entities.Person,
	relType entities.RelationType,
	fromRelations []entities.PerspectiveRelation,
	policy Policy,
) entities.ValidationResult {
	result := entities.ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if !relType.Valid() {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown relationship type %q", string(relType)))
		return result
	}

	if from.ID == "" || to.ID == "" {
		result.Errors = append(result.Errors, "both persons must be identified")
		return result
	}

	if from.ID == to.ID {
		result.Errors = append(result.Errors, fmt.Sprintf("%s cannot be related to themselves", from.FullName()))
		return result
	}

	if existing, ok := FindRelation(fromRelations, to.ID); ok {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"%s and %s are already related (%s is %s's %s); remove that relationship first",
			from.FullName(), to.FullName(), to.FullName(), from.FullName(), existing.Type,
		))
	}

	if relType.Symmetric() {
		return result
	}

	checkTemporal(from, to, relType, policy, &result)
	return result
}

// checkTemporal applies birth-date ordering and generational gap checks to parent/child edges.
func checkTemporal(from, to entities.Person, relType entities.RelationType, policy Policy, result *entities.ValidationResult) {
	if from.BirthDate == nil || to.BirthDate == nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"birth date missing for %s; add birth dates so the direction of this relationship can be checked",
			missingBirthNames(from, to),
		))
		return
	}

	fromYear := from.BirthDate.Year()
	toYear := to.BirthDate.Year()

	switch relType {
	case entities.RelationParent:
		if !from.BirthDate.Before(*to.BirthDate) {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"%s (born %d) cannot be a parent of %s (born %d): parent cannot be younger than or same age as child",
				from.FullName(), fromYear, to.FullName(), toYear,
			))
			return
		}
	case entities.RelationChild:
		if !from.BirthDate.After(*to.BirthDate) {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"%s (born %d) cannot be a child of %s (born %d): child cannot be older than or same age as parent",
				from.FullName(), fromYear, to.FullName(), toYear,
			))
			return
		}
	case entities.RelationSpouse, entities.RelationSibling:
		return
	}

	gap := fromYear - toYear
	if gap < 0 {
		gap = -gap
	}

	if gap < policy.MinGenerationGap {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"generational gap between %s (born %d) and %s (born %d) is only %d years, which is unusually small",
			from.FullName(), fromYear, to.FullName(), toYear, gap,
		))
	}
	if policy.MaxGenerationGap > 0 && gap > policy.MaxGenerationGap {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"generational gap between %s (born %d) and %s (born %d) is %d years, which is unusually large",
			from.FullName(), fromYear, to.FullName(), toYear, gap,
		))
	}
}

func missingBirthNames(from, to entities.Person) string {
	var names []string
	if from.BirthDate == nil {
		names = append(names, from.FullName())
	}
	if to.BirthDate == nil {
		names = append(names, to.FullName())
	}
	return strings.Join(names, " and ")
}
