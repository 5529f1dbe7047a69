// Package entities contains core domain data structures.
package entities

import (
	"fmt"
	"strings"
	"time"
)

// Gender is the recorded gender of a person.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// ParseGender validates and converts a string to Gender.
func ParseGender(s string) (Gender, error) {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale, nil
	case GenderFemale:
		return GenderFemale, nil
	case GenderOther, "":
		return GenderOther, nil
	default:
		return "", fmt.Errorf("invalid gender: %s (valid: male, female, other)", s)
	}
}

// Person is an individual recorded in a family tree.
type Person struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name" validate:"required,max=100"`
	LastName   string    `json:"last_name,omitempty" validate:"max=100"`
	BirthDate  *Date     `json:"birth_date,omitempty"`
	DeathDate  *Date     `json:"death_date,omitempty"`
	Gender     Gender    `json:"gender" validate:"required,oneof=male female other"`
	BirthPlace string    `json:"birth_place,omitempty" validate:"max=200"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FullName returns the first and last name joined by a space.
func (p Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// BirthYear returns the birth year and whether a birth date is known.
func (p Person) BirthYear() (int, bool) {
	if p.BirthDate == nil {
		return 0, false
	}
	return p.BirthDate.Year(), true
}

// NormalizeName converts a name to lowercase for case-insensitive matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
