// Package parsers provides parsers for importing family members from various formats.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawRelation names another member of the import and the role that member
// holds relative to the person it is attached to ("ann is my parent").
type RawRelation struct {
	Role     string `json:"role"`
	PersonID string `json:"person_id"`
}

// RawPerson represents a person parsed from an external source before validation.
type RawPerson struct {
	ID         string        `json:"id,omitempty"`
	FirstName  string        `json:"first_name"`
	LastName   string        `json:"last_name,omitempty"`
	BirthDate  string        `json:"birth_date,omitempty"`
	DeathDate  string        `json:"death_date,omitempty"`
	Gender     string        `json:"gender,omitempty"`
	BirthPlace string        `json:"birth_place,omitempty"`
	Relations  []RawRelation `json:"relations,omitempty"`
	LineNum    int           `json:"-"` // Line number in source file (set by parser)
}

// Parser defines the interface for parsing persons from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawPerson, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
