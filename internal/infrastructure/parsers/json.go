package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses persons from a JSON array.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed persons.
func (p *JSONParser) Parse(r io.Reader) ([]RawPerson, error) {
	var persons []RawPerson

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&persons); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	// Set line numbers (array index + 1, 1-indexed)
	for i := range persons {
		persons[i].LineNum = i + 1
	}

	return persons, nil
}
