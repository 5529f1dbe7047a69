package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// RelationColumns are the optional CSV columns holding related person IDs.
// Each cell may list several IDs separated by ';'.
var RelationColumns = []string{"parent", "child", "spouse", "sibling"}

// CSVParser parses persons from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed persons.
// Expected columns: id, first_name, last_name, birth_date, death_date, gender,
// birth_place, plus any of the relation columns.
func (p *CSVParser) Parse(r io.Reader) ([]RawPerson, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, colIndex)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	if _, ok := colIndex["first_name"]; !ok {
		return nil, fmt.Errorf("missing required column: first_name")
	}

	return colIndex, nil
}

// readRecords reads all data rows and converts them to RawPersons.
func (p *CSVParser) readRecords(reader *csv.Reader, colIndex map[string]int) ([]RawPerson, error) {
	persons := make([]RawPerson, 0)
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		persons = append(persons, p.parseRecord(record, colIndex, lineNum))
	}

	return persons, nil
}

// parseRecord converts a CSV record to a RawPerson.
func (p *CSVParser) parseRecord(record []string, colIndex map[string]int, lineNum int) RawPerson {
	person := RawPerson{
		ID:         getColumn(record, colIndex, "id"),
		FirstName:  getColumn(record, colIndex, "first_name"),
		LastName:   getColumn(record, colIndex, "last_name"),
		BirthDate:  getColumn(record, colIndex, "birth_date"),
		DeathDate:  getColumn(record, colIndex, "death_date"),
		Gender:     getColumn(record, colIndex, "gender"),
		BirthPlace: getColumn(record, colIndex, "birth_place"),
		LineNum:    lineNum,
	}

	for _, role := range RelationColumns {
		for _, id := range strings.Split(getColumn(record, colIndex, role), ";") {
			if id = strings.TrimSpace(id); id != "" {
				person.Relations = append(person.Relations, RawRelation{Role: role, PersonID: id})
			}
		}
	}

	return person
}

// getColumn safely retrieves a trimmed column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}
