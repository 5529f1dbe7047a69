package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/mocks"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// born returns a person with a January 1st birth date, or none when year is 0.
func born(id, first string, year int) entities.Person {
	p := entities.Person{ID: id, FirstName: first, LastName: "Lee", Gender: entities.GenderOther}
	if year > 0 {
		d := entities.NewDate(year, time.January, 1)
		p.BirthDate = &d
	}
	return p
}

// family returns a store holding Ann (1950), Ben (1980), Carl (1990), Dana (1992),
// Eve and Finn (no birth dates).
func family() *mocks.Store {
	store := mocks.NewStore()
	store.AddPersons(familyPersons()...)
	return store
}

// pairFamily is family backed by a store with transactional pair writes.
func pairFamily() *mocks.PairStore {
	store := mocks.NewPairStore()
	store.AddPersons(familyPersons()...)
	return store
}

func familyPersons() []entities.Person {
	return []entities.Person{
		born("ann", "Ann", 1950),
		born("ben", "Ben", 1980),
		born("carl", "Carl", 1990),
		born("dana", "Dana", 1992),
		born("eve", "Eve", 0),
		born("finn", "Finn", 0),
	}
}

func newRelationshipService(store ports.Store) *RelationshipService {
	return NewRelationshipService(store, DefaultRelationshipOptions(), zap.NewNop())
}
