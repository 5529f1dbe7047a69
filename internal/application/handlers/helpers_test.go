package handlers

import (
	"time"

	"go.uber.org/zap"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/mocks"
	"github.com/ersonp/kin-core/internal/domain/services"
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

// testHandlers wires every handler over one mock store.
type testHandlers struct {
	store         *mocks.Store
	persons       *PersonHandler
	relationships *RelationshipHandler
	suggestions   *SuggestionHandler
	imports       *ImportHandler
}

func newTestHandlers(persons ...entities.Person) *testHandlers {
	store := mocks.NewStore()
	store.AddPersons(persons...)

	logger := zap.NewNop()
	personService := services.NewPersonService(store, logger)
	relationshipService := services.NewRelationshipService(store, services.DefaultRelationshipOptions(), logger)
	suggestionService := services.NewSuggestionService(store, relationshipService, kinship.DefaultSuggestOptions(), logger)
	importService := services.NewImportService(store, relationshipService, logger)

	return &testHandlers{
		store:         store,
		persons:       NewPersonHandler(personService, relationshipService),
		relationships: NewRelationshipHandler(relationshipService, store),
		suggestions:   NewSuggestionHandler(suggestionService),
		imports:       NewImportHandler(importService),
	}
}
