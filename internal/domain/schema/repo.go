package schema

import (
	"context"
	"errors"
)

var (
	ErrConceptNotFound = errors.New("concept not found")
	ErrFormNotMapped   = errors.New("no form mapped")
)

// Store is the read-only schema source consulted during an import or export
// run. Lookups by form element group go through an Index built from the
// forms of one type.
type Store interface {
	ConceptByName(ctx context.Context, name string) (*Concept, error)
	ConceptByUUID(ctx context.Context, uuid string) (*Concept, error)
	FormsByType(ctx context.Context, formType FormType) ([]*Form, error)
}

// ConceptSearcher lists concepts for the concept API.
type ConceptSearcher interface {
	SearchConcepts(ctx context.Context, name string, limit, offset int) ([]*Concept, int, error)
}

// FormMapper finds the form filled for a combination of entity types.
type FormMapper interface {
	MappedForm(ctx context.Context, formType FormType, subjectTypeUUID, programUUID, encounterTypeUUID string) (*Form, error)
}
