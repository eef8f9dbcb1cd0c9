package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a thread-safe, in-memory Store for tests and schema bundles.
type MemoryStore struct {
	mu       sync.RWMutex
	concepts map[string]*Concept
	byName   map[string]*Concept
	forms    []*Form
	mappings []FormMapping
}

// NewMemoryStore returns a ready-to-use MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		concepts: make(map[string]*Concept),
		byName:   make(map[string]*Concept),
	}
}

// AddConcepts registers concepts, replacing any with the same UUID.
func (s *MemoryStore) AddConcepts(concepts ...*Concept) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range concepts {
		if old, ok := s.concepts[c.UUID]; ok {
			delete(s.byName, old.Name)
		}
		s.concepts[c.UUID] = c
		s.byName[c.Name] = c
	}
}

// AddForms registers forms.
func (s *MemoryStore) AddForms(forms ...*Form) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms = append(s.forms, forms...)
}

// AddFormMappings registers form mappings.
func (s *MemoryStore) AddFormMappings(mappings ...FormMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings = append(s.mappings, mappings...)
}

func (s *MemoryStore) MappedForm(_ context.Context, formType FormType, subjectTypeUUID, programUUID, encounterTypeUUID string) (*Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.mappings {
		if !m.Matches(subjectTypeUUID, programUUID, encounterTypeUUID) {
			continue
		}
		for _, f := range s.forms {
			if f.UUID == m.FormUUID && f.FormType == formType && !f.Voided {
				return f, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s for subject type %q program %q encounter type %q",
		ErrFormNotMapped, formType, subjectTypeUUID, programUUID, encounterTypeUUID)
}

func (s *MemoryStore) ConceptByName(_ context.Context, name string) (*Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byName[name]
	if !ok || c.Voided {
		return nil, fmt.Errorf("%w: %s", ErrConceptNotFound, name)
	}
	return c, nil
}

func (s *MemoryStore) ConceptByUUID(_ context.Context, uuid string) (*Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.concepts[uuid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConceptNotFound, uuid)
	}
	return c, nil
}

func (s *MemoryStore) FormsByType(_ context.Context, formType FormType) ([]*Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Form
	for _, f := range s.forms {
		if f.FormType == formType && !f.Voided {
			out = append(out, f)
		}
	}
	return out, nil
}

// SearchConcepts returns concepts whose name contains name, ordered by name.
func (s *MemoryStore) SearchConcepts(_ context.Context, name string, limit, offset int) ([]*Concept, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(name)
	var matched []*Concept
	for _, c := range s.concepts {
		if c.Voided {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(c.Name), q) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	total := len(matched)
	if limit <= 0 {
		limit = 20
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
