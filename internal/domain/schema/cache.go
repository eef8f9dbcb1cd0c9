package schema

import (
	"context"
	"errors"
	"sync"
)

// CachedStore memoises every lookup of the wrapped Store for the lifetime of
// one import or export run. Negative concept lookups are cached as well,
// since stray columns are looked up once per row.
type CachedStore struct {
	next Store

	mu      sync.RWMutex
	byName  map[string]*Concept
	missing map[string]bool
	byUUID  map[string]*Concept
	forms   map[FormType][]*Form
}

// NewCachedStore wraps next with a per-run cache.
func NewCachedStore(next Store) *CachedStore {
	return &CachedStore{
		next:    next,
		byName:  make(map[string]*Concept),
		missing: make(map[string]bool),
		byUUID:  make(map[string]*Concept),
		forms:   make(map[FormType][]*Form),
	}
}

func (s *CachedStore) ConceptByName(ctx context.Context, name string) (*Concept, error) {
	s.mu.RLock()
	c, ok := s.byName[name]
	miss := s.missing[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}
	if miss {
		return nil, ErrConceptNotFound
	}

	c, err := s.next.ConceptByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrConceptNotFound) {
			s.mu.Lock()
			s.missing[name] = true
			s.mu.Unlock()
		}
		return nil, err
	}
	s.mu.Lock()
	s.byName[name] = c
	s.byUUID[c.UUID] = c
	s.mu.Unlock()
	return c, nil
}

func (s *CachedStore) ConceptByUUID(ctx context.Context, uuid string) (*Concept, error) {
	s.mu.RLock()
	c, ok := s.byUUID[uuid]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := s.next.ConceptByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.byUUID[uuid] = c
	s.mu.Unlock()
	return c, nil
}

func (s *CachedStore) FormsByType(ctx context.Context, formType FormType) ([]*Form, error) {
	s.mu.RLock()
	forms, ok := s.forms[formType]
	s.mu.RUnlock()
	if ok {
		return forms, nil
	}

	forms, err := s.next.FormsByType(ctx, formType)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.forms[formType] = forms
	s.mu.Unlock()
	return forms, nil
}
