package schema

import (
	"context"
	"errors"
	"testing"
)

type countingStore struct {
	Store
	byName map[string]int
	forms  int
}

func (s *countingStore) ConceptByName(ctx context.Context, name string) (*Concept, error) {
	s.byName[name]++
	return s.Store.ConceptByName(ctx, name)
}

func (s *countingStore) FormsByType(ctx context.Context, ft FormType) ([]*Form, error) {
	s.forms++
	return s.Store.FormsByType(ctx, ft)
}

func TestCachedStore_MemoisesLookups(t *testing.T) {
	mem := NewMemoryStore()
	mem.AddConcepts(&Concept{UUID: "c-age", Name: "Age", DataType: DataTypeNumeric})
	mem.AddForms(&Form{UUID: "f1", FormType: FormTypeRegistration})
	counting := &countingStore{Store: mem, byName: map[string]int{}}
	cache := NewCachedStore(counting)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := cache.ConceptByName(ctx, "Age")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.UUID != "c-age" {
			t.Errorf("expected c-age, got %s", c.UUID)
		}
		if _, err := cache.FormsByType(ctx, FormTypeRegistration); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if counting.byName["Age"] != 1 {
		t.Errorf("expected 1 name lookup, got %d", counting.byName["Age"])
	}
	if counting.forms != 1 {
		t.Errorf("expected 1 forms lookup, got %d", counting.forms)
	}

	if _, err := cache.ConceptByUUID(ctx, "c-age"); err != nil {
		t.Errorf("concept fetched by name should be cached by uuid: %v", err)
	}
}

func TestCachedStore_CachesMisses(t *testing.T) {
	counting := &countingStore{Store: NewMemoryStore(), byName: map[string]int{}}
	cache := NewCachedStore(counting)

	for i := 0; i < 2; i++ {
		_, err := cache.ConceptByName(context.Background(), "Stray column")
		if !errors.Is(err, ErrConceptNotFound) {
			t.Fatalf("expected ErrConceptNotFound, got %v", err)
		}
	}
	if counting.byName["Stray column"] != 1 {
		t.Errorf("expected miss to be cached, got %d lookups", counting.byName["Stray column"])
	}
}

func TestMemoryStore_SearchConcepts(t *testing.T) {
	mem := NewMemoryStore()
	mem.AddConcepts(
		&Concept{UUID: "1", Name: "Weight"},
		&Concept{UUID: "2", Name: "Birth weight"},
		&Concept{UUID: "3", Name: "Height"},
		&Concept{UUID: "4", Name: "Old weight", Voided: true},
	)
	items, total, err := mem.SearchConcepts(context.Background(), "WEIGHT", 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
	if len(items) != 1 || items[0].Name != "Birth weight" {
		t.Errorf("unexpected page: %+v", items)
	}
}
