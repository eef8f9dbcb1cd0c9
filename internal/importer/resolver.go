package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/schema"
)

const groupSeparator = "|"

var (
	ErrNoForms       = errors.New("no forms of type")
	ErrNoFormElement = errors.New("no form element linked to concept")
)

// SchemaError is a schema resolution failure. It aborts the row.
type SchemaError struct {
	Msg string
	Err error
}

func (e *SchemaError) Error() string { return e.Msg }
func (e *SchemaError) Unwrap() error { return e.Err }

// Resolver maps file headers to concepts and concepts to form elements.
// It keeps the address level names and one schema.Index per form type for
// the lifetime of a run.
type Resolver struct {
	store     schema.Store
	hierarchy location.Hierarchy
	logger    zerolog.Logger

	mu      sync.Mutex
	levels  []string
	indexes map[schema.FormType]*formIndex
}

type formIndex struct {
	forms    []*schema.Form
	elements []*schema.FormElement
	index    *schema.Index
}

// NewResolver creates a resolver. Wrap store in schema.NewCachedStore when
// it is backed by a database.
func NewResolver(store schema.Store, hierarchy location.Hierarchy, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:     store,
		hierarchy: hierarchy,
		logger:    logger.With().Str("component", "schema-resolver").Logger(),
		indexes:   make(map[schema.FormType]*formIndex),
	}
}

// ResolveConceptHeaders returns the concepts named by fileHeaders, in file
// order and without duplicates. Address level names and fixed headers are
// skipped; headers that name no concept are dropped.
func (r *Resolver) ResolveConceptHeaders(ctx context.Context, fixed Headers, fileHeaders []string) ([]*schema.Concept, error) {
	levels, err := r.levelNames(ctx)
	if err != nil {
		return nil, err
	}
	nonConcept := make(map[string]bool, len(levels)+len(fixed.AllHeaders()))
	for _, l := range levels {
		nonConcept[l] = true
	}
	for _, h := range fixed.AllHeaders() {
		nonConcept[h] = true
	}

	seen := make(map[string]bool)
	var out []*schema.Concept
	for _, h := range fileHeaders {
		if nonConcept[h] {
			continue
		}
		c, err := r.findConcept(ctx, h, false)
		if err != nil {
			return nil, err
		}
		if c == nil {
			r.logger.Debug().Str("header", h).Msg("no concept for header, ignoring column")
			continue
		}
		if !seen[c.UUID] {
			seen[c.UUID] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Resolver) levelNames(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.levels != nil {
		return r.levels, nil
	}
	levels, err := r.hierarchy.LevelTypeNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("address level types: %w", err)
	}
	if levels == nil {
		levels = []string{}
	}
	r.levels = levels
	return levels, nil
}

// findConcept looks name up directly, then by one side of a
// "group|child" header. A nil concept with a nil error means not found.
func (r *Resolver) findConcept(ctx context.Context, name string, child bool) (*schema.Concept, error) {
	c, err := r.lookup(ctx, name)
	if err != nil || c != nil {
		return c, err
	}
	if !strings.Contains(name, groupSeparator) {
		return nil, nil
	}
	parts := strings.Split(name, groupSeparator)
	side := parts[0]
	if child {
		side = parts[1]
	}
	return r.lookup(ctx, side)
}

func (r *Resolver) lookup(ctx context.Context, name string) (*schema.Concept, error) {
	c, err := r.store.ConceptByName(ctx, name)
	if errors.Is(err, schema.ErrConceptNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("concept %q: %w", name, err)
	}
	return c, nil
}

// ResolveFormElement returns the first element of a non-voided form of
// formType bound to concept. Decision concepts of those forms count as
// elements too.
func (r *Resolver) ResolveFormElement(ctx context.Context, concept *schema.Concept, formType schema.FormType) (*schema.FormElement, error) {
	fi, err := r.formIndex(ctx, formType)
	if err != nil {
		return nil, err
	}
	if len(fi.forms) == 0 {
		return nil, &SchemaError{Msg: fmt.Sprintf("No forms of type %s found", formType), Err: ErrNoForms}
	}
	for _, fe := range fi.elements {
		if fe.Concept != nil && fe.Concept.UUID == concept.UUID {
			return fe, nil
		}
	}
	return nil, &SchemaError{Msg: "No form element linked to concept found", Err: ErrNoFormElement}
}

// Index returns the element index of the forms of formType.
func (r *Resolver) Index(ctx context.Context, formType schema.FormType) (*schema.Index, error) {
	fi, err := r.formIndex(ctx, formType)
	if err != nil {
		return nil, err
	}
	return fi.index, nil
}

func (r *Resolver) formIndex(ctx context.Context, formType schema.FormType) (*formIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fi, ok := r.indexes[formType]; ok {
		return fi, nil
	}
	forms, err := r.store.FormsByType(ctx, formType)
	if err != nil {
		return nil, fmt.Errorf("forms of type %s: %w", formType, err)
	}
	fi := &formIndex{forms: forms, index: schema.NewIndex(forms...)}
	for _, f := range forms {
		fi.elements = append(fi.elements, f.AllFormElements()...)
		fi.elements = append(fi.elements, f.DecisionFormElements()...)
	}
	r.indexes[formType] = fi
	return fi, nil
}
