package importer

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
)

// RowError reports every field failure of a row at once.
type RowError struct {
	Messages []string
}

func (e *RowError) Error() string { return strings.Join(e.Messages, ", ") }

// Assembler builds the observation collection of one row.
type Assembler struct {
	resolver     *Resolver
	coercer      *Coercer
	observations *observation.Service
	logger       zerolog.Logger
}

// NewAssembler creates an assembler. resolver should be built for the run,
// since it caches schema lookups.
func NewAssembler(resolver *Resolver, coercer *Coercer, observations *observation.Service, logger zerolog.Logger) *Assembler {
	return &Assembler{
		resolver:     resolver,
		coercer:      coercer,
		observations: observations,
		logger:       logger.With().Str("component", "assembler").Logger(),
	}
}

// Observations reads the concept columns of row into a collection. Schema
// errors are returned as soon as they occur. Field errors are collected and
// returned together as a *RowError after the whole row has been read.
func (a *Assembler) Observations(ctx context.Context, row Row, headers Headers, formType schema.FormType, old observation.Collection) (observation.Collection, error) {
	concepts, err := a.resolver.ResolveConceptHeaders(ctx, headers, row.Headers())
	if err != nil {
		return nil, err
	}
	idx, err := a.resolver.Index(ctx, formType)
	if err != nil {
		return nil, err
	}

	var requests []observation.Request
	var errs []string
	for _, concept := range concepts {
		fe, err := a.resolver.ResolveFormElement(ctx, concept, formType)
		if err != nil {
			return nil, err
		}
		raw := rowValue(idx, fe, row)
		if isBlank(raw) && !IsNonEmptyQuestionGroup(idx, fe, row) {
			continue
		}
		oldValue, _ := old.Get(concept.UUID)
		res := a.coercer.Coerce(ctx, fe, raw, Context{Row: row, OldValue: oldValue, FormType: formType, Index: idx})
		errs = append(errs, res.Errs...)
		requests = append(requests, observation.Request{
			ConceptName: concept.Name,
			ConceptUUID: concept.UUID,
			Value:       res.Value,
		})
	}

	if len(errs) > 0 {
		return nil, &RowError{Messages: errs}
	}
	return a.observations.CreateObservations(requests), nil
}

// Warm loads what every row of a file needs: the address level names, the
// concepts behind fileHeaders and the form index of formType.
func (a *Assembler) Warm(ctx context.Context, headers Headers, fileHeaders []string, formType schema.FormType) error {
	if _, err := a.resolver.ResolveConceptHeaders(ctx, headers, fileHeaders); err != nil {
		return err
	}
	_, err := a.resolver.Index(ctx, formType)
	return err
}

// IsNonEmptyQuestionGroup reports whether fe is a question group with at
// least one non-blank child cell.
func IsNonEmptyQuestionGroup(idx *schema.Index, fe *schema.FormElement, row Row) bool {
	if !fe.Concept.DataType.IsQuestionGroup() || idx == nil {
		return false
	}
	for _, child := range idx.Children(fe) {
		if !isBlank(row.Get(groupHeader(fe, child))) {
			return true
		}
	}
	return false
}

// rowValue reads fe's cell, at "group|child" when fe belongs to a group.
func rowValue(idx *schema.Index, fe *schema.FormElement, row Row) string {
	if parent, ok := idx.Parent(fe); ok {
		return row.Get(groupHeader(parent, fe))
	}
	return row.Get(fe.Concept.Name)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
