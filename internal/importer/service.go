package importer

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
)

// Result is the outcome of importing one file.
type Result struct {
	FormType  schema.FormType `json:"formType"`
	Headers   []string        `json:"headers"`
	Rows      []RowResult     `json:"rows"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// Service runs file imports. Every call gets its own schema and hierarchy
// caches.
type Service struct {
	store        schema.Store
	hierarchy    location.Hierarchy
	records      subject.Records
	coercer      *Coercer
	observations *observation.Service
	workers      int
	logger       zerolog.Logger
}

// NewService creates an import service. Rows are always treated as new
// records unless WithRecords is set.
func NewService(store schema.Store, hierarchy location.Hierarchy, coercer *Coercer, observations *observation.Service, workers int, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		hierarchy:    hierarchy,
		coercer:      coercer,
		observations: observations,
		workers:      workers,
		logger:       logger,
	}
}

// WithRecords sets where the stored observations of updated records are
// read from. Media cells of those rows keep their stored file when unchanged.
func (s *Service) WithRecords(records subject.Records) *Service {
	s.records = records
	return s
}

// Import reads a CSV file and builds the observations of every row.
func (s *Service) Import(ctx context.Context, r io.Reader, formType schema.FormType) (*Result, error) {
	rows, headers, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(schema.NewCachedStore(s.store), location.NewCachedHierarchy(s.hierarchy), s.logger)
	assembler := NewAssembler(resolver, s.coercer, s.observations, s.logger)
	runner := NewRunner(assembler, s.workers, s.logger)
	if s.records != nil {
		runner.WithPrevious(StoredObservations(s.records))
	}
	results, err := runner.Run(ctx, rows, HeadersFor(formType), formType)
	if err != nil {
		return nil, err
	}

	res := &Result{FormType: formType, Headers: headers, Rows: results}
	for _, r := range results {
		if r.Err() != nil {
			res.Failed++
		} else {
			res.Succeeded++
		}
	}
	return res, nil
}
