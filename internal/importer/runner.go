package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/platform/ndjson"
)

// RowResult is the outcome of one row.
type RowResult struct {
	Line         int                    `json:"line"`
	Observations observation.Collection `json:"observations,omitempty"`
	Error        string                 `json:"error,omitempty"`

	row Row
	err error
}

// Err returns the row failure, nil on success.
func (r RowResult) Err() error { return r.err }

// PreviousObservations supplies the stored observations of the record a row
// of formType updates, nil when the row creates a new record.
type PreviousObservations func(ctx context.Context, row Row, formType schema.FormType) (observation.Collection, error)

// Runner imports rows concurrently. Results keep input order.
type Runner struct {
	assembler *Assembler
	workers   int
	previous  PreviousObservations
	logger    zerolog.Logger
}

// NewRunner creates a runner with at most workers rows in flight.
func NewRunner(assembler *Assembler, workers int, logger zerolog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		assembler: assembler,
		workers:   workers,
		logger:    logger.With().Str("component", "import-runner").Logger(),
	}
}

// WithPrevious sets the source of previous observations for updates.
func (r *Runner) WithPrevious(p PreviousObservations) *Runner {
	r.previous = p
	return r
}

// Run processes every row. Row failures are recorded in the results; the
// returned error is only set when ctx is cancelled. Lookups shared by all
// rows are made once before the rows fan out.
func (r *Runner) Run(ctx context.Context, rows []Row, headers Headers, formType schema.FormType) ([]RowResult, error) {
	if len(rows) > 0 {
		if err := r.assembler.Warm(ctx, headers, rows[0].Headers(), formType); err != nil {
			r.logger.Warn().Err(err).Str("form_type", string(formType)).Msg("schema warm-up failed")
		}
	}

	results := make([]RowResult, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.runRow(gctx, row, headers, formType)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
		}
	}
	r.logger.Info().Int("rows", len(rows)).Int("failed", failed).Str("form_type", string(formType)).Msg("import finished")
	return results, nil
}

func (r *Runner) runRow(ctx context.Context, row Row, headers Headers, formType schema.FormType) RowResult {
	res := RowResult{Line: row.Line, row: row}
	var old observation.Collection
	if r.previous != nil {
		var err error
		if old, err = r.previous(ctx, row, formType); err != nil {
			res.err = fmt.Errorf("previous observations: %w", err)
			res.Error = res.err.Error()
			return res
		}
	}
	obs, err := r.assembler.Observations(ctx, row, headers, formType, old)
	if err != nil {
		res.err = err
		res.Error = err.Error()
		var se *SchemaError
		if errors.As(err, &se) {
			r.logger.Warn().Int("line", row.Line).Err(err).Msg("schema resolution failed")
		}
		return res
	}
	res.Observations = obs
	return res
}

// WriteResults writes successful rows to out as NDJSON and failed rows to
// errs as CSV: the original columns followed by an Errors column.
func WriteResults(results []RowResult, headers []string, out, errs io.Writer) (succeeded, failed int, err error) {
	nd := ndjson.NewWriter(out)
	cw := csv.NewWriter(errs)
	if err := cw.Write(append(append([]string(nil), headers...), "Errors")); err != nil {
		return 0, 0, fmt.Errorf("write error header: %w", err)
	}
	for _, res := range results {
		if res.err != nil {
			if err := cw.Write(append(res.row.Cells(), res.Error)); err != nil {
				return nd.Count(), failed, fmt.Errorf("write error row: %w", err)
			}
			failed++
			continue
		}
		if err := nd.Write(res); err != nil {
			return nd.Count(), failed, fmt.Errorf("write result: %w", err)
		}
	}
	succeeded = nd.Count()
	if err := nd.Flush(); err != nil {
		return succeeded, failed, err
	}
	cw.Flush()
	return succeeded, failed, cw.Error()
}
