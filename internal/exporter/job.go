package exporter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/subject"
)

// Job runs one export end to end: plan, header, then one line per subject.
type Job struct {
	planner   *Planner
	extractor *Extractor
	subjects  subject.Repository
	logger    zerolog.Logger
}

// NewJob creates an export job. Each Write reads address lineages through
// its own run-scoped cache.
func NewJob(planner *Planner, extractor *Extractor, subjects subject.Repository, logger zerolog.Logger) *Job {
	return &Job{
		planner:   planner,
		extractor: extractor,
		subjects:  subjects,
		logger:    logger.With().Str("component", "export").Logger(),
	}
}

// Plan lays out out without touching any subject.
func (j *Job) Plan(ctx context.Context, out ExportOutput) (*Layout, error) {
	layout, err := j.planner.Plan(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("plan export: %w", err)
	}
	return layout, nil
}

// Run writes the export described by out to w and returns the number of
// subject rows written.
func (j *Job) Run(ctx context.Context, out ExportOutput, w io.Writer) (int, error) {
	layout, err := j.Plan(ctx, out)
	if err != nil {
		return 0, err
	}
	return j.Write(ctx, out, layout, w)
}

// Write streams the header and one line per subject. It stops at the first
// error; lines already written stay written.
func (j *Job) Write(ctx context.Context, out ExportOutput, layout *Layout, w io.Writer) (int, error) {
	start := time.Now()
	cw := NewWriter(w)
	if err := cw.Write(HeaderCreator{}.Header(layout)); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	extractor := j.extractor.forRun()
	err := j.subjects.ExportRows(ctx, out.UUID, out.Filters, func(item *subject.ExportItemRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := extractor.Row(ctx, layout, item)
		if err != nil {
			return err
		}
		return cw.Write(cells)
	})
	if ferr := cw.Flush(); err == nil {
		err = ferr
	}
	rows := cw.Rows() - 1
	if err != nil {
		return rows, fmt.Errorf("export %s: %w", layout.Registration.Entity.Name, err)
	}
	j.logger.Info().
		Str("subject_type", layout.Registration.Entity.Name).
		Int("rows", rows).
		Int("columns", layout.Width()).
		Dur("took", time.Since(start)).
		Msg("export finished")
	return rows, nil
}
