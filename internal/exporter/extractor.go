package exporter

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
)

// Extractor flattens export item rows into cells following a Layout.
type Extractor struct {
	hierarchy location.Hierarchy
	logger    zerolog.Logger
}

// NewExtractor creates an extractor reading subject addresses from
// hierarchy.
func NewExtractor(hierarchy location.Hierarchy, logger zerolog.Logger) *Extractor {
	return &Extractor{
		hierarchy: hierarchy,
		logger:    logger.With().Str("component", "export-extractor").Logger(),
	}
}

// forRun returns a copy of x whose address lineages are cached until the
// run ends.
func (x *Extractor) forRun() *Extractor {
	run := *x
	run.hierarchy = location.NewCachedHierarchy(x.hierarchy)
	return &run
}

// Row returns exactly l.Width() cells for item.
func (x *Extractor) Row(ctx context.Context, l *Layout, item *subject.ExportItemRow) ([]string, error) {
	r := NewRenderer(l.Location)
	cells := make([]string, 0, l.Width())

	var err error
	if cells, err = x.registration(ctx, cells, r, l, l.Registration, item.Individual, l.IsGroup); err != nil {
		return nil, err
	}
	cells = x.encounters(cells, r, l.Encounters, item.Encounters)

	for _, g := range l.Groups {
		grp, encs := item.GroupSubject(g.Registration.Entity.UUID)
		if grp == nil {
			cells = blanks(cells, g.Total())
			continue
		}
		if cells, err = x.registration(ctx, cells, r, l, g.Registration, grp, true); err != nil {
			return nil, err
		}
		cells = x.encounters(cells, r, g.Encounters, encs)
	}

	for _, p := range l.Programs {
		pe, encs := item.Enrolment(p.Enrolment.Entity.UUID)
		if pe == nil {
			cells = blanks(cells, p.Total())
			continue
		}
		e := p.Enrolment
		cells = staticCells(cells, r, enrolmentFields, e.StaticKeys, pe)
		cells = obsCells(cells, r, e.Index, e.Main, pe.Observations)
		cells = obsCells(cells, r, e.Index, e.Secondary, pe.ExitObservations)
		cells = x.encounters(cells, r, p.Encounters, encs)
	}

	if len(cells) != l.Width() {
		return nil, fmt.Errorf("subject %s: %d cells for %d columns", item.Individual.UUID, len(cells), l.Width())
	}
	return cells, nil
}

func (x *Extractor) registration(ctx context.Context, cells []string, r Renderer, l *Layout, b *Block, ind *subject.Individual, isGroup bool) ([]string, error) {
	cells = staticCells(cells, r, registrationFields, b.StaticKeys, ind)
	lineage, err := x.hierarchy.Lineage(ctx, ind.AddressLevelUUID)
	if err != nil {
		return nil, fmt.Errorf("address of subject %s: %w", ind.UUID, err)
	}
	for _, lvl := range l.AddressLevels {
		cells = append(cells, Quote(lineage[lvl]))
	}
	if isGroup {
		cells = append(cells, fmt.Sprint(ind.ActiveMemberCount()))
	}
	return obsCells(cells, r, b.Index, b.Main, ind.Observations), nil
}

// encounters emits each block's live encounters, oldest first, then blank
// repeats up to the block's maximum.
func (x *Extractor) encounters(cells []string, r Renderer, blocks []*Block, byType map[string][]*subject.Encounter) []string {
	for _, b := range blocks {
		encs := liveEncounters(byType[b.Entity.UUID])
		if len(encs) > b.MaxCount {
			x.logger.Warn().Str("encounter_type", b.Entity.Name).
				Int("count", len(encs)).Int("max", b.MaxCount).
				Msg("more encounters than planned, extra ones dropped")
			encs = encs[:b.MaxCount]
		}
		for _, enc := range encs {
			cells = staticCells(cells, r, encounterFields, b.StaticKeys, enc)
			cells = obsCells(cells, r, b.Index, b.Main, enc.Observations)
			cells = obsCells(cells, r, b.Index, b.Secondary, enc.CancelObservations)
		}
		cells = blanks(cells, b.Width*(b.MaxCount-len(encs)))
	}
	return cells
}

func liveEncounters(encs []*subject.Encounter) []*subject.Encounter {
	out := make([]*subject.Encounter, 0, len(encs))
	for _, e := range encs {
		if !e.Voided {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func staticCells[T any](cells []string, r Renderer, table fieldTable[T], keys []string, v T) []string {
	for _, k := range keys {
		f, _ := table.lookup(k)
		cells = append(cells, r.Static(f.Get(v)))
	}
	return cells
}

func obsCells(cells []string, r Renderer, idx *schema.Index, fields []*schema.FormElement, obs observation.Collection) []string {
	for _, fe := range fields {
		cells = append(cells, r.Obs(fe, obsValue(idx, fe, obs))...)
	}
	return cells
}

// obsValue reads fe's value, looking inside the parent question group for
// grouped elements. For repeatable groups the first entry is used.
func obsValue(idx *schema.Index, fe *schema.FormElement, obs observation.Collection) any {
	parent, ok := idx.Parent(fe)
	if !ok {
		v, _ := obs.Get(fe.Concept.UUID)
		return v
	}
	v, _ := obs.Nested(parent.Concept.UUID).Get(fe.Concept.UUID)
	return v
}

func blanks(cells []string, n int) []string {
	for i := 0; i < n; i++ {
		cells = append(cells, "")
	}
	return cells
}
