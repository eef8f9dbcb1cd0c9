package subject

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepo holds a prebuilt set of export rows. It backs tests and
// exports over an already loaded dataset.
type MemoryRepo struct {
	mu    sync.RWMutex
	rows  []*ExportItemRow
	types map[string]*SubjectType
}

func NewMemoryRepo(rows ...*ExportItemRow) *MemoryRepo {
	r := &MemoryRepo{types: make(map[string]*SubjectType)}
	r.Add(rows...)
	return r
}

// Add appends rows and registers their subject types.
func (r *MemoryRepo) Add(rows ...*ExportItemRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		r.rows = append(r.rows, row)
		st := row.Individual.SubjectType
		r.types[st.UUID] = &st
		for g := range row.GroupSubjects {
			gst := g.SubjectType
			r.types[gst.UUID] = &gst
		}
	}
	sort.SliceStable(r.rows, func(i, j int) bool { return r.rows[i].Individual.ID < r.rows[j].Individual.ID })
}

func (r *MemoryRepo) ExportRows(ctx context.Context, subjectTypeUUID string, filters ExportFilters, fn func(*ExportItemRow) error) error {
	r.mu.RLock()
	rows := append([]*ExportItemRow(nil), r.rows...)
	r.mu.RUnlock()
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if row.Individual.SubjectType.UUID != subjectTypeUUID || !filters.Matches(row.Individual) {
			continue
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepo) MaxEncounterCount(_ context.Context, encounterTypeUUID, programUUID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return MaxEncounterCount(r.rows, encounterTypeUUID, programUUID), nil
}

func (r *MemoryRepo) SubjectType(_ context.Context, uuid string) (*SubjectType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.types[uuid]
	if !ok {
		return nil, fmt.Errorf("subject type not found: %s", uuid)
	}
	return st, nil
}

func (r *MemoryRepo) ByUUID(_ context.Context, uuid string) (*Individual, error) {
	return r.find(func(ind *Individual) bool { return ind.UUID == uuid }, uuid)
}

func (r *MemoryRepo) ByLegacyID(_ context.Context, legacyID string) (*Individual, error) {
	return r.find(func(ind *Individual) bool { return ind.LegacyID != "" && ind.LegacyID == legacyID && !ind.Voided }, legacyID)
}

func (r *MemoryRepo) EnrolmentByLegacyID(_ context.Context, legacyID string) (*ProgramEnrolment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, row := range r.rows {
		for pe := range row.Enrolments {
			if pe.LegacyID != "" && pe.LegacyID == legacyID && !pe.Voided {
				return pe, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEnrolmentNotFound, legacyID)
}

func (r *MemoryRepo) EncounterByLegacyID(_ context.Context, legacyID string) (*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	match := func(byType map[string][]*Encounter) *Encounter {
		for _, encs := range byType {
			for _, e := range encs {
				if e.LegacyID != "" && e.LegacyID == legacyID && !e.Voided {
					return e
				}
			}
		}
		return nil
	}
	for _, row := range r.rows {
		if e := match(row.Encounters); e != nil {
			return e, nil
		}
		for _, byType := range row.Enrolments {
			if e := match(byType); e != nil {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEncounterNotFound, legacyID)
}

func (r *MemoryRepo) find(match func(*Individual) bool, key string) (*Individual, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, row := range r.rows {
		if match(row.Individual) {
			return row.Individual, nil
		}
		for g := range row.GroupSubjects {
			if match(g) {
				return g, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, key)
}

// MaxEncounterCount computes the repeat maximum over rows. General
// encounters are counted per subject, and program encounters per enrolment
// in programUUID. Group subject encounters count once per distinct group.
func MaxEncounterCount(rows []*ExportItemRow, encounterTypeUUID, programUUID string) int {
	max := 0
	seenGroups := make(map[string]bool)
	for _, row := range rows {
		if programUUID != "" {
			for pe, encs := range row.Enrolments {
				if pe.ProgramUUID == programUUID {
					max = maxInt(max, countLive(encs[encounterTypeUUID]))
				}
			}
			continue
		}
		max = maxInt(max, countLive(row.Encounters[encounterTypeUUID]))
		for g, encs := range row.GroupSubjects {
			if seenGroups[g.UUID] {
				continue
			}
			seenGroups[g.UUID] = true
			max = maxInt(max, countLive(encs[encounterTypeUUID]))
		}
	}
	return max
}

func countLive(encs []*Encounter) int {
	n := 0
	for _, e := range encs {
		if !e.Voided {
			n++
		}
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
