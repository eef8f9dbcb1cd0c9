package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/schema"
)

// Block is the column plan of one entity. Main fields come from the
// entity's own form, Secondary from its exit or cancellation form.
type Block struct {
	Entity     ExportEntityType
	StaticKeys []string
	Main       []*schema.FormElement
	Secondary  []*schema.FormElement
	Index      *schema.Index
	// MaxCount is the number of repeats of an encounter block; 1 otherwise.
	MaxCount int
	// Width is the number of columns of a single repeat.
	Width int
}

// Total is the number of columns the block occupies in a row.
func (b *Block) Total() int { return b.Width * b.MaxCount }

// ProgramBlock is an enrolment followed by its encounter blocks.
type ProgramBlock struct {
	Enrolment  *Block
	Encounters []*Block
}

func (p *ProgramBlock) Total() int { return p.Enrolment.Total() + totalOf(p.Encounters) }

// GroupBlock is a group subject's registration followed by its encounter
// blocks. Registration.Width already counts address and member columns.
type GroupBlock struct {
	Registration *Block
	Encounters   []*Block
}

func (g *GroupBlock) Total() int { return g.Registration.Total() + totalOf(g.Encounters) }

// Layout is the full column plan of an export. It is computed once, before
// any row, and never changes afterwards.
type Layout struct {
	Registration  *Block
	IsGroup       bool
	AddressLevels []string
	Encounters    []*Block
	Groups        []*GroupBlock
	Programs      []*ProgramBlock
	Location      *time.Location
}

// Width is the number of columns in every row.
func (l *Layout) Width() int {
	n := l.Registration.Total() + totalOf(l.Encounters)
	for _, g := range l.Groups {
		n += g.Total()
	}
	for _, p := range l.Programs {
		n += p.Total()
	}
	return n
}

func totalOf(blocks []*Block) int {
	n := 0
	for _, b := range blocks {
		n += b.Total()
	}
	return n
}

// Planner computes export layouts.
type Planner struct {
	forms     FormSource
	counter   RepeatCounter
	hierarchy location.Hierarchy
	types     SubjectTypes
	loc       *time.Location
	logger    zerolog.Logger
}

// NewPlanner creates a planner. Dates are rendered in UTC unless
// WithLocation or the output's Timezone says otherwise.
func NewPlanner(forms FormSource, counter RepeatCounter, hierarchy location.Hierarchy, types SubjectTypes, logger zerolog.Logger) *Planner {
	return &Planner{
		forms:     forms,
		counter:   counter,
		hierarchy: hierarchy,
		types:     types,
		loc:       time.UTC,
		logger:    logger.With().Str("component", "export-planner").Logger(),
	}
}

// WithLocation sets the timezone used when an export names none.
func (p *Planner) WithLocation(loc *time.Location) *Planner {
	if loc != nil {
		p.loc = loc
	}
	return p
}

// Plan lays out out. Any missing form or counter failure is returned.
func (p *Planner) Plan(ctx context.Context, out ExportOutput) (*Layout, error) {
	if err := out.Validate(); err != nil {
		return nil, err
	}
	loc := p.loc
	if out.Timezone != "" {
		l, err := time.LoadLocation(out.Timezone)
		if err != nil {
			return nil, fmt.Errorf("export timezone: %w", err)
		}
		loc = l
	}
	levels, err := p.hierarchy.LevelTypeNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("address level types: %w", err)
	}
	st, err := p.types.SubjectType(ctx, out.UUID)
	if err != nil {
		return nil, fmt.Errorf("subject type %s: %w", out.UUID, err)
	}

	layout := &Layout{IsGroup: st.IsGroup, AddressLevels: levels, Location: loc}
	entity := out.ExportEntityType
	if entity.Name == "" {
		entity.Name = st.Name
	}
	if layout.Registration, err = p.registrationBlock(ctx, entity, len(levels), st.IsGroup); err != nil {
		return nil, err
	}
	if layout.Encounters, err = p.encounterBlocks(ctx, out.UUID, "", out.Encounters); err != nil {
		return nil, err
	}
	for _, g := range out.Groups {
		gb, err := p.groupBlock(ctx, g, len(levels))
		if err != nil {
			return nil, err
		}
		layout.Groups = append(layout.Groups, gb)
	}
	for _, prog := range out.Programs {
		pb, err := p.programBlock(ctx, out.UUID, prog)
		if err != nil {
			return nil, err
		}
		layout.Programs = append(layout.Programs, pb)
	}
	p.logger.Debug().Str("subject_type", entity.Name).Int("columns", layout.Width()).Msg("export planned")
	return layout, nil
}

func (p *Planner) registrationBlock(ctx context.Context, entity ExportEntityType, addressLevels int, isGroup bool) (*Block, error) {
	form, err := p.forms.RegistrationForm(ctx, entity.UUID)
	if err != nil {
		return nil, fmt.Errorf("registration form of %s: %w", entity.Name, err)
	}
	b := newBlock(entity, registrationFields.keys(entity.Fields), form, nil)
	b.Width += addressLevels
	if isGroup {
		b.Width++
	}
	return b, nil
}

func (p *Planner) groupBlock(ctx context.Context, g ExportNestedOutput, addressLevels int) (*GroupBlock, error) {
	reg, err := p.registrationBlock(ctx, g.ExportEntityType, addressLevels, true)
	if err != nil {
		return nil, err
	}
	encs, err := p.encounterBlocks(ctx, g.UUID, "", g.Encounters)
	if err != nil {
		return nil, err
	}
	return &GroupBlock{Registration: reg, Encounters: encs}, nil
}

func (p *Planner) programBlock(ctx context.Context, subjectTypeUUID string, prog ExportNestedOutput) (*ProgramBlock, error) {
	enrolment, exit, err := p.forms.EnrolmentForms(ctx, subjectTypeUUID, prog.UUID)
	if err != nil {
		return nil, fmt.Errorf("enrolment form of %s: %w", prog.Name, err)
	}
	encs, err := p.encounterBlocks(ctx, subjectTypeUUID, prog.UUID, prog.Encounters)
	if err != nil {
		return nil, err
	}
	return &ProgramBlock{
		Enrolment:  newBlock(prog.ExportEntityType, enrolmentFields.keys(prog.Fields), enrolment, exit),
		Encounters: encs,
	}, nil
}

func (p *Planner) encounterBlocks(ctx context.Context, subjectTypeUUID, programUUID string, entities []ExportEntityType) ([]*Block, error) {
	blocks := make([]*Block, 0, len(entities))
	for _, e := range entities {
		form, cancel, err := p.forms.EncounterForms(ctx, subjectTypeUUID, e.UUID, programUUID)
		if err != nil {
			return nil, fmt.Errorf("encounter form of %s: %w", e.Name, err)
		}
		max, err := p.counter.MaxEncounterCount(ctx, e.UUID, programUUID)
		if err != nil {
			return nil, fmt.Errorf("encounter count of %s: %w", e.Name, err)
		}
		b := newBlock(e, encounterFields.keys(e.Fields), form, cancel)
		b.MaxCount = max
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func newBlock(entity ExportEntityType, staticKeys []string, main, secondary *schema.Form) *Block {
	if entity.Name == "" && main != nil {
		entity.Name = main.Name
	}
	b := &Block{
		Entity:     entity,
		StaticKeys: staticKeys,
		Main:       obsFields(main, entity.Fields),
		Secondary:  obsFields(secondary, entity.Fields),
		Index:      schema.NewIndex(main, secondary),
		MaxCount:   1,
	}
	b.Width = len(staticKeys) + obsWidth(b.Main) + obsWidth(b.Secondary)
	return b
}

// obsFields lists the concept columns of form: one element per concept in
// display order, question groups replaced by their members, decision
// concepts last. When selected names any concept UUID only those concepts
// are kept.
func obsFields(form *schema.Form, selected []string) []*schema.FormElement {
	if form == nil {
		return nil
	}
	wanted := make(map[string]bool)
	for _, s := range selected {
		wanted[s] = true
	}
	all := append(form.AllFormElements(), form.DecisionFormElements()...)
	filter := false
	for _, fe := range all {
		if wanted[fe.Concept.UUID] {
			filter = true
			break
		}
	}

	seen := make(map[string]bool)
	var out []*schema.FormElement
	for _, fe := range all {
		c := fe.Concept
		if c.DataType.IsQuestionGroup() || seen[c.UUID] {
			continue
		}
		if filter && !wanted[c.UUID] {
			continue
		}
		seen[c.UUID] = true
		out = append(out, fe)
	}
	return out
}

func obsWidth(fields []*schema.FormElement) int {
	n := 0
	for _, fe := range fields {
		n += Width(fe)
	}
	return n
}
