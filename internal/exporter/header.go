package exporter

import (
	"strconv"

	"github.com/avni/avni-server/internal/domain/schema"
)

const memberCountLabel = "total_members"

// HeaderCreator names the columns of a layout in the order Extractor emits
// them.
type HeaderCreator struct{}

func (HeaderCreator) Header(l *Layout) []string {
	h := make([]string, 0, l.Width())
	h = registrationHeader(h, l.Registration, l.AddressLevels, l.IsGroup)
	h = encounterHeaders(h, "", l.Encounters)
	for _, g := range l.Groups {
		h = registrationHeader(h, g.Registration, l.AddressLevels, true)
		h = encounterHeaders(h, g.Registration.Entity.Name+"_", g.Encounters)
	}
	for _, p := range l.Programs {
		e := p.Enrolment
		prefix := e.Entity.Name
		h = staticHeaders(h, prefix, enrolmentFields, e.StaticKeys)
		h = obsHeaders(h, prefix, e.Index, e.Main)
		h = obsHeaders(h, prefix+".exit", e.Index, e.Secondary)
		h = encounterHeaders(h, prefix+"_", p.Encounters)
	}
	return h
}

func registrationHeader(h []string, b *Block, levels []string, isGroup bool) []string {
	prefix := b.Entity.Name
	h = staticHeaders(h, prefix, registrationFields, b.StaticKeys)
	for _, lvl := range levels {
		h = append(h, Quote(prefix+"."+lvl))
	}
	if isGroup {
		h = append(h, Quote(prefix+"."+memberCountLabel))
	}
	return obsHeaders(h, prefix, b.Index, b.Main)
}

func encounterHeaders(h []string, parent string, blocks []*Block) []string {
	for _, b := range blocks {
		for n := 1; n <= b.MaxCount; n++ {
			prefix := parent + b.Entity.Name + "_" + strconv.Itoa(n)
			h = staticHeaders(h, prefix, encounterFields, b.StaticKeys)
			h = obsHeaders(h, prefix, b.Index, b.Main)
			h = obsHeaders(h, prefix+".cancel", b.Index, b.Secondary)
		}
	}
	return h
}

func staticHeaders[T any](h []string, prefix string, table fieldTable[T], keys []string) []string {
	for _, k := range keys {
		f, _ := table.lookup(k)
		h = append(h, Quote(prefix+"."+f.Label))
	}
	return h
}

func obsHeaders(h []string, prefix string, idx *schema.Index, fields []*schema.FormElement) []string {
	for _, fe := range fields {
		name := fe.Concept.Name
		if parent, ok := idx.Parent(fe); ok {
			name = parent.Concept.Name + "|" + name
		}
		if fe.Concept.DataType == schema.DataTypeCoded && fe.IsMultiSelect() {
			for _, a := range fe.Concept.SortedAnswers() {
				h = append(h, Quote(prefix+"."+name+"_"+a.AnswerConcept.Name))
			}
			continue
		}
		h = append(h, Quote(prefix+"."+name))
	}
	return h
}
