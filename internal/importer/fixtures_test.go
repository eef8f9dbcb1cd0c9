package importer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
)

var (
	conceptWeight   = &schema.Concept{UUID: "c-weight", Name: "Weight", DataType: schema.DataTypeNumeric}
	conceptVisit    = &schema.Concept{UUID: "c-visit", Name: "Visit date", DataType: schema.DataTypeDate}
	conceptMobile   = &schema.Concept{UUID: "c-mobile", Name: "Mobile", DataType: schema.DataTypePhoneNumber}
	conceptNotes    = &schema.Concept{UUID: "c-notes", Name: "Notes", DataType: schema.DataTypeText}
	conceptPhoto    = &schema.Concept{UUID: "c-photo", Name: "Photo", DataType: schema.DataTypeImage}
	conceptGallery  = &schema.Concept{UUID: "c-gallery", Name: "Gallery", DataType: schema.DataTypeImage}
	conceptAddress  = &schema.Concept{UUID: "c-address", Name: "Address", DataType: schema.DataTypeLocation}
	conceptMother   = &schema.Concept{UUID: "c-mother", Name: "Mother", DataType: schema.DataTypeSubject}
	conceptVitals   = &schema.Concept{UUID: "c-vitals", Name: "Vitals", DataType: schema.DataTypeQuestionGroup}
	conceptPulse    = &schema.Concept{UUID: "c-pulse", Name: "Pulse", DataType: schema.DataTypeNumeric}
	conceptBP       = &schema.Concept{UUID: "c-bp", Name: "BP", DataType: schema.DataTypeText}
	conceptRisk     = codedConcept("c-risk", "Risk", "High", "Low")
	conceptSymptoms = codedConcept("c-symptoms", "Symptoms", "Fever", "Cough", "Cold")
	conceptAdvice   = codedConcept("c-advice", "Advice", "Rest", "Refer")
	conceptScore    = &schema.Concept{UUID: "c-score", Name: "Score", DataType: schema.DataTypeNumeric}
	conceptOrphan   = &schema.Concept{UUID: "c-orphan", Name: "Orphan", DataType: schema.DataTypeText}
)

func codedConcept(uuid, name string, answers ...string) *schema.Concept {
	c := &schema.Concept{UUID: uuid, Name: name, DataType: schema.DataTypeCoded}
	for i, a := range answers {
		c.Answers = append(c.Answers, schema.ConceptAnswer{
			AnswerConcept: schema.AnswerConcept{UUID: "a-" + strings.ToLower(a), Name: a},
			Order:         float64(i),
		})
	}
	return c
}

func element(uuid string, order float64, c *schema.Concept, typ schema.FormElementType, group string) *schema.FormElement {
	return &schema.FormElement{UUID: uuid, Name: c.Name, DisplayOrder: order, Type: typ, Concept: c, GroupUUID: group}
}

func testStore() *schema.MemoryStore {
	store := schema.NewMemoryStore()
	store.AddConcepts(conceptWeight, conceptVisit, conceptMobile, conceptNotes, conceptPhoto, conceptGallery,
		conceptAddress, conceptMother, conceptVitals, conceptPulse, conceptBP, conceptRisk, conceptSymptoms,
		conceptAdvice, conceptScore, conceptOrphan)
	single, multi := schema.FormElementSingleSelect, schema.FormElementMultiSelect
	store.AddForms(&schema.Form{
		UUID:     "f-reg",
		Name:     "Registration",
		FormType: schema.FormTypeRegistration,
		Elements: []*schema.FormElement{
			element("fe-weight", 1, conceptWeight, single, ""),
			element("fe-visit", 2, conceptVisit, single, ""),
			element("fe-mobile", 3, conceptMobile, single, ""),
			element("fe-notes", 4, conceptNotes, single, ""),
			element("fe-photo", 5, conceptPhoto, single, ""),
			element("fe-gallery", 6, conceptGallery, multi, ""),
			element("fe-address", 7, conceptAddress, single, ""),
			element("fe-mother", 8, conceptMother, single, ""),
			element("fe-vitals", 9, conceptVitals, single, ""),
			element("fe-pulse", 10, conceptPulse, single, "fe-vitals"),
			element("fe-bp", 11, conceptBP, single, "fe-vitals"),
			element("fe-risk", 12, conceptRisk, single, ""),
			element("fe-symptoms", 13, conceptSymptoms, multi, ""),
		},
		DecisionConcepts: []*schema.Concept{conceptAdvice, conceptScore},
	})
	return store
}

func testHierarchy() *location.Service {
	repo := location.NewMemoryRepo()
	repo.AddTypes(
		&location.AddressLevelType{UUID: "t-village", Name: "Village", Level: 1},
		&location.AddressLevelType{UUID: "t-district", Name: "District", Level: 2},
	)
	return location.NewService(repo, zerolog.Nop())
}

type fakeMedia struct {
	oldValues []any
}

func (m *fakeMedia) ResolveForUpload(_ context.Context, token string, oldValue any) (any, error) {
	m.oldValues = append(m.oldValues, oldValue)
	if strings.Contains(token, "bad") {
		return nil, errors.New("Unable to fetch " + token)
	}
	return "media/" + token, nil
}

type fakeIdentity struct {
	prefix string
}

func (f fakeIdentity) ResolveForUpload(_ context.Context, _ *schema.FormElement, token string) (any, error) {
	if token == "unknown" {
		return nil, errors.New("not found")
	}
	return f.prefix + strings.TrimSpace(token), nil
}

type fixture struct {
	store     *schema.MemoryStore
	media     *fakeMedia
	resolver  *Resolver
	coercer   *Coercer
	assembler *Assembler
}

func newFixture() *fixture {
	return newFixtureWith(testHierarchy())
}

func newFixtureWith(hierarchy location.Hierarchy) *fixture {
	f := &fixture{store: testStore(), media: &fakeMedia{}}
	log := zerolog.Nop()
	f.resolver = NewResolver(schema.NewCachedStore(f.store), hierarchy, log)
	f.coercer = NewCoercer(CoercerConfig{Location: time.UTC, Delimiter: ','}, f.media,
		fakeIdentity{prefix: "subject:"}, fakeIdentity{prefix: "location:"}, log)
	f.assembler = NewAssembler(f.resolver, f.coercer, observation.NewService(log), log)
	return f
}

func rowOf(pairs ...string) Row {
	var headers, cells []string
	for i := 0; i+1 < len(pairs); i += 2 {
		headers = append(headers, pairs[i])
		cells = append(cells, pairs[i+1])
	}
	return NewRow(2, headers, cells)
}
