package exporter

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/domain/location"
	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
)

var (
	person    = subject.SubjectType{UUID: "st-person", Name: "Person"}
	household = subject.SubjectType{UUID: "st-household", Name: "Household", IsGroup: true}

	conceptWeight   = &schema.Concept{UUID: "c-weight", Name: "Weight", DataType: schema.DataTypeNumeric}
	conceptVisit    = &schema.Concept{UUID: "c-visit", Name: "Visit date", DataType: schema.DataTypeDate}
	conceptNotes    = &schema.Concept{UUID: "c-notes", Name: "Notes", DataType: schema.DataTypeText}
	conceptVitals   = &schema.Concept{UUID: "c-vitals", Name: "Vitals", DataType: schema.DataTypeQuestionGroup}
	conceptPulse    = &schema.Concept{UUID: "c-pulse", Name: "Pulse", DataType: schema.DataTypeNumeric}
	conceptRisk     = codedConcept("c-risk", "Risk", "High", "Low")
	conceptSymptoms = codedConcept("c-symptoms", "Symptoms", "Fever", "Cough", "Cold")
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

func testForms() *schema.MemoryStore {
	single, multi := schema.FormElementSingleSelect, schema.FormElementMultiSelect
	store := schema.NewMemoryStore()
	store.AddForms(
		&schema.Form{UUID: "f-reg", Name: "Person Registration", FormType: schema.FormTypeRegistration, Elements: []*schema.FormElement{
			element("fe-weight", 1, conceptWeight, single, ""),
			element("fe-visit", 2, conceptVisit, single, ""),
			element("fe-symptoms", 3, conceptSymptoms, multi, ""),
			element("fe-risk", 4, conceptRisk, single, ""),
			element("fe-vitals", 5, conceptVitals, single, ""),
			element("fe-pulse", 6, conceptPulse, single, "fe-vitals"),
		}},
		&schema.Form{UUID: "f-anc", Name: "ANC", FormType: schema.FormTypeEncounter, Elements: []*schema.FormElement{
			element("fe-anc-weight", 1, conceptWeight, single, ""),
		}},
		&schema.Form{UUID: "f-anc-cancel", Name: "ANC cancel", FormType: schema.FormTypeIndividualEncounterCancellation, Elements: []*schema.FormElement{
			element("fe-anc-notes", 1, conceptNotes, single, ""),
		}},
		&schema.Form{UUID: "f-enrol", Name: "Pregnancy enrolment", FormType: schema.FormTypeProgramEnrolment, Elements: []*schema.FormElement{
			element("fe-enrol-risk", 1, conceptRisk, single, ""),
		}},
		&schema.Form{UUID: "f-pnc", Name: "PNC", FormType: schema.FormTypeProgramEncounter, Elements: []*schema.FormElement{
			element("fe-pnc-weight", 1, conceptWeight, single, ""),
		}},
		&schema.Form{UUID: "f-hh", Name: "Household registration", FormType: schema.FormTypeRegistration, Elements: []*schema.FormElement{
			element("fe-hh-notes", 1, conceptNotes, single, ""),
		}},
	)
	store.AddFormMappings(
		schema.FormMapping{FormUUID: "f-reg", SubjectTypeUUID: "st-person"},
		schema.FormMapping{FormUUID: "f-anc", SubjectTypeUUID: "st-person", EncounterTypeUUID: "et-anc"},
		schema.FormMapping{FormUUID: "f-anc-cancel", SubjectTypeUUID: "st-person", EncounterTypeUUID: "et-anc"},
		schema.FormMapping{FormUUID: "f-enrol", SubjectTypeUUID: "st-person", ProgramUUID: "p-preg"},
		schema.FormMapping{FormUUID: "f-pnc", SubjectTypeUUID: "st-person", ProgramUUID: "p-preg", EncounterTypeUUID: "et-pnc"},
		schema.FormMapping{FormUUID: "f-hh", SubjectTypeUUID: "st-household"},
	)
	return store
}

func testHierarchy() *location.Service {
	repo := location.NewMemoryRepo()
	repo.AddTypes(
		&location.AddressLevelType{UUID: "t-village", Name: "Village", Level: 1},
		&location.AddressLevelType{UUID: "t-district", Name: "District", Level: 2},
	)
	repo.AddLevels(
		&location.AddressLevel{UUID: "d-pune", Title: "Pune", TypeUUID: "t-district"},
		&location.AddressLevel{UUID: "v-rampur", Title: "Rampur", TypeUUID: "t-village", ParentUUID: "d-pune"},
	)
	return location.NewService(repo, zerolog.Nop())
}

func testOutput() ExportOutput {
	return ExportOutput{
		ExportEntityType: ExportEntityType{UUID: "st-person", Fields: []string{"uuid", "firstName"}},
		Encounters:       []ExportEntityType{{UUID: "et-anc", Name: "ANC", Fields: []string{"encounterDateTime"}}},
		Programs: []ExportNestedOutput{{
			ExportEntityType: ExportEntityType{UUID: "p-preg", Name: "Pregnancy", Fields: []string{"enrolmentDateTime"}},
			Encounters:       []ExportEntityType{{UUID: "et-pnc", Name: "PNC", Fields: []string{"uuid"}}},
		}},
		Groups:   []ExportNestedOutput{{ExportEntityType: ExportEntityType{UUID: "st-household", Name: "Household", Fields: []string{"firstName"}}}},
		Timezone: "Asia/Kolkata",
	}
}

var (
	ist  = time.FixedZone("IST", 5*3600+1800)
	day1 = time.Date(2024, 3, 5, 10, 30, 0, 0, ist)
)

func individual(id int64, name string) *subject.Individual {
	return &subject.Individual{
		ID: id, UUID: "ind-" + name, FirstName: name, SubjectType: person,
		RegistrationDate: day1, AddressLevelUUID: "v-rampur",
		Observations: observation.Collection{
			"c-weight":   12.5,
			"c-visit":    "2024-03-05T10:30:00.000+05:30",
			"c-symptoms": []any{"a-fever", "a-cold"},
			"c-risk":     "a-high",
			"c-vitals":   map[string]any{"c-pulse": 72.0},
		},
	}
}

func encounters(n int, typeUUID string, startID int64) []*subject.Encounter {
	out := make([]*subject.Encounter, n)
	for i := range out {
		at := day1.AddDate(0, 0, i)
		out[i] = &subject.Encounter{
			ID: startID + int64(i), UUID: "enc-" + typeUUID, EncounterTypeUUID: typeUUID,
			EncounterDateTime: &at, Observations: observation.Collection{"c-weight": float64(10 + i)},
		}
	}
	return out
}

func testRows() []*subject.ExportItemRow {
	many := subject.NewExportItemRow(individual(1, "Asha"))
	many.Encounters["et-anc"] = encounters(3, "et-anc", 100)
	pe := &subject.ProgramEnrolment{ID: 7, UUID: "pe-1", ProgramUUID: "p-preg", EnrolmentDateTime: day1,
		Observations: observation.Collection{"c-risk": "a-low"}}
	many.Enrolments[pe] = map[string][]*subject.Encounter{"et-pnc": encounters(2, "et-pnc", 200)}
	hh := &subject.Individual{ID: 50, UUID: "hh-1", FirstName: "House", SubjectType: household,
		AddressLevelUUID: "v-rampur", Members: []subject.GroupMembership{{MemberUUID: "ind-Asha"}, {MemberUUID: "x", MemberVoided: true}},
		Observations: observation.Collection{"c-notes": "big"}}
	many.GroupSubjects[hh] = map[string][]*subject.Encounter{}

	one := subject.NewExportItemRow(individual(2, "Ravi"))
	one.Encounters["et-anc"] = encounters(1, "et-anc", 300)
	return []*subject.ExportItemRow{many, one}
}

func newTestJob(rows []*subject.ExportItemRow) *Job {
	log := zerolog.Nop()
	repo := subject.NewMemoryRepo(rows...)
	hierarchy := testHierarchy()
	planner := NewPlanner(NewMappedForms(testForms()), DatasetRepeatCounter{Rows: rows}, hierarchy, repo, log)
	return NewJob(planner, NewExtractor(hierarchy, log), repo, log)
}
