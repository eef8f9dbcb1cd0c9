package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DataType is the data type of a concept. The set is closed; code that
// branches on it should switch over every constant.
type DataType string

const (
	DataTypeText          DataType = "Text"
	DataTypeNumeric       DataType = "Numeric"
	DataTypeDate          DataType = "Date"
	DataTypeDateTime      DataType = "DateTime"
	DataTypeCoded         DataType = "Coded"
	DataTypeImage         DataType = "Image"
	DataTypeVideo         DataType = "Video"
	DataTypePhoneNumber   DataType = "PhoneNumber"
	DataTypeSubject       DataType = "Subject"
	DataTypeLocation      DataType = "Location"
	DataTypeQuestionGroup DataType = "QuestionGroup"
	DataTypeNA            DataType = "NA"
)

var dataTypes = map[DataType]bool{
	DataTypeText:          true,
	DataTypeNumeric:       true,
	DataTypeDate:          true,
	DataTypeDateTime:      true,
	DataTypeCoded:         true,
	DataTypeImage:         true,
	DataTypeVideo:         true,
	DataTypePhoneNumber:   true,
	DataTypeSubject:       true,
	DataTypeLocation:      true,
	DataTypeQuestionGroup: true,
	DataTypeNA:            true,
}

// ParseDataType converts a stored data type name into a DataType.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(s)
	if !dataTypes[dt] {
		return "", fmt.Errorf("unknown concept data type %q", s)
	}
	return dt, nil
}

// IsMedia reports whether values of this type are media references.
func (d DataType) IsMedia() bool {
	return d == DataTypeImage || d == DataTypeVideo
}

// IsDate reports whether values of this type are dates or timestamps.
func (d DataType) IsDate() bool {
	return d == DataTypeDate || d == DataTypeDateTime
}

// IsQuestionGroup reports whether the concept groups child concepts.
func (d DataType) IsQuestionGroup() bool {
	return d == DataTypeQuestionGroup
}

// FormElementType is the UI presentation of a form element. Only the select
// cardinalities matter to the observation engine; other values pass through.
type FormElementType string

const (
	FormElementSingleSelect FormElementType = "SingleSelect"
	FormElementMultiSelect  FormElementType = "MultiSelect"
)

// FormType scopes a form to a workflow stage.
type FormType string

const (
	FormTypeRegistration                    FormType = "IndividualProfile"
	FormTypeProgramEnrolment                FormType = "ProgramEnrolment"
	FormTypeProgramExit                     FormType = "ProgramExit"
	FormTypeProgramEncounter                FormType = "ProgramEncounter"
	FormTypeProgramEncounterCancellation    FormType = "ProgramEncounterCancellation"
	FormTypeEncounter                       FormType = "Encounter"
	FormTypeIndividualEncounterCancellation FormType = "IndividualEncounterCancellation"
)

var formTypes = map[FormType]bool{
	FormTypeRegistration:                    true,
	FormTypeProgramEnrolment:                true,
	FormTypeProgramExit:                     true,
	FormTypeProgramEncounter:                true,
	FormTypeProgramEncounterCancellation:    true,
	FormTypeEncounter:                       true,
	FormTypeIndividualEncounterCancellation: true,
}

// ParseFormType validates a form type name.
func ParseFormType(s string) (FormType, error) {
	ft := FormType(s)
	if !formTypes[ft] {
		return "", fmt.Errorf("unknown form type %q", s)
	}
	return ft, nil
}

// ErrAnswerNotFound is returned when a coded answer name is not registered
// against a concept.
var ErrAnswerNotFound = errors.New("answer concept not found")

// AnswerConcept is the concept referenced by a coded answer.
type AnswerConcept struct {
	UUID string `db:"uuid" json:"uuid" yaml:"uuid"`
	Name string `db:"name" json:"name" yaml:"name"`
}

// ConceptAnswer links a coded concept to one of its answers.
type ConceptAnswer struct {
	AnswerConcept AnswerConcept `json:"answerConcept" yaml:"answerConcept"`
	Order         float64       `db:"answer_order" json:"order" yaml:"order"`
	Voided        bool          `db:"is_voided" json:"voided" yaml:"voided"`
}

// Concept is a named, typed definition of an observable data point.
type Concept struct {
	UUID     string          `db:"uuid" json:"uuid" yaml:"uuid"`
	Name     string          `db:"name" json:"name" yaml:"name"`
	DataType DataType        `db:"data_type" json:"dataType" yaml:"dataType"`
	Answers  []ConceptAnswer `json:"answers,omitempty" yaml:"answers,omitempty"`
	Voided   bool            `db:"is_voided" json:"voided" yaml:"voided"`
}

// SortedAnswers returns the non-voided answers in registered order.
func (c *Concept) SortedAnswers() []ConceptAnswer {
	answers := make([]ConceptAnswer, 0, len(c.Answers))
	for _, a := range c.Answers {
		if !a.Voided {
			answers = append(answers, a)
		}
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Order < answers[j].Order })
	return answers
}

// FindAnswerConcept looks up an answer by name. Matching ignores case and
// surrounding whitespace.
func (c *Concept) FindAnswerConcept(name string) (AnswerConcept, error) {
	want := strings.TrimSpace(name)
	for _, a := range c.SortedAnswers() {
		if strings.EqualFold(strings.TrimSpace(a.AnswerConcept.Name), want) {
			return a.AnswerConcept, nil
		}
	}
	return AnswerConcept{}, fmt.Errorf("%w: %q in %q", ErrAnswerNotFound, want, c.Name)
}

// AnswerName returns the display name of the answer with the given UUID.
func (c *Concept) AnswerName(answerUUID string) (string, bool) {
	for _, a := range c.SortedAnswers() {
		if a.AnswerConcept.UUID == answerUUID {
			return a.AnswerConcept.Name, true
		}
	}
	return "", false
}

// FormElement binds a concept to a position in a form. GroupUUID refers to
// the parent question-group element, if any.
type FormElement struct {
	UUID         string          `db:"uuid" json:"uuid"`
	Name         string          `db:"name" json:"name"`
	DisplayOrder float64         `db:"display_order" json:"displayOrder"`
	Type         FormElementType `db:"type" json:"type"`
	Concept      *Concept        `json:"concept"`
	GroupUUID    string          `db:"group_uuid" json:"groupUUID,omitempty"`
	Voided       bool            `db:"is_voided" json:"voided"`
}

// IsMultiSelect reports whether the element accepts several answers.
func (fe *FormElement) IsMultiSelect() bool {
	return fe.Type == FormElementMultiSelect
}

// Form is an ordered set of form elements plus derived decision concepts.
type Form struct {
	UUID             string         `db:"uuid" json:"uuid"`
	Name             string         `db:"name" json:"name"`
	FormType         FormType       `db:"form_type" json:"formType"`
	Elements         []*FormElement `json:"elements"`
	DecisionConcepts []*Concept     `json:"decisionConcepts,omitempty"`
	Voided           bool           `db:"is_voided" json:"voided"`
}

// AllFormElements returns the non-voided elements in display order.
func (f *Form) AllFormElements() []*FormElement {
	out := make([]*FormElement, 0, len(f.Elements))
	for _, fe := range f.Elements {
		if !fe.Voided {
			out = append(out, fe)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// DecisionFormElements synthesises a form element for each decision concept.
// Coded decisions are multi-select; everything else is single-select.
func (f *Form) DecisionFormElements() []*FormElement {
	out := make([]*FormElement, 0, len(f.DecisionConcepts))
	for _, dc := range f.DecisionConcepts {
		typ := FormElementSingleSelect
		if dc.DataType == DataTypeCoded {
			typ = FormElementMultiSelect
		}
		out = append(out, &FormElement{Name: dc.Name, Type: typ, Concept: dc})
	}
	return out
}

// FormMapping binds a form to the subject type, program and encounter type
// it is filled for. Empty program or encounter type means none.
type FormMapping struct {
	FormUUID          string `db:"form_uuid" json:"formUUID" yaml:"form"`
	SubjectTypeUUID   string `db:"subject_type_uuid" json:"subjectTypeUUID" yaml:"subjectType"`
	ProgramUUID       string `db:"program_uuid" json:"programUUID,omitempty" yaml:"program,omitempty"`
	EncounterTypeUUID string `db:"encounter_type_uuid" json:"encounterTypeUUID,omitempty" yaml:"encounterType,omitempty"`
}

// Matches reports whether the mapping serves the given entity types. An
// empty subjectTypeUUID matches any subject type.
func (m FormMapping) Matches(subjectTypeUUID, programUUID, encounterTypeUUID string) bool {
	if subjectTypeUUID != "" && m.SubjectTypeUUID != subjectTypeUUID {
		return false
	}
	return m.ProgramUUID == programUUID && m.EncounterTypeUUID == encounterTypeUUID
}
