package exporter

import (
	"context"
	"errors"
	"fmt"

	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/domain/subject"
)

// FormSource supplies the forms an export is laid out from. Secondary forms
// (exit, cancellation) may be nil.
type FormSource interface {
	RegistrationForm(ctx context.Context, subjectTypeUUID string) (*schema.Form, error)
	EnrolmentForms(ctx context.Context, subjectTypeUUID, programUUID string) (enrolment, exit *schema.Form, err error)
	EncounterForms(ctx context.Context, subjectTypeUUID, encounterTypeUUID, programUUID string) (encounter, cancel *schema.Form, err error)
}

// RepeatCounter reports how many times an encounter type repeats at most,
// per subject or per enrolment when programUUID is set.
type RepeatCounter interface {
	MaxEncounterCount(ctx context.Context, encounterTypeUUID, programUUID string) (int, error)
}

// SubjectTypes resolves subject type metadata.
type SubjectTypes interface {
	SubjectType(ctx context.Context, uuid string) (*subject.SubjectType, error)
}

// MappedForms implements FormSource over form mappings.
type MappedForms struct {
	mapper schema.FormMapper
}

func NewMappedForms(mapper schema.FormMapper) *MappedForms {
	return &MappedForms{mapper: mapper}
}

func (m *MappedForms) RegistrationForm(ctx context.Context, subjectTypeUUID string) (*schema.Form, error) {
	return m.mapper.MappedForm(ctx, schema.FormTypeRegistration, subjectTypeUUID, "", "")
}

func (m *MappedForms) EnrolmentForms(ctx context.Context, subjectTypeUUID, programUUID string) (*schema.Form, *schema.Form, error) {
	enrolment, err := m.mapper.MappedForm(ctx, schema.FormTypeProgramEnrolment, subjectTypeUUID, programUUID, "")
	if err != nil {
		return nil, nil, err
	}
	exit, err := m.optional(ctx, schema.FormTypeProgramExit, subjectTypeUUID, programUUID, "")
	return enrolment, exit, err
}

func (m *MappedForms) EncounterForms(ctx context.Context, subjectTypeUUID, encounterTypeUUID, programUUID string) (*schema.Form, *schema.Form, error) {
	formType, cancelType := schema.FormTypeEncounter, schema.FormTypeIndividualEncounterCancellation
	if programUUID != "" {
		formType, cancelType = schema.FormTypeProgramEncounter, schema.FormTypeProgramEncounterCancellation
	}
	encounter, err := m.mapper.MappedForm(ctx, formType, subjectTypeUUID, programUUID, encounterTypeUUID)
	if err != nil {
		return nil, nil, err
	}
	cancel, err := m.optional(ctx, cancelType, subjectTypeUUID, programUUID, encounterTypeUUID)
	return encounter, cancel, err
}

func (m *MappedForms) optional(ctx context.Context, ft schema.FormType, subjectTypeUUID, programUUID, encounterTypeUUID string) (*schema.Form, error) {
	f, err := m.mapper.MappedForm(ctx, ft, subjectTypeUUID, programUUID, encounterTypeUUID)
	if errors.Is(err, schema.ErrFormNotMapped) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s form: %w", ft, err)
	}
	return f, nil
}

// DatasetRepeatCounter computes repeat maxima from rows already in memory.
type DatasetRepeatCounter struct {
	Rows []*subject.ExportItemRow
}

func (d DatasetRepeatCounter) MaxEncounterCount(_ context.Context, encounterTypeUUID, programUUID string) (int, error) {
	return subject.MaxEncounterCount(d.Rows, encounterTypeUUID, programUUID), nil
}
