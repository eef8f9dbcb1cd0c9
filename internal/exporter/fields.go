package exporter

import (
	"time"

	"github.com/avni/avni-server/internal/domain/subject"
)

// staticField is a fixed attribute of an entity: its key in an export
// definition, its column label and its accessor.
type staticField[T any] struct {
	Key   string
	Label string
	Get   func(T) any
}

type fieldTable[T any] []staticField[T]

func (t fieldTable[T]) lookup(key string) (staticField[T], bool) {
	for _, f := range t {
		if f.Key == key {
			return f, true
		}
	}
	return staticField[T]{}, false
}

// keys returns the selected static keys in selection order. Without any
// static key in selected, every key is returned in table order.
func (t fieldTable[T]) keys(selected []string) []string {
	var out []string
	for _, k := range selected {
		if _, ok := t.lookup(k); ok {
			out = append(out, k)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, f := range t {
		out = append(out, f.Key)
	}
	return out
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

var registrationFields = fieldTable[*subject.Individual]{
	{"id", "id", func(i *subject.Individual) any { return i.ID }},
	{"uuid", "uuid", func(i *subject.Individual) any { return i.UUID }},
	{"legacyId", "legacy_id", func(i *subject.Individual) any { return i.LegacyID }},
	{"firstName", "first_name", func(i *subject.Individual) any { return i.FirstName }},
	{"middleName", "middle_name", func(i *subject.Individual) any { return i.MiddleName }},
	{"lastName", "last_name", func(i *subject.Individual) any { return i.LastName }},
	{"dateOfBirth", "date_of_birth", func(i *subject.Individual) any { return dateOnly(i.DateOfBirth) }},
	{"registrationDate", "registration_date", func(i *subject.Individual) any { return dateOnly(&i.RegistrationDate) }},
	{"gender", "gender", func(i *subject.Individual) any { return i.Gender }},
	{"createdBy", "created_by", func(i *subject.Individual) any { return i.CreatedBy }},
	{"createdDateTime", "created_date_time", func(i *subject.Individual) any { return i.CreatedAt }},
	{"lastModifiedBy", "last_modified_by", func(i *subject.Individual) any { return i.LastModifiedBy }},
	{"lastModifiedDateTime", "last_modified_date_time", func(i *subject.Individual) any { return i.LastModifiedAt }},
	{"voided", "voided", func(i *subject.Individual) any { return i.Voided }},
}

var enrolmentFields = fieldTable[*subject.ProgramEnrolment]{
	{"id", "id", func(e *subject.ProgramEnrolment) any { return e.ID }},
	{"uuid", "uuid", func(e *subject.ProgramEnrolment) any { return e.UUID }},
	{"enrolmentDateTime", "enrolment_date_time", func(e *subject.ProgramEnrolment) any { return e.EnrolmentDateTime }},
	{"programExitDateTime", "program_exit_date_time", func(e *subject.ProgramEnrolment) any { return optTime(e.ProgramExitDateTime) }},
	{"createdBy", "created_by", func(e *subject.ProgramEnrolment) any { return e.CreatedBy }},
	{"createdDateTime", "created_date_time", func(e *subject.ProgramEnrolment) any { return e.CreatedAt }},
	{"lastModifiedBy", "last_modified_by", func(e *subject.ProgramEnrolment) any { return e.LastModifiedBy }},
	{"lastModifiedDateTime", "last_modified_date_time", func(e *subject.ProgramEnrolment) any { return e.LastModifiedAt }},
	{"voided", "voided", func(e *subject.ProgramEnrolment) any { return e.Voided }},
}

var encounterFields = fieldTable[*subject.Encounter]{
	{"id", "id", func(e *subject.Encounter) any { return e.ID }},
	{"uuid", "uuid", func(e *subject.Encounter) any { return e.UUID }},
	{"name", "name", func(e *subject.Encounter) any { return e.Name }},
	{"earliestVisitDateTime", "earliest_visit_date_time", func(e *subject.Encounter) any { return optTime(e.EarliestVisitDateTime) }},
	{"maxVisitDateTime", "max_visit_date_time", func(e *subject.Encounter) any { return optTime(e.MaxVisitDateTime) }},
	{"encounterDateTime", "encounter_date_time", func(e *subject.Encounter) any { return optTime(e.EncounterDateTime) }},
	{"cancelDateTime", "cancel_date_time", func(e *subject.Encounter) any { return optTime(e.CancelDateTime) }},
	{"createdBy", "created_by", func(e *subject.Encounter) any { return e.CreatedBy }},
	{"createdDateTime", "created_date_time", func(e *subject.Encounter) any { return e.CreatedAt }},
	{"lastModifiedBy", "last_modified_by", func(e *subject.Encounter) any { return e.LastModifiedBy }},
	{"lastModifiedDateTime", "last_modified_date_time", func(e *subject.Encounter) any { return e.LastModifiedAt }},
	{"voided", "voided", func(e *subject.Encounter) any { return e.Voided }},
}

// calendarDate marks a date without a time of day. It renders without a
// timezone shift.
type calendarDate struct{ time.Time }

func dateOnly(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return calendarDate{*t}
}
