package subject

import (
	"context"
	"errors"
)

var (
	ErrSubjectNotFound   = errors.New("subject not found")
	ErrEnrolmentNotFound = errors.New("program enrolment not found")
	ErrEncounterNotFound = errors.New("encounter not found")
)

// Repository reads the subject graph for exports.
type Repository interface {
	// ExportRows calls fn for every subject of subjectTypeUUID passing
	// filters, in id order. Returning an error from fn stops the scan.
	ExportRows(ctx context.Context, subjectTypeUUID string, filters ExportFilters, fn func(*ExportItemRow) error) error
	// MaxEncounterCount returns the largest number of non-voided encounters
	// of one type held by a single subject, or by a single enrolment when
	// programUUID is set.
	MaxEncounterCount(ctx context.Context, encounterTypeUUID, programUUID string) (int, error)
	SubjectType(ctx context.Context, uuid string) (*SubjectType, error)
}

// Lookup finds individuals by identifier, for upload resolution.
type Lookup interface {
	ByUUID(ctx context.Context, uuid string) (*Individual, error)
	ByLegacyID(ctx context.Context, legacyID string) (*Individual, error)
}

// Records finds the stored record a re-uploaded row updates, by its id from
// the previous system. Voided records are never returned.
type Records interface {
	ByLegacyID(ctx context.Context, legacyID string) (*Individual, error)
	EnrolmentByLegacyID(ctx context.Context, legacyID string) (*ProgramEnrolment, error)
	EncounterByLegacyID(ctx context.Context, legacyID string) (*Encounter, error)
}
