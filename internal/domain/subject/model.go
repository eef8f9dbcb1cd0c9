package subject

import (
	"time"

	"github.com/avni/avni-server/internal/domain/observation"
)

// SubjectType classifies individuals. Group subject types have members.
type SubjectType struct {
	UUID    string `db:"uuid" json:"uuid"`
	Name    string `db:"name" json:"name"`
	IsGroup bool   `db:"is_group" json:"isGroup"`
}

// Audit carries the creation and modification stamps shared by every entity.
type Audit struct {
	CreatedBy      string    `db:"created_by" json:"createdBy"`
	CreatedAt      time.Time `db:"created_date_time" json:"createdDateTime"`
	LastModifiedBy string    `db:"last_modified_by" json:"lastModifiedBy"`
	LastModifiedAt time.Time `db:"last_modified_date_time" json:"lastModifiedDateTime"`
}

// Individual is a registered subject.
type Individual struct {
	ID               int64                  `db:"id" json:"id"`
	UUID             string                 `db:"uuid" json:"uuid"`
	LegacyID         string                 `db:"legacy_id" json:"legacyId,omitempty"`
	SubjectType      SubjectType            `json:"subjectType"`
	FirstName        string                 `db:"first_name" json:"firstName"`
	MiddleName       string                 `db:"middle_name" json:"middleName,omitempty"`
	LastName         string                 `db:"last_name" json:"lastName,omitempty"`
	DateOfBirth      *time.Time             `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	RegistrationDate time.Time              `db:"registration_date" json:"registrationDate"`
	Gender           string                 `db:"gender" json:"gender,omitempty"`
	AddressLevelUUID string                 `db:"address_level_uuid" json:"addressLevelUUID,omitempty"`
	Observations     observation.Collection `db:"observations" json:"observations"`
	Voided           bool                   `db:"is_voided" json:"voided"`
	Members          []GroupMembership      `json:"members,omitempty"`
	Audit
}

// ActiveMemberCount counts memberships that have not ended and whose member
// is not voided.
func (i *Individual) ActiveMemberCount() int {
	n := 0
	for _, m := range i.Members {
		if m.MembershipEndDate == nil && !m.MemberVoided {
			n++
		}
	}
	return n
}

// GroupMembership links a member subject to a group subject.
type GroupMembership struct {
	GroupUUID           string     `db:"group_subject_uuid" json:"groupSubjectUUID"`
	MemberUUID          string     `db:"member_subject_uuid" json:"memberSubjectUUID"`
	MemberVoided        bool       `json:"memberVoided"`
	MembershipStartDate *time.Time `db:"membership_start_date" json:"membershipStartDate,omitempty"`
	MembershipEndDate   *time.Time `db:"membership_end_date" json:"membershipEndDate,omitempty"`
}

// ProgramEnrolment is an individual's enrolment in a program.
type ProgramEnrolment struct {
	ID                  int64                  `db:"id" json:"id"`
	UUID                string                 `db:"uuid" json:"uuid"`
	LegacyID            string                 `db:"legacy_id" json:"legacyId,omitempty"`
	IndividualUUID      string                 `db:"individual_uuid" json:"individualUUID"`
	ProgramUUID         string                 `db:"program_uuid" json:"programUUID"`
	ProgramName         string                 `json:"programName"`
	EnrolmentDateTime   time.Time              `db:"enrolment_date_time" json:"enrolmentDateTime"`
	ProgramExitDateTime *time.Time             `db:"program_exit_date_time" json:"programExitDateTime,omitempty"`
	Observations        observation.Collection `db:"observations" json:"observations"`
	ExitObservations    observation.Collection `db:"program_exit_observations" json:"programExitObservations,omitempty"`
	Voided              bool                   `db:"is_voided" json:"voided"`
	Audit
}

// Encounter is a general or program encounter. ProgramEnrolmentUUID is
// empty for general encounters.
type Encounter struct {
	ID                    int64                  `db:"id" json:"id"`
	UUID                  string                 `db:"uuid" json:"uuid"`
	LegacyID              string                 `db:"legacy_id" json:"legacyId,omitempty"`
	IndividualUUID        string                 `db:"individual_uuid" json:"individualUUID"`
	ProgramEnrolmentUUID  string                 `db:"program_enrolment_uuid" json:"programEnrolmentUUID,omitempty"`
	EncounterTypeUUID     string                 `db:"encounter_type_uuid" json:"encounterTypeUUID"`
	EncounterTypeName     string                 `json:"encounterTypeName"`
	Name                  string                 `db:"name" json:"name,omitempty"`
	EarliestVisitDateTime *time.Time             `db:"earliest_visit_date_time" json:"earliestVisitDateTime,omitempty"`
	MaxVisitDateTime      *time.Time             `db:"max_visit_date_time" json:"maxVisitDateTime,omitempty"`
	EncounterDateTime     *time.Time             `db:"encounter_date_time" json:"encounterDateTime,omitempty"`
	CancelDateTime        *time.Time             `db:"cancel_date_time" json:"cancelDateTime,omitempty"`
	Observations          observation.Collection `db:"observations" json:"observations"`
	CancelObservations    observation.Collection `db:"cancel_observations" json:"cancelObservations,omitempty"`
	Voided                bool                   `db:"is_voided" json:"voided"`
	Audit
}

// ExportItemRow is everything one export row is built from: a subject, its
// encounters by type, its enrolments with their encounters by type, and the
// groups it belongs to with their encounters by type.
type ExportItemRow struct {
	Individual    *Individual
	Encounters    map[string][]*Encounter
	Enrolments    map[*ProgramEnrolment]map[string][]*Encounter
	GroupSubjects map[*Individual]map[string][]*Encounter
}

// NewExportItemRow returns a row with empty maps.
func NewExportItemRow(ind *Individual) *ExportItemRow {
	return &ExportItemRow{
		Individual:    ind,
		Encounters:    make(map[string][]*Encounter),
		Enrolments:    make(map[*ProgramEnrolment]map[string][]*Encounter),
		GroupSubjects: make(map[*Individual]map[string][]*Encounter),
	}
}

// Enrolment returns the enrolment in programUUID, if any.
func (r *ExportItemRow) Enrolment(programUUID string) (*ProgramEnrolment, map[string][]*Encounter) {
	for pe, encs := range r.Enrolments {
		if pe.ProgramUUID == programUUID {
			return pe, encs
		}
	}
	return nil, nil
}

// GroupSubject returns the group of subjectTypeUUID the individual belongs
// to, if any.
func (r *ExportItemRow) GroupSubject(subjectTypeUUID string) (*Individual, map[string][]*Encounter) {
	for g, encs := range r.GroupSubjects {
		if g.SubjectType.UUID == subjectTypeUUID {
			return g, encs
		}
	}
	return nil, nil
}

// ExportFilters narrows the subjects in an export.
type ExportFilters struct {
	RegistrationFrom  *time.Time `json:"registrationFrom,omitempty" yaml:"registrationFrom,omitempty"`
	RegistrationTo    *time.Time `json:"registrationTo,omitempty" yaml:"registrationTo,omitempty"`
	AddressLevelUUIDs []string   `json:"addressLevelUUIDs,omitempty" yaml:"addressLevelUUIDs,omitempty"`
	IncludeVoided     bool       `json:"includeVoided,omitempty" yaml:"includeVoided,omitempty"`
}

// Matches reports whether ind passes the filters.
func (f ExportFilters) Matches(ind *Individual) bool {
	if ind.Voided && !f.IncludeVoided {
		return false
	}
	if f.RegistrationFrom != nil && ind.RegistrationDate.Before(*f.RegistrationFrom) {
		return false
	}
	if f.RegistrationTo != nil && ind.RegistrationDate.After(*f.RegistrationTo) {
		return false
	}
	if len(f.AddressLevelUUIDs) > 0 {
		for _, u := range f.AddressLevelUUIDs {
			if u == ind.AddressLevelUUID {
				return true
			}
		}
		return false
	}
	return true
}
