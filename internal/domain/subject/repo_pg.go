package subject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avni/avni-server/internal/domain/observation"
	"github.com/avni/avni-server/internal/platform/db"
)

const exportPageSize = 500

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// RepoPG reads subjects, enrolments and encounters from PostgreSQL.
type RepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) *RepoPG { return &RepoPG{pool: pool} }

func (r *RepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func decodeObs(raw []byte) (observation.Collection, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var c observation.Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	return c, nil
}

const individualCols = `i.id, i.uuid, COALESCE(i.legacy_id, ''), st.uuid, st.name, st.is_group,
	i.first_name, COALESCE(i.middle_name, ''), COALESCE(i.last_name, ''), i.date_of_birth,
	i.registration_date, COALESCE(i.gender, ''), COALESCE(i.address_level_uuid, ''), i.observations,
	i.is_voided, i.created_by, i.created_date_time, i.last_modified_by, i.last_modified_date_time`

const individualFrom = ` FROM individual i JOIN subject_type st ON st.uuid = i.subject_type_uuid`

func scanIndividual(row pgx.Row) (*Individual, error) {
	var ind Individual
	var obs []byte
	err := row.Scan(&ind.ID, &ind.UUID, &ind.LegacyID, &ind.SubjectType.UUID, &ind.SubjectType.Name,
		&ind.SubjectType.IsGroup, &ind.FirstName, &ind.MiddleName, &ind.LastName, &ind.DateOfBirth,
		&ind.RegistrationDate, &ind.Gender, &ind.AddressLevelUUID, &obs,
		&ind.Voided, &ind.CreatedBy, &ind.CreatedAt, &ind.LastModifiedBy, &ind.LastModifiedAt)
	if err != nil {
		return nil, err
	}
	if ind.Observations, err = decodeObs(obs); err != nil {
		return nil, err
	}
	return &ind, nil
}

func (r *RepoPG) individual(ctx context.Context, where string, arg string) (*Individual, error) {
	ind, err := scanIndividual(r.conn(ctx).QueryRow(ctx, `SELECT `+individualCols+individualFrom+` WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, arg)
		}
		return nil, fmt.Errorf("individual get: %w", err)
	}
	return ind, nil
}

func (r *RepoPG) ByUUID(ctx context.Context, uuid string) (*Individual, error) {
	return r.individual(ctx, `i.uuid = $1`, uuid)
}

func (r *RepoPG) ByLegacyID(ctx context.Context, legacyID string) (*Individual, error) {
	return r.individual(ctx, `i.legacy_id = $1 AND NOT i.is_voided`, legacyID)
}

func (r *RepoPG) EnrolmentByLegacyID(ctx context.Context, legacyID string) (*ProgramEnrolment, error) {
	found, err := r.enrolments(ctx, `pe.legacy_id = $1`, legacyID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEnrolmentNotFound, legacyID)
	}
	return found[0], nil
}

func (r *RepoPG) EncounterByLegacyID(ctx context.Context, legacyID string) (*Encounter, error) {
	found, err := r.encounters(ctx, `e.legacy_id = $1`, legacyID)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEncounterNotFound, legacyID)
	}
	return found[0], nil
}

func (r *RepoPG) SubjectType(ctx context.Context, uuid string) (*SubjectType, error) {
	var st SubjectType
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT uuid, name, is_group FROM subject_type WHERE uuid = $1`, uuid).
		Scan(&st.UUID, &st.Name, &st.IsGroup)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("subject type not found: %s", uuid)
		}
		return nil, fmt.Errorf("subject type get: %w", err)
	}
	return &st, nil
}

func (r *RepoPG) MaxEncounterCount(ctx context.Context, encounterTypeUUID, programUUID string) (int, error) {
	var max int
	var err error
	if programUUID == "" {
		err = r.conn(ctx).QueryRow(ctx,
			`SELECT COALESCE(MAX(cnt), 0) FROM (
			   SELECT COUNT(*) AS cnt FROM encounter
			   WHERE encounter_type_uuid = $1 AND program_enrolment_uuid IS NULL AND NOT is_voided
			   GROUP BY individual_uuid) t`, encounterTypeUUID).Scan(&max)
	} else {
		err = r.conn(ctx).QueryRow(ctx,
			`SELECT COALESCE(MAX(cnt), 0) FROM (
			   SELECT COUNT(*) AS cnt FROM encounter e
			   JOIN program_enrolment pe ON pe.uuid = e.program_enrolment_uuid
			   WHERE e.encounter_type_uuid = $1 AND pe.program_uuid = $2 AND NOT e.is_voided
			   GROUP BY e.program_enrolment_uuid) t`, encounterTypeUUID, programUUID).Scan(&max)
	}
	if err != nil {
		return 0, fmt.Errorf("max encounter count: %w", err)
	}
	return max, nil
}

// ExportRows pages through individuals by id so that no result set is held
// open while the related entities are loaded.
func (r *RepoPG) ExportRows(ctx context.Context, subjectTypeUUID string, filters ExportFilters, fn func(*ExportItemRow) error) error {
	var lastID int64
	for {
		page, err := r.individualPage(ctx, subjectTypeUUID, filters, lastID)
		if err != nil {
			return err
		}
		for _, ind := range page {
			row, err := r.loadItemRow(ctx, ind)
			if err != nil {
				return err
			}
			if err := fn(row); err != nil {
				return err
			}
			lastID = ind.ID
		}
		if len(page) < exportPageSize {
			return nil
		}
	}
}

func (r *RepoPG) individualPage(ctx context.Context, subjectTypeUUID string, f ExportFilters, afterID int64) ([]*Individual, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+individualCols+individualFrom+`
		 WHERE i.subject_type_uuid = $1 AND i.id > $2
		   AND ($3 OR NOT i.is_voided)
		   AND ($4::date IS NULL OR i.registration_date >= $4)
		   AND ($5::date IS NULL OR i.registration_date <= $5)
		   AND (cardinality($6::text[]) = 0 OR i.address_level_uuid = ANY($6))
		 ORDER BY i.id LIMIT $7`,
		subjectTypeUUID, afterID, f.IncludeVoided, f.RegistrationFrom, f.RegistrationTo,
		nonNil(f.AddressLevelUUIDs), exportPageSize)
	if err != nil {
		return nil, fmt.Errorf("export individuals: %w", err)
	}
	defer rows.Close()
	var out []*Individual
	for rows.Next() {
		ind, err := scanIndividual(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *RepoPG) loadItemRow(ctx context.Context, ind *Individual) (*ExportItemRow, error) {
	row := NewExportItemRow(ind)
	var err error
	if ind.SubjectType.IsGroup {
		if ind.Members, err = r.members(ctx, ind.UUID); err != nil {
			return nil, err
		}
	}

	encs, err := r.encounters(ctx, `e.individual_uuid = $1 AND e.program_enrolment_uuid IS NULL`, ind.UUID)
	if err != nil {
		return nil, err
	}
	row.Encounters = byType(encs)

	enrolments, err := r.enrolments(ctx, `pe.individual_uuid = $1`, ind.UUID)
	if err != nil {
		return nil, err
	}
	for _, pe := range enrolments {
		encs, err := r.encounters(ctx, `e.program_enrolment_uuid = $1`, pe.UUID)
		if err != nil {
			return nil, err
		}
		row.Enrolments[pe] = byType(encs)
	}

	groups, err := r.groupsOf(ctx, ind.UUID)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Members, err = r.members(ctx, g.UUID); err != nil {
			return nil, err
		}
		encs, err := r.encounters(ctx, `e.individual_uuid = $1 AND e.program_enrolment_uuid IS NULL`, g.UUID)
		if err != nil {
			return nil, err
		}
		row.GroupSubjects[g] = byType(encs)
	}
	return row, nil
}

func byType(encs []*Encounter) map[string][]*Encounter {
	out := make(map[string][]*Encounter)
	for _, e := range encs {
		out[e.EncounterTypeUUID] = append(out[e.EncounterTypeUUID], e)
	}
	return out
}

func (r *RepoPG) members(ctx context.Context, groupUUID string) ([]GroupMembership, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT gs.group_subject_uuid, gs.member_subject_uuid, m.is_voided,
		        gs.membership_start_date, gs.membership_end_date
		 FROM group_subject gs JOIN individual m ON m.uuid = gs.member_subject_uuid
		 WHERE gs.group_subject_uuid = $1 AND NOT gs.is_voided`, groupUUID)
	if err != nil {
		return nil, fmt.Errorf("group members: %w", err)
	}
	defer rows.Close()
	var out []GroupMembership
	for rows.Next() {
		var m GroupMembership
		if err := rows.Scan(&m.GroupUUID, &m.MemberUUID, &m.MemberVoided, &m.MembershipStartDate, &m.MembershipEndDate); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *RepoPG) groupsOf(ctx context.Context, memberUUID string) ([]*Individual, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+individualCols+individualFrom+`
		 JOIN group_subject gs ON gs.group_subject_uuid = i.uuid
		 WHERE gs.member_subject_uuid = $1 AND NOT gs.is_voided AND NOT i.is_voided
		 ORDER BY i.id`, memberUUID)
	if err != nil {
		return nil, fmt.Errorf("groups of member: %w", err)
	}
	defer rows.Close()
	var out []*Individual
	for rows.Next() {
		g, err := scanIndividual(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *RepoPG) enrolments(ctx context.Context, where string, arg string) ([]*ProgramEnrolment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT pe.id, pe.uuid, COALESCE(pe.legacy_id, ''), pe.individual_uuid, p.uuid, p.name, pe.enrolment_date_time,
		        pe.program_exit_date_time, pe.observations, pe.program_exit_observations, pe.is_voided,
		        pe.created_by, pe.created_date_time, pe.last_modified_by, pe.last_modified_date_time
		 FROM program_enrolment pe JOIN program p ON p.uuid = pe.program_uuid
		 WHERE `+where+` AND NOT pe.is_voided
		 ORDER BY pe.enrolment_date_time`, arg)
	if err != nil {
		return nil, fmt.Errorf("enrolments: %w", err)
	}
	defer rows.Close()
	var out []*ProgramEnrolment
	for rows.Next() {
		var pe ProgramEnrolment
		var obs, exitObs []byte
		if err := rows.Scan(&pe.ID, &pe.UUID, &pe.LegacyID, &pe.IndividualUUID, &pe.ProgramUUID, &pe.ProgramName,
			&pe.EnrolmentDateTime, &pe.ProgramExitDateTime, &obs, &exitObs, &pe.Voided,
			&pe.CreatedBy, &pe.CreatedAt, &pe.LastModifiedBy, &pe.LastModifiedAt); err != nil {
			return nil, err
		}
		if pe.Observations, err = decodeObs(obs); err != nil {
			return nil, err
		}
		if pe.ExitObservations, err = decodeObs(exitObs); err != nil {
			return nil, err
		}
		out = append(out, &pe)
	}
	return out, rows.Err()
}

func (r *RepoPG) encounters(ctx context.Context, where string, arg string) ([]*Encounter, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT e.id, e.uuid, COALESCE(e.legacy_id, ''), e.individual_uuid, COALESCE(e.program_enrolment_uuid, ''),
		        et.uuid, et.name, COALESCE(e.name, ''), e.earliest_visit_date_time, e.max_visit_date_time,
		        e.encounter_date_time, e.cancel_date_time, e.observations, e.cancel_observations,
		        e.is_voided, e.created_by, e.created_date_time, e.last_modified_by, e.last_modified_date_time
		 FROM encounter e JOIN encounter_type et ON et.uuid = e.encounter_type_uuid
		 WHERE `+where+` AND NOT e.is_voided
		 ORDER BY COALESCE(e.encounter_date_time, e.earliest_visit_date_time, e.created_date_time), e.id`, arg)
	if err != nil {
		return nil, fmt.Errorf("encounters: %w", err)
	}
	defer rows.Close()
	var out []*Encounter
	for rows.Next() {
		var e Encounter
		var obs, cancelObs []byte
		if err := rows.Scan(&e.ID, &e.UUID, &e.LegacyID, &e.IndividualUUID, &e.ProgramEnrolmentUUID,
			&e.EncounterTypeUUID, &e.EncounterTypeName, &e.Name, &e.EarliestVisitDateTime, &e.MaxVisitDateTime,
			&e.EncounterDateTime, &e.CancelDateTime, &obs, &cancelObs,
			&e.Voided, &e.CreatedBy, &e.CreatedAt, &e.LastModifiedBy, &e.LastModifiedAt); err != nil {
			return nil, err
		}
		if e.Observations, err = decodeObs(obs); err != nil {
			return nil, err
		}
		if e.CancelObservations, err = decodeObs(cancelObs); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

