package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avni/avni-server/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// StorePG reads concepts and forms from PostgreSQL.
type StorePG struct{ pool *pgxpool.Pool }

// NewStorePG returns a Store backed by the organisation's schema tables.
func NewStorePG(pool *pgxpool.Pool) *StorePG { return &StorePG{pool: pool} }

func (r *StorePG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const conceptCols = `uuid, name, data_type, is_voided`

func (r *StorePG) scanConcept(ctx context.Context, row pgx.Row, key string) (*Concept, error) {
	var c Concept
	var dt string
	if err := row.Scan(&c.UUID, &c.Name, &dt, &c.Voided); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrConceptNotFound, key)
		}
		return nil, fmt.Errorf("concept get: %w", err)
	}
	parsed, err := ParseDataType(dt)
	if err != nil {
		return nil, err
	}
	c.DataType = parsed
	if c.DataType == DataTypeCoded {
		answers, err := r.answers(ctx, c.UUID)
		if err != nil {
			return nil, err
		}
		c.Answers = answers
	}
	return &c, nil
}

func (r *StorePG) answers(ctx context.Context, conceptUUID string) ([]ConceptAnswer, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT ac.uuid, ac.name, ca.answer_order, ca.is_voided
		 FROM concept_answer ca
		 JOIN concept ac ON ac.uuid = ca.answer_concept_uuid
		 WHERE ca.concept_uuid = $1
		 ORDER BY ca.answer_order`, conceptUUID)
	if err != nil {
		return nil, fmt.Errorf("concept answers: %w", err)
	}
	defer rows.Close()
	var out []ConceptAnswer
	for rows.Next() {
		var a ConceptAnswer
		if err := rows.Scan(&a.AnswerConcept.UUID, &a.AnswerConcept.Name, &a.Order, &a.Voided); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *StorePG) ConceptByName(ctx context.Context, name string) (*Concept, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+conceptCols+` FROM concept WHERE name = $1 AND NOT is_voided`, name)
	return r.scanConcept(ctx, row, name)
}

func (r *StorePG) ConceptByUUID(ctx context.Context, uuid string) (*Concept, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+conceptCols+` FROM concept WHERE uuid = $1`, uuid)
	return r.scanConcept(ctx, row, uuid)
}

func (r *StorePG) FormsByType(ctx context.Context, formType FormType) ([]*Form, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT uuid, name, form_type, is_voided FROM form
		 WHERE form_type = $1 AND NOT is_voided ORDER BY name`, string(formType))
	if err != nil {
		return nil, fmt.Errorf("forms by type: %w", err)
	}
	forms, err := scanForms(rows)
	if err != nil {
		return nil, err
	}
	for _, f := range forms {
		if err := r.loadForm(ctx, f); err != nil {
			return nil, err
		}
	}
	return forms, nil
}

func (r *StorePG) MappedForm(ctx context.Context, formType FormType, subjectTypeUUID, programUUID, encounterTypeUUID string) (*Form, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT f.uuid, f.name, f.form_type, f.is_voided
		 FROM form_mapping fm JOIN form f ON f.uuid = fm.form_uuid
		 WHERE f.form_type = $1 AND NOT f.is_voided AND NOT fm.is_voided
		   AND ($2 = '' OR fm.subject_type_uuid = $2)
		   AND COALESCE(fm.program_uuid, '') = $3
		   AND COALESCE(fm.encounter_type_uuid, '') = $4
		 LIMIT 1`, string(formType), subjectTypeUUID, programUUID, encounterTypeUUID)
	if err != nil {
		return nil, fmt.Errorf("mapped form: %w", err)
	}
	forms, err := scanForms(rows)
	if err != nil {
		return nil, err
	}
	if len(forms) == 0 {
		return nil, fmt.Errorf("%w: %s for subject type %q program %q encounter type %q",
			ErrFormNotMapped, formType, subjectTypeUUID, programUUID, encounterTypeUUID)
	}
	if err := r.loadForm(ctx, forms[0]); err != nil {
		return nil, err
	}
	return forms[0], nil
}

func scanForms(rows pgx.Rows) ([]*Form, error) {
	defer rows.Close()
	var forms []*Form
	for rows.Next() {
		var f Form
		var ft string
		if err := rows.Scan(&f.UUID, &f.Name, &ft, &f.Voided); err != nil {
			return nil, err
		}
		f.FormType = FormType(ft)
		forms = append(forms, &f)
	}
	return forms, rows.Err()
}

func (r *StorePG) loadForm(ctx context.Context, f *Form) error {
	var err error
	if f.Elements, err = r.elements(ctx, `fe.form_uuid = $1`, f.UUID); err != nil {
		return err
	}
	if f.DecisionConcepts, err = r.decisionConcepts(ctx, f.UUID); err != nil {
		return err
	}
	return nil
}

func (r *StorePG) elements(ctx context.Context, where string, arg string) ([]*FormElement, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT fe.uuid, fe.name, fe.display_order, fe.type, COALESCE(fe.group_uuid, ''),
		        fe.is_voided, fe.concept_uuid
		 FROM form_element fe
		 WHERE `+where+`
		 ORDER BY fe.display_order`, arg)
	if err != nil {
		return nil, fmt.Errorf("form elements: %w", err)
	}
	var elems []*FormElement
	var conceptUUIDs []string
	for rows.Next() {
		var fe FormElement
		var typ, conceptUUID string
		if err := rows.Scan(&fe.UUID, &fe.Name, &fe.DisplayOrder, &typ, &fe.GroupUUID, &fe.Voided, &conceptUUID); err != nil {
			rows.Close()
			return nil, err
		}
		fe.Type = FormElementType(typ)
		elems = append(elems, &fe)
		conceptUUIDs = append(conceptUUIDs, conceptUUID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, fe := range elems {
		c, err := r.ConceptByUUID(ctx, conceptUUIDs[i])
		if err != nil {
			return nil, fmt.Errorf("form element %s: %w", fe.UUID, err)
		}
		fe.Concept = c
	}
	return elems, nil
}

func (r *StorePG) decisionConcepts(ctx context.Context, formUUID string) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT concept_uuid FROM decision_concept WHERE form_uuid = $1`, formUUID)
	if err != nil {
		return nil, fmt.Errorf("decision concepts: %w", err)
	}
	var uuids []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, err
		}
		uuids = append(uuids, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Concept, 0, len(uuids))
	for _, u := range uuids {
		c, err := r.ConceptByUUID(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *StorePG) SearchConcepts(ctx context.Context, name string, limit, offset int) ([]*Concept, int, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + name + "%"

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM concept WHERE name ILIKE $1 AND NOT is_voided`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("concept count: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT uuid FROM concept WHERE name ILIKE $1 AND NOT is_voided
		 ORDER BY name LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("concept search: %w", err)
	}
	var uuids []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, 0, err
		}
		uuids = append(uuids, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	out := make([]*Concept, 0, len(uuids))
	for _, u := range uuids {
		c, err := r.ConceptByUUID(ctx, u)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, nil
}
