package location

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

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository over the address_level tables.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const levelCols = `al.uuid, al.title, al.type_uuid, alt.name, COALESCE(al.parent_uuid, ''), al.is_voided`

func (r *repoPG) LevelTypes(ctx context.Context) ([]*AddressLevelType, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT uuid, name, level, is_voided FROM address_level_type WHERE NOT is_voided`)
	if err != nil {
		return nil, fmt.Errorf("address level types: %w", err)
	}
	defer rows.Close()
	var out []*AddressLevelType
	for rows.Next() {
		var t AddressLevelType
		if err := rows.Scan(&t.UUID, &t.Name, &t.Level, &t.Voided); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *repoPG) LevelByUUID(ctx context.Context, uuid string) (*AddressLevel, error) {
	var l AddressLevel
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+levelCols+`
		 FROM address_level al JOIN address_level_type alt ON alt.uuid = al.type_uuid
		 WHERE al.uuid = $1`, uuid).
		Scan(&l.UUID, &l.Title, &l.TypeUUID, &l.TypeName, &l.ParentUUID, &l.Voided)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAddressLevelNotFound, uuid)
		}
		return nil, fmt.Errorf("address level get: %w", err)
	}
	return &l, nil
}

func (r *repoPG) LevelsByTitle(ctx context.Context, title string) ([]*AddressLevel, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+levelCols+`
		 FROM address_level al JOIN address_level_type alt ON alt.uuid = al.type_uuid
		 WHERE lower(al.title) = lower($1) AND NOT al.is_voided`, title)
	if err != nil {
		return nil, fmt.Errorf("address levels by title: %w", err)
	}
	defer rows.Close()
	var out []*AddressLevel
	for rows.Next() {
		var l AddressLevel
		if err := rows.Scan(&l.UUID, &l.Title, &l.TypeUUID, &l.TypeName, &l.ParentUUID, &l.Voided); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
