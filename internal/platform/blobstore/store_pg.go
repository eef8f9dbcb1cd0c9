package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avni/avni-server/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StorePG keeps blobs in the media_blob table.
type StorePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) *StorePG {
	return &StorePG{pool: pool}
}

func (s *StorePG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

const blobColumns = `id, file_name, content_type, size, hash, source_url, created_at`

func (s *StorePG) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readContent(&meta, content)
	if err != nil {
		return nil, err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO media_blob (`+blobColumns+`, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		meta.ID, meta.FileName, meta.ContentType, meta.Size, meta.Hash, meta.SourceURL, meta.CreatedAt, data)
	if err != nil {
		return nil, fmt.Errorf("insert media blob: %w", err)
	}
	return &meta, nil
}

func (s *StorePG) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	var meta BlobMetadata
	var data []byte
	err := s.conn(ctx).QueryRow(ctx, `SELECT `+blobColumns+`, content FROM media_blob WHERE id = $1`, id).
		Scan(&meta.ID, &meta.FileName, &meta.ContentType, &meta.Size, &meta.Hash, &meta.SourceURL, &meta.CreatedAt, &data)
	if err != nil {
		return nil, nil, notFound(err)
	}
	return io.NopCloser(bytes.NewReader(data)), &meta, nil
}

func (s *StorePG) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	var meta BlobMetadata
	err := s.conn(ctx).QueryRow(ctx, `SELECT `+blobColumns+` FROM media_blob WHERE id = $1`, id).
		Scan(&meta.ID, &meta.FileName, &meta.ContentType, &meta.Size, &meta.Hash, &meta.SourceURL, &meta.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &meta, nil
}

func (s *StorePG) Delete(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM media_blob WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBlobNotFound
	}
	return err
}
