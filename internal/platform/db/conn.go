package db

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the statement surface of a pgxpool.Conn.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is the organisation-scoped connection of one request or command. It
// is shared by every goroutine working on that context, while a pgx
// connection runs one statement at a time. Conn holds a lock from the start
// of a statement until its rows are closed or its row is scanned.
type Conn struct {
	mu sync.Mutex
	q  Querier
}

// NewConn wraps q for shared use.
func NewConn(q Querier) *Conn {
	return &Conn{q: q}
}

func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Exec(ctx, sql, args...)
}

// Query keeps the connection locked until the returned rows are closed or
// exhausted.
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.mu.Lock()
	rows, err := c.q.Query(ctx, sql, args...)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return &lockedRows{Rows: rows, unlock: c.unlocker()}, nil
}

// QueryRow keeps the connection locked until Scan is called on the result.
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c.mu.Lock()
	return &lockedRow{row: c.q.QueryRow(ctx, sql, args...), unlock: c.unlocker()}
}

func (c *Conn) unlocker() func() {
	var once sync.Once
	return func() { once.Do(c.mu.Unlock) }
}

type lockedRows struct {
	pgx.Rows
	unlock func()
}

func (r *lockedRows) Next() bool {
	if r.Rows.Next() {
		return true
	}
	r.unlock()
	return false
}

func (r *lockedRows) Close() {
	r.Rows.Close()
	r.unlock()
}

type lockedRow struct {
	row    pgx.Row
	unlock func()
}

func (r *lockedRow) Scan(dest ...any) error {
	defer r.unlock()
	return r.row.Scan(dest...)
}
