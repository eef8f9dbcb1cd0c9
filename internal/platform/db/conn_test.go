package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// busyQuerier fails like a pgx connection when a statement starts while
// another one is still open.
type busyQuerier struct {
	inFlight atomic.Int32
	max      atomic.Int32
	busy     atomic.Int32
}

func (q *busyQuerier) begin() bool {
	n := q.inFlight.Add(1)
	for {
		m := q.max.Load()
		if n <= m || q.max.CompareAndSwap(m, n) {
			break
		}
	}
	if n > 1 {
		q.busy.Add(1)
		return false
	}
	time.Sleep(time.Millisecond)
	return true
}

func (q *busyQuerier) end() { q.inFlight.Add(-1) }

func (q *busyQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	defer q.end()
	if !q.begin() {
		return pgconn.CommandTag{}, errors.New("conn busy")
	}
	return pgconn.NewCommandTag("SET"), nil
}

func (q *busyQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if !q.begin() {
		q.end()
		return nil, errors.New("conn busy")
	}
	return &fakeRows{left: 3, done: q.end}, nil
}

func (q *busyQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	q.begin()
	return fakeRow{done: q.end}
}

type fakeRows struct {
	left   int
	done   func()
	closed bool
}

func (r *fakeRows) Close() {
	if !r.closed {
		r.closed = true
		r.done()
	}
}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 3") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Scan(...any) error                            { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.left == 0 {
		r.Close()
		return false
	}
	r.left--
	return true
}

type fakeRow struct{ done func() }

func (r fakeRow) Scan(...any) error {
	r.done()
	return nil
}

func TestConn_SerialisesStatements(t *testing.T) {
	q := &busyQuerier{}
	conn := NewConn(q)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				var n int
				if err := conn.QueryRow(ctx, "SELECT 1").Scan(&n); err != nil {
					t.Errorf("QueryRow failed: %v", err)
				}
			case 1:
				rows, err := conn.Query(ctx, "SELECT 1")
				if err != nil {
					t.Errorf("Query failed: %v", err)
					return
				}
				defer rows.Close()
				for rows.Next() {
				}
			default:
				if _, err := conn.Exec(ctx, "SET search_path TO org_demo"); err != nil {
					t.Errorf("Exec failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if got := q.max.Load(); got != 1 {
		t.Errorf("expected at most 1 statement in flight, got %d", got)
	}
	if got := q.busy.Load(); got != 0 {
		t.Errorf("expected no busy failures, got %d", got)
	}
}

func TestConn_QueryUnlocksOnClose(t *testing.T) {
	conn := NewConn(&busyQuerier{})
	ctx := context.Background()

	rows, err := conn.Query(ctx, "SELECT 1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	rows.Next()
	rows.Close()
	rows.Close()

	done := make(chan struct{})
	go func() {
		var n int
		_ = conn.QueryRow(ctx, "SELECT 1").Scan(&n)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection still locked after rows were closed")
	}
}

func TestConnFromContext_Conn(t *testing.T) {
	conn := NewConn(&busyQuerier{})
	ctx := context.WithValue(context.Background(), DBConnKey, conn)
	if got := ConnFromContext(ctx); got != conn {
		t.Errorf("expected the stored connection, got %v", got)
	}
}
