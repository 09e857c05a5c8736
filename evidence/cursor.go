package evidence

import (
	"context"
	"database/sql"

	"github.com/teranos/globalcalls/errors"
)

// Cursor is a forward-only, non-restartable sequence. Next returns false once
// exhausted. Close releases underlying resources and may be called more than once.
type Cursor[T any] interface {
	Next(ctx context.Context) (T, bool, error)
	Close() error
}

// SliceCursor iterates over an in-memory slice
type SliceCursor[T any] struct {
	items  []T
	pos    int
	closed bool
}

// NewSliceCursor creates a cursor over items
func NewSliceCursor[T any](items []T) *SliceCursor[T] {
	return &SliceCursor[T]{items: items}
}

func (c *SliceCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if c.closed || c.pos >= len(c.items) {
		return zero, false, nil
	}
	item := c.items[c.pos]
	c.pos++
	return item, true, nil
}

func (c *SliceCursor[T]) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close was called
func (c *SliceCursor[T]) Closed() bool { return c.closed }

// RowsCursor adapts *sql.Rows, decoding each row with scan
type RowsCursor[T any] struct {
	rows   *sql.Rows
	scan   func(*sql.Rows) (T, error)
	closed bool
}

// NewRowsCursor wraps rows; the cursor owns them and closes them on Close
func NewRowsCursor[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) *RowsCursor[T] {
	return &RowsCursor[T]{rows: rows, scan: scan}
}

func (c *RowsCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if c.closed {
		return zero, false, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return zero, false, errors.Wrap(err, "iterate rows")
		}
		return zero, false, nil
	}
	item, err := c.scan(c.rows)
	if err != nil {
		return zero, false, errors.Wrap(err, "scan row")
	}
	return item, true, nil
}

func (c *RowsCursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
