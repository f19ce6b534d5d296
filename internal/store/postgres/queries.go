package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/storescan/internal/model"
)

const codeColumns = `id, payload, symbology, captured_at, store_scope, created_by, origin`

const defaultEventLimit = 100

// executor is a *sql.DB or *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements the data methods of store.Store on an executor.
type queries struct {
	ex executor
}

// notFound classifies a missing row; errors.Is still sees sql.ErrNoRows.
func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewError(model.KindNotFound, op, err)
	}
	return err
}

func (q queries) CreateCode(ctx context.Context, c *model.ScannedCode) error {
	_, err := q.ex.ExecContext(ctx,
		`INSERT INTO scanned_codes (`+codeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Payload, string(c.Symbology), c.CapturedAt, c.StoreScope,
		nullable(c.CreatedBy), nullable(c.Origin),
	)
	return err
}

func (q queries) GetCode(ctx context.Context, id string) (*model.ScannedCode, error) {
	c, err := scanCode(q.ex.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM scanned_codes WHERE id = $1`, id))
	if err != nil {
		return nil, notFound("get code", err)
	}
	return c, nil
}

// ListCodes returns one page of a scope, newest first, and the scope's
// total. Page and total come from one statement so they agree.
func (q queries) ListCodes(ctx context.Context, f model.ScanFilter) ([]*model.ScannedCode, int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(*) OVER() AS total_count, ` + codeColumns +
		` FROM scanned_codes WHERE store_scope = $1 ORDER BY captured_at DESC, id DESC`)
	args := []any{f.Scope}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}

	rows, err := q.ex.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list scanned codes: %w", err)
	}
	counted, err := collect(rows, scanCountedCode)
	if err != nil {
		return nil, 0, fmt.Errorf("scan scanned codes: %w", err)
	}
	codes := make([]*model.ScannedCode, len(counted))
	total := 0
	for i, cc := range counted {
		codes[i] = cc.code
		total = cc.total
	}
	return codes, total, nil
}

func (q queries) ListAllCodes(ctx context.Context) ([]*model.ScannedCode, error) {
	rows, err := q.ex.QueryContext(ctx, `SELECT `+codeColumns+` FROM scanned_codes ORDER BY store_scope, id`)
	if err != nil {
		return nil, fmt.Errorf("list all scanned codes: %w", err)
	}
	return collect(rows, scanCode)
}

func (q queries) DeleteCode(ctx context.Context, id string) error {
	n, err := q.exec(ctx, `DELETE FROM scanned_codes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("delete code", sql.ErrNoRows)
	}
	return nil
}

func (q queries) ClearScope(ctx context.Context, scope string) (int64, error) {
	return q.exec(ctx, `DELETE FROM scanned_codes WHERE store_scope = $1`, scope)
}

// exec runs a statement and returns the rows it affected.
func (q queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// RecordEvent appends e to the event log and fills in its ID and time.
func (q queries) RecordEvent(ctx context.Context, e *model.Event) error {
	return q.ex.QueryRowContext(ctx,
		`INSERT INTO events (topic, store_scope, code_id, actor, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.Topic, e.Scope, nullable(e.CodeID), nullable(e.Actor), jsonb(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

// ListEvents returns up to limit events of scope with an ID above afterID,
// oldest first.
func (q queries) ListEvents(ctx context.Context, scope string, afterID int64, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	rows, err := q.ex.QueryContext(ctx,
		`SELECT id, topic, store_scope, code_id, actor, payload, created_at
		FROM events
		WHERE store_scope = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`,
		scope, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collect(rows, scanEvent)
}
