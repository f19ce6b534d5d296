package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/storescan/internal/model"
)

// rowScanner is a *sql.Row or *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// codeFields returns scan targets for codeColumns. finish copies the
// nullable columns into c once the row is scanned.
func codeFields(c *model.ScannedCode) (dest []any, finish func()) {
	var createdBy, origin sql.NullString
	dest = []any{&c.ID, &c.Payload, &c.Symbology, &c.CapturedAt, &c.StoreScope, &createdBy, &origin}
	return dest, func() {
		c.CreatedBy = createdBy.String
		c.Origin = origin.String
	}
}

func scanCode(row rowScanner) (*model.ScannedCode, error) {
	var c model.ScannedCode
	dest, finish := codeFields(&c)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	finish()
	return &c, nil
}

// countedCode is a code row preceded by a COUNT(*) OVER() column.
type countedCode struct {
	code  *model.ScannedCode
	total int
}

func scanCountedCode(row rowScanner) (countedCode, error) {
	var c model.ScannedCode
	var total int
	dest, finish := codeFields(&c)
	if err := row.Scan(append([]any{&total}, dest...)...); err != nil {
		return countedCode{}, err
	}
	finish()
	return countedCode{code: &c, total: total}, nil
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e             model.Event
		codeID, actor sql.NullString
		payload       []byte
	)
	if err := row.Scan(&e.ID, &e.Topic, &e.Scope, &codeID, &actor, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.CodeID = codeID.String
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

// collect scans every row with scan and closes rows.
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// nullable maps "" to NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// jsonb maps an empty payload to NULL.
func jsonb(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
