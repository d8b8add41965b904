package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// scannable is satisfied by *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanAll drains rows through scan.
func scanAll[T any](rows *sql.Rows, scan func(scannable) (*T, error)) ([]*T, error) {
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// scanChange reads a row in changeColumns order.
func scanChange(row scannable) (*model.ChangeRecord, error) {
	var c model.ChangeRecord
	var payload []byte
	if err := row.Scan(&c.ID, &c.EventType, &payload, &c.CreatedAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		c.Payload = json.RawMessage(payload)
	}
	return &c, nil
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Color, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// eventRow holds the nullable event columns until they are copied into an
// Event.
type eventRow struct {
	description sql.NullString
	endAt       sql.NullTime
}

// targets returns scan destinations in eventColumns order.
func (r *eventRow) targets(e *model.Event) []any {
	return []any{&e.ID, &e.Title, &r.description, &e.StartAt, &r.endAt, &e.AllDay, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt}
}

func (r *eventRow) fill(e *model.Event) {
	e.Description = r.description.String
	if r.endAt.Valid {
		e.EndAt = r.endAt.Time
	}
}

func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var r eventRow
	if err := row.Scan(r.targets(&e)...); err != nil {
		return nil, err
	}
	r.fill(&e)
	return &e, nil
}

// scanEventView reads a row in eventViewColumns order: the event columns
// followed by the owner's name and color.
func scanEventView(row scannable) (*model.EventView, error) {
	var v model.EventView
	var r eventRow
	if err := row.Scan(append(r.targets(&v.Event), &v.OwnerName, &v.OwnerColor)...); err != nil {
		return nil, err
	}
	r.fill(&v.Event)
	return &v, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// jsonbBytes passes an empty payload as NULL.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
