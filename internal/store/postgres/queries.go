package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/calfeed/internal/model"
)

// changeColumns is the column list used for SELECT statements on change_log.
const changeColumns = `id, event_type, payload, created_at`

// eventViewColumns selects an event joined with its owner; see scanEventView.
const eventViewColumns = `e.id, e.title, e.description, e.start_at, e.end_at, e.all_day,
	e.owner_id, e.created_at, e.updated_at, u.name, u.color`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- change log ---

// appendLockKey names the advisory lock that orders change_log inserts.
const appendLockKey int64 = 0x63616c66656564 // "calfeed"

// queryAppendChange must run inside a transaction. The advisory lock is held
// until that transaction ends, so a later id can never commit before an
// earlier one and readers polling by id never skip a record.
func queryAppendChange(ctx context.Context, db executor, rec *model.ChangeRecord) error {
	payload := jsonbBytes(rec.Payload)
	if payload == nil {
		payload = []byte(`{}`)
	}
	if _, err := db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return fmt.Errorf("lock change log: %w", err)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO change_log (event_type, payload, created_at)
		VALUES ($1, $2, COALESCE($3, NOW()))
		RETURNING id, created_at`,
		rec.EventType, payload, nullTime(rec.CreatedAt),
	).Scan(&rec.ID, &rec.CreatedAt)
}

func queryChangesSince(ctx context.Context, db executor, lastID int64, limit int) ([]*model.ChangeRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = db.QueryContext(ctx, `SELECT `+changeColumns+`
			FROM change_log
			WHERE id > $1
			ORDER BY id ASC
			LIMIT $2`,
			lastID, limit,
		)
	} else {
		rows, err = db.QueryContext(ctx, `SELECT `+changeColumns+`
			FROM change_log
			WHERE id > $1
			ORDER BY id ASC`,
			lastID,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows, scanChange)
}

func queryLatestChangeID(ctx context.Context, db executor) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM change_log`).Scan(&id)
	return id, err
}

// queryTrimChanges runs one DELETE per enabled condition. Each statement is a
// delete-by-threshold, so concurrent callers at worst delete nothing.
func queryTrimChanges(ctx context.Context, db executor, policy model.RetentionPolicy, now time.Time) (int64, error) {
	var total int64

	if cutoff, ok := policy.Cutoff(now); ok {
		res, err := db.ExecContext(ctx, `DELETE FROM change_log WHERE created_at < $1`, cutoff)
		if err != nil {
			return total, fmt.Errorf("trim by age: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += n
	}

	if policy.KeepLast > 0 {
		// The subquery yields the (KeepLast+1)-th highest id, or NULL when the
		// log holds KeepLast rows or fewer, in which case nothing matches.
		res, err := db.ExecContext(ctx, `
			DELETE FROM change_log
			WHERE id <= (
				SELECT id FROM change_log ORDER BY id DESC OFFSET $1 LIMIT 1
			)`,
			policy.KeepLast,
		)
		if err != nil {
			return total, fmt.Errorf("trim by count: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += n
	}

	return total, nil
}

// --- users ---

func queryCreateUser(ctx context.Context, db executor, u *model.User) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, color)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		u.Name, u.Email, u.Color,
	).Scan(&u.ID, &u.CreatedAt)
}

func queryGetUser(ctx context.Context, db executor, id int64) (*model.User, error) {
	row := db.QueryRowContext(ctx, `SELECT id, name, email, color, created_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func queryListUsers(ctx context.Context, db executor) ([]*model.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, email, color, created_at FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows, scanUser)
}

// --- events ---

func queryCreateEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (title, description, start_at, end_at, all_day, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		e.Title,
		nullString(e.Description),
		e.StartAt,
		nullTime(e.EndAt),
		e.AllDay,
		e.OwnerID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func queryGetEvent(ctx context.Context, db executor, id int64) (*model.Event, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, title, description, start_at, end_at, all_day, owner_id, created_at, updated_at
		FROM events WHERE id = $1`, id)
	return scanEvent(row)
}

func queryGetEventView(ctx context.Context, db executor, id int64) (*model.EventView, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventViewColumns+`
		FROM events e JOIN users u ON u.id = e.owner_id
		WHERE e.id = $1`, id)
	return scanEventView(row)
}

func queryListEvents(ctx context.Context, db executor, filter model.EventFilter) ([]*model.EventView, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.OwnerIDs) > 0 {
		placeholders := make([]string, len(filter.OwnerIDs))
		for i, id := range filter.OwnerIDs {
			placeholders[i] = nextArg()
			args = append(args, id)
		}
		whereClauses = append(whereClauses, "e.owner_id IN ("+strings.Join(placeholders, ", ")+")")
	}

	if !filter.From.IsZero() {
		whereClauses = append(whereClauses, "COALESCE(e.end_at, e.start_at) >= "+nextArg())
		args = append(args, filter.From)
	}

	if !filter.To.IsZero() {
		whereClauses = append(whereClauses, "e.start_at < "+nextArg())
		args = append(args, filter.To)
	}

	query := `SELECT ` + eventViewColumns + ` FROM events e JOIN users u ON u.id = e.owner_id`
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY e.start_at ASC, e.id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows, scanEventView)
}

func queryUpdateEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		UPDATE events SET
			title = $2, description = $3, start_at = $4, end_at = $5,
			all_day = $6, owner_id = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		e.ID,
		e.Title,
		nullString(e.Description),
		e.StartAt,
		nullTime(e.EndAt),
		e.AllDay,
		e.OwnerID,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func queryDeleteEvent(ctx context.Context, db executor, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
