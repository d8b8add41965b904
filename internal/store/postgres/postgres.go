// Package postgres implements store.Store on PostgreSQL. The change log is a
// BIGSERIAL-keyed table; calendar rows live in users and events.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/calfeed/internal/model"
	"github.com/alfredjeanlab/calfeed/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ store.Store = (*PostgresStore)(nil)
	_ store.Store = (*txStore)(nil)
)

// PostgresStore owns the connection pool.
type PostgresStore struct {
	queries
	db *sql.DB
}

// New opens the database at databaseURL, sizes the pool and applies pending
// migrations.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every open stream session polls the change log, so the pool favours
	// many short concurrent reads.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing pool without migrating it.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{db}, db: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunInTransaction runs fn against a store bound to one transaction,
// committing if fn returns nil and rolling back otherwise.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&txStore{queries{tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// AppendChange runs the insert in its own transaction so the ordering lock
// is released only once the record is visible.
func (s *PostgresStore) AppendChange(ctx context.Context, rec *model.ChangeRecord) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.AppendChange(ctx, rec)
	})
}

// txStore is the store handed to RunInTransaction callbacks.
type txStore struct {
	queries
}

// RunInTransaction joins the open transaction; there is no nesting.
func (s *txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op; the parent store owns the pool.
func (s *txStore) Close() error { return nil }

// queries binds the query functions to the pool or to an open transaction.
type queries struct {
	ex executor
}

func (q queries) AppendChange(ctx context.Context, rec *model.ChangeRecord) error {
	return queryAppendChange(ctx, q.ex, rec)
}

func (q queries) ChangesSince(ctx context.Context, lastID int64, limit int) ([]*model.ChangeRecord, error) {
	return queryChangesSince(ctx, q.ex, lastID, limit)
}

func (q queries) LatestChangeID(ctx context.Context) (int64, error) {
	return queryLatestChangeID(ctx, q.ex)
}

func (q queries) TrimChanges(ctx context.Context, policy model.RetentionPolicy, now time.Time) (int64, error) {
	return queryTrimChanges(ctx, q.ex, policy, now)
}

func (q queries) CreateUser(ctx context.Context, u *model.User) error {
	return queryCreateUser(ctx, q.ex, u)
}

func (q queries) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return queryGetUser(ctx, q.ex, id)
}

func (q queries) ListUsers(ctx context.Context) ([]*model.User, error) {
	return queryListUsers(ctx, q.ex)
}

func (q queries) CreateEvent(ctx context.Context, e *model.Event) error {
	return queryCreateEvent(ctx, q.ex, e)
}

func (q queries) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	return queryGetEvent(ctx, q.ex, id)
}

func (q queries) GetEventView(ctx context.Context, id int64) (*model.EventView, error) {
	return queryGetEventView(ctx, q.ex, id)
}

func (q queries) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.EventView, error) {
	return queryListEvents(ctx, q.ex, filter)
}

func (q queries) UpdateEvent(ctx context.Context, e *model.Event) error {
	return queryUpdateEvent(ctx, q.ex, e)
}

func (q queries) DeleteEvent(ctx context.Context, id int64) error {
	return queryDeleteEvent(ctx, q.ex, id)
}
