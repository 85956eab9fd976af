// Package audit persists an append-only record of session lifecycle
// events and terminal order-state transitions, adapted from the
// teacher's bun-over-sqlite recordings store to a write-mostly event
// log instead of a CRUD-shaped table.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind is the category of an audit event.
type Kind string

const (
	KindSessionCreated    Kind = "session_created"
	KindSessionLoggedOn   Kind = "session_logged_on"
	KindSessionTerminated Kind = "session_terminated"
	KindOrderTerminal     Kind = "order_terminal"
)

// Event is one row of the append-only log.
type Event struct {
	bun.BaseModel `bun:"table:audit_events"`

	ID         string    `bun:"id,pk"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
	SessionID  uint64    `bun:"session_id,notnull"`
	Username   string    `bun:"username,notnull"`
	Kind       string    `bun:"kind,notnull"`
	Detail     string    `bun:"detail,notnull"`
}

// Log writes audit events to a sqlite database via bun.
type Log struct {
	db *bun.DB
}

// Open opens (creating if absent) the sqlite file at path, applies
// pending migrations, and returns a ready Log.
func Open(path string) (*Log, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(sqldb); err != nil {
		sqldb.Close()
		return nil, err
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	return &Log{db: db}, nil
}

func migrateUp(sqldb *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(sqldb, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error { return l.db.Close() }

// Record appends one event, minting its id.
func (l *Log) Record(ctx context.Context, sessionID uint64, username string, kind Kind, detail string, at time.Time) error {
	ev := &Event{
		ID:         uuid.NewString(),
		OccurredAt: at,
		SessionID:  sessionID,
		Username:   username,
		Kind:       string(kind),
		Detail:     detail,
	}
	_, err := l.db.NewInsert().Model(ev).Exec(ctx)
	return err
}

// ForSession returns every recorded event for sessionID, oldest first.
func (l *Log) ForSession(ctx context.Context, sessionID uint64) ([]Event, error) {
	var events []Event
	err := l.db.NewSelect().Model(&events).
		Where("session_id = ?", sessionID).
		OrderExpr("occurred_at ASC").
		Scan(ctx)
	return events, err
}
