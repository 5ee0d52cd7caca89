package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"strings"

	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/internal/sqlstore"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

type sqliteBackend struct {
	*sqlstore.Store

	db      *sql.DB
	options *options
}

var _ backend.Backend = (*sqliteBackend)(nil)

// NewInMemoryBackend returns a backend using a private in-memory database. All access goes through a single
// connection.
func NewInMemoryBackend(opts ...option) *sqliteBackend {
	b := newSqliteBackend("file::memory:", opts...)

	b.db.SetMaxOpenConns(1)

	return b
}

// NewSqliteBackend returns a backend storing its records in the database file at path.
func NewSqliteBackend(path string, opts ...option) *sqliteBackend {
	return newSqliteBackend(fmt.Sprintf("file:%v?_pragma=journal_mode(WAL)", path), opts...)
}

func newSqliteBackend(dsn string, opts ...option) *sqliteBackend {
	o := backend.ApplyOptions()
	options := &options{
		Options:         &o,
		ApplyMigrations: true,
		BusyTimeoutMS:   5000,
	}

	for _, opt := range opts {
		opt(options)
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, options.BusyTimeoutMS)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	b := &sqliteBackend{
		Store:   sqlstore.New(db, sqlstore.SQLite, options.Options),
		db:      db,
		options: options,
	}

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

// Migrate applies any pending database migrations.
func (sb *sqliteBackend) Migrate() error {
	dbi, err := migratesqlite.WithInstance(sb.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	return sqlstore.Migrate(migrationsFS, "sqlite", dbi)
}

func (sb *sqliteBackend) Close() error {
	return sb.db.Close()
}
