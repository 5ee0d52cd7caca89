package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/internal/sqlstore"
	"github.com/cschleiden/go-wfnet/internal/state"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

type postgresBackend struct {
	*sqlstore.Store

	dsn            string
	db             *sql.DB
	options        *options
	ownsConnection bool
}

var (
	_ backend.Backend         = (*postgresBackend)(nil)
	_ backend.PendingNotifier = (*postgresBackend)(nil)
)

func NewPostgresBackend(host string, port int, user, password, database string, opts ...option) *postgresBackend {
	options := newOptions(true, opts...)

	sslMode := options.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", host, port, user, password, database, sslMode)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		panic(err)
	}

	return newPostgresBackend(dsn, db, true, options)
}

// NewPostgresBackendWithDB creates a new Postgres backend using an existing database connection. The
// backend does not close the connection on Close, and notifications are not available without a dsn.
func NewPostgresBackendWithDB(db *sql.DB, opts ...option) *postgresBackend {
	return newPostgresBackend("", db, false, newOptions(false, opts...))
}

func newOptions(applyMigrations bool, opts ...option) *options {
	o := backend.ApplyOptions()
	options := &options{
		Options:         &o,
		ApplyMigrations: applyMigrations,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}

func newPostgresBackend(dsn string, db *sql.DB, owns bool, options *options) *postgresBackend {
	if options.PostgresOptions != nil {
		options.PostgresOptions(db)
	}

	b := &postgresBackend{
		Store:          sqlstore.New(db, sqlstore.Postgres, options.Options),
		dsn:            dsn,
		db:             db,
		options:        options,
		ownsConnection: owns,
	}

	if options.Notifications {
		b.Store.SetCommitHook(notifyPending)
	}

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

// Migrate applies any pending database migrations.
func (pb *postgresBackend) Migrate() error {
	dbi, err := migratepgx.WithInstance(pb.db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	return sqlstore.Migrate(migrationsFS, "postgres", dbi)
}

func (pb *postgresBackend) PendingNotifications(ctx context.Context) (<-chan struct{}, error) {
	// Without notifications workers rely on polling
	if !pb.options.Notifications || pb.dsn == "" {
		return nil, nil
	}

	nl := newNotificationListener(pb.dsn, pb.Logger())
	if err := nl.Start(ctx); err != nil {
		return nil, err
	}

	return nl.notify, nil
}

func (pb *postgresBackend) Close() error {
	if !pb.ownsConnection {
		return nil
	}

	return pb.db.Close()
}

func notifyPending(ctx context.Context, tx *sql.Tx, ops []*backend.WriteOp) error {
	for _, op := range ops {
		if op.Delete || op.Record.Kind != state.KindPending {
			continue
		}

		if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, '')", pendingChannel); err != nil {
			return fmt.Errorf("notifying pending work: %w", err)
		}

		return nil
	}

	return nil
}
