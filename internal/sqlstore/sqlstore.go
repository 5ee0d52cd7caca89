// Package sqlstore implements the backend record store on top of database/sql. The sqlite, mysql, and
// postgres backends share it and only differ in their dialect and schema migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/internal/metrickeys"
	mi "github.com/cschleiden/go-wfnet/internal/metrics"
	"github.com/cschleiden/go-wfnet/metrics"
)

// Dialect captures the differences between the supported databases.
type Dialect struct {
	Name string

	// Numbered placeholders ($1, $2, ...) instead of ?
	NumberedPlaceholders bool

	// InsertIgnore is the statement prefix inserting a row unless its key already exists. Dialects that use
	// a suffix instead set InsertIgnoreSuffix.
	InsertIgnore       string
	InsertIgnoreSuffix string

	// TxOptions are used for committing transactions.
	TxOptions *sql.TxOptions
}

var (
	SQLite = Dialect{
		Name:         "sqlite",
		InsertIgnore: "INSERT OR IGNORE INTO",
	}

	MySQL = Dialect{
		Name:         "mysql",
		InsertIgnore: "INSERT IGNORE INTO",
		TxOptions:    &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}

	Postgres = Dialect{
		Name:                 "postgres",
		NumberedPlaceholders: true,
		InsertIgnore:         "INSERT INTO",
		InsertIgnoreSuffix:   " ON CONFLICT DO NOTHING",
		TxOptions:            &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
)

func (d Dialect) bind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}

	return sb.String()
}

// Store is a backend.Backend without Close, which the embedding backends provide.
type Store struct {
	db      *sql.DB
	dialect Dialect
	options *backend.Options

	commitHook CommitHook
}

// CommitHook runs within the database transaction after all writes, before it commits.
type CommitHook func(ctx context.Context, tx *sql.Tx, ops []*backend.WriteOp) error

func New(db *sql.DB, dialect Dialect, options *backend.Options) *Store {
	options.Metrics = options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: dialect.Name})

	return &Store{
		db:      db,
		dialect: dialect,
		options: options,
	}
}

func (s *Store) SetCommitHook(h CommitHook) {
	s.commitHook = h
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Logger() *slog.Logger {
	return s.options.Logger
}

func (s *Store) Tracer() trace.Tracer {
	return s.options.TracerProvider.Tracer(backend.TracerName)
}

func (s *Store) Metrics() metrics.Client {
	return s.options.Metrics
}

func (s *Store) Options() *backend.Options {
	return s.options
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	return fn(ctx, &sqlTx{s: s, readOnly: true})
}

func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	timer := mi.NewTimer(s.options.Metrics, s.options.Clock, metrickeys.TransactionDuration, nil)
	defer timer.Stop()

	tx := &sqlTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if tx.buf.Empty() {
		return nil
	}

	if err := s.commit(ctx, tx.buf.Ops()); err != nil {
		if errors.Is(err, backend.ErrConcurrentModification) {
			s.options.Metrics.Counter(metrickeys.TransactionConflict, nil, 1)
		}

		return err
	}

	return nil
}

func (s *Store) commit(ctx context.Context, ops []*backend.WriteOp) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		r := op.Record

		var res sql.Result
		switch {
		case op.Delete:
			res, err = tx.ExecContext(ctx, s.dialect.bind(
				"DELETE FROM wfnet_records WHERE kind = ? AND id = ? AND version = ?"),
				r.Kind, r.ID, r.Version)

		case r.Version == 0:
			res, err = tx.ExecContext(ctx, s.dialect.bind(
				s.dialect.InsertIgnore+" wfnet_records (kind, id, version, data) VALUES (?, ?, 1, ?)"+s.dialect.InsertIgnoreSuffix),
				r.Kind, r.ID, r.Data)

		default:
			res, err = tx.ExecContext(ctx, s.dialect.bind(
				"UPDATE wfnet_records SET version = version + 1, data = ? WHERE kind = ? AND id = ? AND version = ?"),
				r.Data, r.Kind, r.ID, r.Version)
		}
		if err != nil {
			return fmt.Errorf("writing %s %s: %w", r.Kind, r.ID, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("writing %s %s: %w", r.Kind, r.ID, err)
		}

		if rows != 1 {
			return fmt.Errorf("%s %s: %w", r.Kind, r.ID, backend.ErrConcurrentModification)
		}

		if _, err := tx.ExecContext(ctx, s.dialect.bind(
			"DELETE FROM wfnet_record_indexes WHERE kind = ? AND id = ?"), r.Kind, r.ID); err != nil {
			return fmt.Errorf("removing indexes of %s %s: %w", r.Kind, r.ID, err)
		}

		if op.Delete {
			continue
		}

		for name, value := range r.Indexes {
			if _, err := tx.ExecContext(ctx, s.dialect.bind(
				"INSERT INTO wfnet_record_indexes (kind, id, name, value) VALUES (?, ?, ?, ?)"),
				r.Kind, r.ID, name, value); err != nil {
				return fmt.Errorf("indexing %s %s: %w", r.Kind, r.ID, err)
			}
		}
	}

	if s.commitHook != nil {
		if err := s.commitHook(ctx, tx, ops); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

type sqlTx struct {
	s        *Store
	readOnly bool
	buf      backend.Buffer
}

func (tx *sqlTx) Get(ctx context.Context, kind, id string) (*backend.Record, error) {
	row := tx.s.db.QueryRowContext(ctx, tx.s.dialect.bind(
		"SELECT version, data FROM wfnet_records WHERE kind = ? AND id = ?"), kind, id)

	r := &backend.Record{Kind: kind, ID: id}
	if err := row.Scan(&r.Version, &r.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrRecordNotFound
		}

		return nil, fmt.Errorf("reading %s %s: %w", kind, id, err)
	}

	return r, nil
}

func (tx *sqlTx) Query(ctx context.Context, kind string, q backend.Query) ([]*backend.Record, error) {
	query := "SELECT r.id, r.version, r.data FROM wfnet_record_indexes i " +
		"INNER JOIN wfnet_records r ON r.kind = i.kind AND r.id = i.id " +
		"WHERE i.kind = ? AND i.name = ? AND i.value = ? ORDER BY r.seq"
	if q.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(q.Limit)
	}

	rows, err := tx.s.db.QueryContext(ctx, tx.s.dialect.bind(query), kind, q.Index, q.Value)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", kind, err)
	}
	defer rows.Close()

	var records []*backend.Record
	for rows.Next() {
		r := &backend.Record{Kind: kind}
		if err := rows.Scan(&r.ID, &r.Version, &r.Data); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", kind, err)
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

func (tx *sqlTx) Put(ctx context.Context, r *backend.Record) error {
	if tx.readOnly {
		return backend.ErrReadOnly
	}

	tx.buf.Put(r)
	return nil
}

func (tx *sqlTx) Delete(ctx context.Context, kind, id string, version int64) error {
	if tx.readOnly {
		return backend.ErrReadOnly
	}

	tx.buf.Delete(kind, id, version)
	return nil
}

// Migrate applies all pending migrations found in the db/migrations directory of migrations.
func Migrate(migrations fs.FS, databaseName string, driver database.Driver) error {
	src, err := iofs.New(migrations, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, databaseName, driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}
