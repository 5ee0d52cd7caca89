package mysql

import (
	"database/sql"
	"embed"
	"fmt"
	"maps"

	"github.com/go-sql-driver/mysql"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/internal/sqlstore"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

type mysqlBackend struct {
	*sqlstore.Store

	cfg     *mysql.Config
	db      *sql.DB
	options *options
}

var _ backend.Backend = (*mysqlBackend)(nil)

func NewMysqlBackend(host string, port int, user, password, database string, opts ...option) *mysqlBackend {
	o := backend.ApplyOptions()
	options := &options{
		Options:         &o,
		ApplyMigrations: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	cfg := connectionConfig(host, port, user, password, database, options.ConnectionParams)

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		panic(err)
	}

	if options.MySQLOptions != nil {
		options.MySQLOptions(db)
	}

	b := &mysqlBackend{
		Store:   sqlstore.New(db, sqlstore.MySQL, options.Options),
		cfg:     cfg,
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

func connectionConfig(host string, port int, user, password, database string, params map[string]string) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.InterpolateParams = true

	if len(params) > 0 {
		cfg.Params = maps.Clone(params)
	}

	return cfg
}

// Migrate applies any pending database migrations. Migrations run on a separate connection that allows
// multiple statements.
func (mb *mysqlBackend) Migrate() error {
	schemaCfg := mb.cfg.Clone()
	schemaCfg.MultiStatements = true

	db, err := sql.Open("mysql", schemaCfg.FormatDSN())
	if err != nil {
		return fmt.Errorf("opening schema database: %w", err)
	}
	defer db.Close()

	dbi, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	return sqlstore.Migrate(migrationsFS, "mysql", dbi)
}

func (mb *mysqlBackend) Close() error {
	return mb.db.Close()
}
