package mysql

import (
	"database/sql"

	"github.com/cschleiden/go-wfnet/backend"
)

type options struct {
	*backend.Options

	MySQLOptions func(db *sql.DB)

	// ConnectionParams are passed to the server as additional DSN parameters, e.g. time_zone or tls.
	ConnectionParams map[string]string

	// ApplyMigrations automatically applies database migrations on startup.
	ApplyMigrations bool
}

type option func(*options)

// WithApplyMigrations automatically applies database migrations on startup.
func WithApplyMigrations(applyMigrations bool) option {
	return func(o *options) {
		o.ApplyMigrations = applyMigrations
	}
}

func WithMySQLOptions(f func(db *sql.DB)) option {
	return func(o *options) {
		o.MySQLOptions = f
	}
}

// WithConnectionParams sets additional DSN parameters for every connection of the backend.
func WithConnectionParams(params map[string]string) option {
	return func(o *options) {
		o.ConnectionParams = params
	}
}

// WithBackendOptions allows to pass generic backend options.
func WithBackendOptions(opts ...backend.BackendOption) option {
	return func(o *options) {
		for _, opt := range opts {
			opt(o.Options)
		}
	}
}
