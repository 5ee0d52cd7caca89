package sqlite

import (
	"github.com/cschleiden/go-wfnet/backend"
)

type options struct {
	*backend.Options

	// ApplyMigrations automatically applies database migrations on startup.
	ApplyMigrations bool

	// BusyTimeoutMS is how long a writer waits for the database lock before failing.
	BusyTimeoutMS int
}

type option func(*options)

// WithApplyMigrations automatically applies database migrations on startup.
func WithApplyMigrations(applyMigrations bool) option {
	return func(o *options) {
		o.ApplyMigrations = applyMigrations
	}
}

func WithBusyTimeout(ms int) option {
	return func(o *options) {
		o.BusyTimeoutMS = ms
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
