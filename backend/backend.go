package backend

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/metrics"
)

var (
	ErrRecordNotFound = errors.New("record not found")

	// ErrReadOnly is returned for writes within a View transaction.
	ErrReadOnly = errors.New("transaction is read-only")

	// ErrConcurrentModification is returned by Update when the transaction could not be committed
	// because one of the written records was modified concurrently.
	ErrConcurrentModification = core.ErrConcurrentModification
)

const TracerName = "go-wfnet"

// Backend is the transactional record store the engine persists all state into.
//
// The engine holds no state of its own beyond the definition registry; every operation reads the
// records it needs, mutates them in memory, and writes them back through a single Update call.
type Backend interface {
	// Update runs fn in a read-write transaction. Writes are buffered and applied atomically after fn
	// returns without error. If any written record was changed since it was read, no write is applied
	// and ErrConcurrentModification is returned.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Logger returns the configured logger for the backend
	Logger() *slog.Logger

	// Tracer returns the configured tracer for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}

// Tx provides access to records within a transaction. Reads do not observe writes buffered in the same
// transaction.
type Tx interface {
	// Get returns the record with the given kind and id, or ErrRecordNotFound.
	Get(ctx context.Context, kind, id string) (*Record, error)

	// Query returns records of the given kind whose index matches, in insertion order. Returned records
	// do not carry their indexes.
	Query(ctx context.Context, kind string, q Query) ([]*Record, error)

	// Put buffers a write of the record. A record with Version 0 is inserted and must not exist yet,
	// otherwise the stored version must still equal r.Version. The stored version is incremented.
	Put(ctx context.Context, r *Record) error

	// Delete buffers the removal of a record, which must still be at the given version.
	Delete(ctx context.Context, kind, id string, version int64) error
}

// PendingNotifier is implemented by backends that signal when pending work has been committed. Workers use
// the signal to process cross-instance work without waiting for their next poll.
type PendingNotifier interface {
	// PendingNotifications returns a channel receiving a value whenever pending work was committed. The
	// channel is closed when ctx is canceled. A nil channel means the backend was configured without
	// notifications.
	PendingNotifications(ctx context.Context) (<-chan struct{}, error)
}
