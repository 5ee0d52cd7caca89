package monoprocess

import (
	"context"
	"log/slog"
	"time"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/internal/state"
)

type monoprocessBackend struct {
	backend.Backend

	pendingSignal chan struct{}
	signalTimeout time.Duration

	logger *slog.Logger
}

var _ backend.PendingNotifier = (*monoprocessBackend)(nil)

// NewMonoprocessBackend wraps an existing backend and improves its responsiveness
// in case the backend and worker are running in the same process. This backend
// uses channels to notify the worker every time pending work has been committed.
// Note that only one worker will be notified.
// IMPORTANT: Only use this backend if the backend and worker are running in the
// same process.
func NewMonoprocessBackend(b backend.Backend, signalBufferSize int, signalTimeout time.Duration) *monoprocessBackend {
	if signalTimeout <= 0 {
		signalTimeout = time.Second // default
	}
	mb := &monoprocessBackend{
		Backend:       b,
		pendingSignal: make(chan struct{}, signalBufferSize),
		signalTimeout: signalTimeout,
		logger:        b.Logger(),
	}
	return mb
}

func (b *monoprocessBackend) Update(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	var pending bool

	if err := b.Backend.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		// fn may be retried by the wrapped backend, only the last attempt counts
		rt := &recordingTx{Tx: tx}
		err := fn(ctx, rt)
		pending = rt.pending
		return err
	}); err != nil {
		return err
	}

	if pending {
		b.notifyWorker(ctx)
	}

	return nil
}

// PendingNotifications returns a channel receiving a value for every signal this worker picked up.
func (b *monoprocessBackend) PendingNotifications(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.pendingSignal:
				b.logger.DebugContext(ctx, "worker got a pending work signal")

				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

func (b *monoprocessBackend) notifyWorker(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.signalTimeout)
	defer cancel()
	select {
	case <-ctx.Done():
		// we didn't manage to notify the worker that there is pending work, it
		// will pick it up after the poll interval
		b.logger.DebugContext(ctx, "failed to signal pending work to worker", "reason", ctx.Err())
		return false
	case b.pendingSignal <- struct{}{}:
		b.logger.DebugContext(ctx, "signalled pending work to worker")
		return true
	}
}

type recordingTx struct {
	backend.Tx

	pending bool
}

func (tx *recordingTx) Put(ctx context.Context, r *backend.Record) error {
	if err := tx.Tx.Put(ctx, r); err != nil {
		return err
	}

	if r.Kind == state.KindPending {
		tx.pending = true
	}

	return nil
}
