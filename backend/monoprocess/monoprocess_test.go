package monoprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/backend/memory"
	"github.com/cschleiden/go-wfnet/backend/sqlite"
	"github.com/cschleiden/go-wfnet/backend/test"
	"github.com/cschleiden/go-wfnet/internal/state"
)

func Test_MonoprocessBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.BackendTest(t, func() backend.Backend {
		return NewMonoprocessBackend(sqlite.NewInMemoryBackend(), 0, time.Millisecond)
	}, nil)
}

func Test_EndToEndMonoprocessBackend(t *testing.T) {
	if testing.Short() {
		t.Skip()
	}

	test.EndToEndBackendTest(t, func() backend.Backend {
		return NewMonoprocessBackend(sqlite.NewInMemoryBackend(), 0, 0)
	}, nil)
}

func Test_MonoprocessBackend_SignalsPendingWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewMonoprocessBackend(memory.NewMemoryBackend(), 1, time.Millisecond)

	notifications, err := b.PendingNotifications(ctx)
	require.NoError(t, err)

	// Writes without pending work do not signal
	err = b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		return tx.Put(ctx, &backend.Record{Kind: state.KindInstance, ID: "1", Data: []byte(`{}`)})
	})
	require.NoError(t, err)

	select {
	case <-notifications:
		t.Fatal("unexpected signal")
	case <-time.After(20 * time.Millisecond):
	}

	err = b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		return tx.Put(ctx, &backend.Record{Kind: state.KindPending, ID: "1", Data: []byte(`{}`)})
	})
	require.NoError(t, err)

	select {
	case <-notifications:
	case <-time.After(time.Second):
		t.Fatal("no signal for committed pending work")
	}

	cancel()

	require.Eventually(t, func() bool {
		_, ok := <-notifications
		return !ok
	}, time.Second, time.Millisecond)
}

func Test_MonoprocessBackend_NoSignalOnFailedUpdate(t *testing.T) {
	ctx := context.Background()

	b := NewMonoprocessBackend(memory.NewMemoryBackend(), 1, time.Millisecond)

	err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		if err := tx.Put(ctx, &backend.Record{Kind: state.KindPending, ID: "1", Data: []byte(`{}`)}); err != nil {
			return err
		}

		// Conflicts with the insert above
		return tx.Put(ctx, &backend.Record{Kind: state.KindPending, ID: "2", Version: 3, Data: []byte(`{}`)})
	})
	require.ErrorIs(t, err, backend.ErrConcurrentModification)

	require.Len(t, b.pendingSignal, 0)
}
