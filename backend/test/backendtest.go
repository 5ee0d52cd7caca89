package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/backend"
)

func put(t *testing.T, ctx context.Context, b backend.Backend, r *backend.Record) {
	t.Helper()

	err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
		return tx.Put(ctx, r)
	})
	require.NoError(t, err)
}

func get(t *testing.T, ctx context.Context, b backend.Backend, kind, id string) *backend.Record {
	t.Helper()

	var r *backend.Record
	err := b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		r, err = tx.Get(ctx, kind, id)
		return err
	})
	require.NoError(t, err)

	return r
}

func query(t *testing.T, ctx context.Context, b backend.Backend, kind string, q backend.Query) []*backend.Record {
	t.Helper()

	var r []*backend.Record
	err := b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		r, err = tx.Query(ctx, kind, q)
		return err
	})
	require.NoError(t, err)

	return r
}

func ids(records []*backend.Record) []string {
	r := make([]string, 0, len(records))
	for _, rec := range records {
		r = append(r, rec.ID)
	}

	return r
}

// BackendTest verifies the transactional record store contract every backend has to implement.
func BackendTest(t *testing.T, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "Get_ReturnsNotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				err := b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
					_, err := tx.Get(ctx, "test", uuid.NewString())
					return err
				})
				require.ErrorIs(t, err, backend.ErrRecordNotFound)
			},
		},
		{
			name: "Put_InsertsRecordAtVersionOne",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`{"a":1}`)})

				r := get(t, ctx, b, "test", id)
				require.Equal(t, int64(1), r.Version)
				require.Equal(t, "test", r.Kind)
				require.Equal(t, id, r.ID)
				require.JSONEq(t, `{"a":1}`, string(r.Data))
			},
		},
		{
			name: "Put_InsertOfExistingRecordConflicts",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`)})

				err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
					return tx.Put(ctx, &backend.Record{Kind: "test", ID: id, Data: []byte(`2`)})
				})
				require.ErrorIs(t, err, backend.ErrConcurrentModification)

				require.Equal(t, "1", string(get(t, ctx, b, "test", id).Data))
			},
		},
		{
			name: "Put_UpdatesWithMatchingVersion",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`)})

				r := get(t, ctx, b, "test", id)
				r.Data = []byte(`2`)
				put(t, ctx, b, r)

				r = get(t, ctx, b, "test", id)
				require.Equal(t, int64(2), r.Version)
				require.Equal(t, "2", string(r.Data))
			},
		},
		{
			name: "Put_StaleVersionConflictsAndWritesNothing",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				other := uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`)})

				stale := get(t, ctx, b, "test", id)

				fresh := get(t, ctx, b, "test", id)
				fresh.Data = []byte(`2`)
				put(t, ctx, b, fresh)

				err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
					if err := tx.Put(ctx, &backend.Record{Kind: "test", ID: other, Data: []byte(`x`)}); err != nil {
						return err
					}

					stale.Data = []byte(`3`)
					return tx.Put(ctx, stale)
				})
				require.ErrorIs(t, err, backend.ErrConcurrentModification)

				require.Equal(t, "2", string(get(t, ctx, b, "test", id).Data))

				// No partial writes
				err = b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
					_, err := tx.Get(ctx, "test", other)
					return err
				})
				require.ErrorIs(t, err, backend.ErrRecordNotFound)
			},
		},
		{
			name: "Update_ErrorAbortsTransaction",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				boom := errors.New("boom")

				err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
					if err := tx.Put(ctx, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`)}); err != nil {
						return err
					}

					return boom
				})
				require.ErrorIs(t, err, boom)

				err = b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
					_, err := tx.Get(ctx, "test", id)
					return err
				})
				require.ErrorIs(t, err, backend.ErrRecordNotFound)
			},
		},
		{
			name: "Update_LaterWriteOfSameRecordWins",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()

				err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
					if err := tx.Put(ctx, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`)}); err != nil {
						return err
					}

					return tx.Put(ctx, &backend.Record{Kind: "test", ID: id, Data: []byte(`2`)})
				})
				require.NoError(t, err)

				r := get(t, ctx, b, "test", id)
				require.Equal(t, "2", string(r.Data))
				require.Equal(t, int64(1), r.Version)
			},
		},
		{
			name: "Delete_RemovesRecord",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				idx := uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`), Indexes: map[string]string{"group": idx}})

				err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
					return tx.Delete(ctx, "test", id, 1)
				})
				require.NoError(t, err)

				err = b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
					_, err := tx.Get(ctx, "test", id)
					return err
				})
				require.ErrorIs(t, err, backend.ErrRecordNotFound)
				require.Empty(t, query(t, ctx, b, "test", backend.Query{Index: "group", Value: idx}))
			},
		},
		{
			name: "Delete_StaleVersionConflicts",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`)})

				err := b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
					return tx.Delete(ctx, "test", id, 7)
				})
				require.ErrorIs(t, err, backend.ErrConcurrentModification)

				err = b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
					return tx.Delete(ctx, "test", uuid.NewString(), 1)
				})
				require.ErrorIs(t, err, backend.ErrConcurrentModification)
			},
		},
		{
			name: "Query_ReturnsMatchesInInsertionOrder",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				group := uuid.NewString()

				var want []string
				for i := 0; i < 5; i++ {
					id := uuid.NewString()
					want = append(want, id)
					put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`), Indexes: map[string]string{"group": group}})
				}

				// Different kind and different value do not match
				put(t, ctx, b, &backend.Record{Kind: "other", ID: uuid.NewString(), Data: []byte(`1`), Indexes: map[string]string{"group": group}})
				put(t, ctx, b, &backend.Record{Kind: "test", ID: uuid.NewString(), Data: []byte(`1`), Indexes: map[string]string{"group": uuid.NewString()}})

				// Updating a record keeps its position
				r := get(t, ctx, b, "test", want[0])
				r.Indexes = map[string]string{"group": group}
				put(t, ctx, b, r)

				require.Equal(t, want, ids(query(t, ctx, b, "test", backend.Query{Index: "group", Value: group})))
				require.Equal(t, want[:2], ids(query(t, ctx, b, "test", backend.Query{Index: "group", Value: group, Limit: 2})))
			},
		},
		{
			name: "Query_ReflectsIndexChanges",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				from, to := uuid.NewString(), uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`1`), Indexes: map[string]string{"group": from}})

				r := get(t, ctx, b, "test", id)
				r.Indexes = map[string]string{"group": to}
				put(t, ctx, b, r)

				require.Empty(t, query(t, ctx, b, "test", backend.Query{Index: "group", Value: from}))
				require.Equal(t, []string{id}, ids(query(t, ctx, b, "test", backend.Query{Index: "group", Value: to})))
			},
		},
		{
			name: "View_RejectsWrites",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				err := b.View(ctx, func(ctx context.Context, tx backend.Tx) error {
					return tx.Put(ctx, &backend.Record{Kind: "test", ID: uuid.NewString()})
				})
				require.ErrorIs(t, err, backend.ErrReadOnly)
			},
		},
		{
			name: "Update_ConcurrentWritersOnlyOneWins",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				put(t, ctx, b, &backend.Record{Kind: "test", ID: id, Data: []byte(`0`)})

				const writers = 5
				var wg sync.WaitGroup
				start := make(chan struct{})
				errs := make(chan error, writers)

				read := make(chan struct{}, writers)

				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()

						errs <- b.Update(ctx, func(ctx context.Context, tx backend.Tx) error {
							r, err := tx.Get(ctx, "test", id)
							if err != nil {
								return err
							}

							read <- struct{}{}
							<-start

							r.Data = []byte(`1`)
							return tx.Put(ctx, r)
						})
					}()
				}

				for i := 0; i < writers; i++ {
					<-read
				}
				close(start)
				wg.Wait()
				close(errs)

				succeeded := 0
				for err := range errs {
					if err == nil {
						succeeded++
						continue
					}
					require.ErrorIs(t, err, backend.ErrConcurrentModification)
				}

				require.Equal(t, 1, succeeded)
				require.Equal(t, int64(2), get(t, ctx, b, "test", id).Version)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()
			tt.f(t, ctx, b)
			if teardown != nil {
				teardown(b)
			}
		})
	}
}
