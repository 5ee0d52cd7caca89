package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/internal/metrickeys"
	mi "github.com/cschleiden/go-wfnet/internal/metrics"
	"github.com/cschleiden/go-wfnet/metrics"
)

type entry struct {
	version int64
	seq     int64
	data    []byte
	indexes map[string]string
}

type memoryBackend struct {
	mu sync.RWMutex

	records map[string]map[string]*entry
	seq     int64

	options backend.Options
}

var _ backend.Backend = (*memoryBackend)(nil)

// NewMemoryBackend returns a backend keeping all records in process memory. It is intended for tests and
// single process deployments that do not need durability.
func NewMemoryBackend(opts ...backend.BackendOption) *memoryBackend {
	options := backend.ApplyOptions(opts...)
	options.Metrics = options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "memory"})

	return &memoryBackend{
		records: make(map[string]map[string]*entry),
		options: options,
	}
}

func (b *memoryBackend) Update(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	timer := mi.NewTimer(b.options.Metrics, b.options.Clock, metrickeys.TransactionDuration, nil)
	defer timer.Stop()

	tx := &memoryTx{b: b}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if tx.buf.Empty() {
		return nil
	}

	if err := b.commit(tx.buf.Ops()); err != nil {
		b.options.Metrics.Counter(metrickeys.TransactionConflict, nil, 1)
		return err
	}

	return nil
}

func (b *memoryBackend) View(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	return fn(ctx, &memoryTx{b: b, readOnly: true})
}

func (b *memoryBackend) commit(ops []*backend.WriteOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, op := range ops {
		r := op.Record

		e := b.records[r.Kind][r.ID]
		switch {
		case e == nil && r.Version == 0 && !op.Delete:
		case e != nil && e.version == r.Version:
		default:
			return fmt.Errorf("%s %s: %w", r.Kind, r.ID, backend.ErrConcurrentModification)
		}
	}

	for _, op := range ops {
		r := op.Record

		kind, ok := b.records[r.Kind]
		if !ok {
			kind = make(map[string]*entry)
			b.records[r.Kind] = kind
		}

		if op.Delete {
			delete(kind, r.ID)
			continue
		}

		e, ok := kind[r.ID]
		if !ok {
			b.seq++
			e = &entry{seq: b.seq}
			kind[r.ID] = e
		}

		e.version = r.Version + 1
		e.data = append([]byte(nil), r.Data...)
		e.indexes = make(map[string]string, len(r.Indexes))
		for k, v := range r.Indexes {
			e.indexes[k] = v
		}
	}

	return nil
}

func (b *memoryBackend) Logger() *slog.Logger {
	return b.options.Logger
}

func (b *memoryBackend) Tracer() trace.Tracer {
	return b.options.TracerProvider.Tracer(backend.TracerName)
}

func (b *memoryBackend) Metrics() metrics.Client {
	return b.options.Metrics
}

func (b *memoryBackend) Options() *backend.Options {
	return &b.options
}

func (b *memoryBackend) Close() error {
	return nil
}

type memoryTx struct {
	b        *memoryBackend
	readOnly bool
	buf      backend.Buffer
}

func (tx *memoryTx) Get(ctx context.Context, kind, id string) (*backend.Record, error) {
	tx.b.mu.RLock()
	defer tx.b.mu.RUnlock()

	e, ok := tx.b.records[kind][id]
	if !ok {
		return nil, backend.ErrRecordNotFound
	}

	return toRecord(kind, id, e), nil
}

func (tx *memoryTx) Query(ctx context.Context, kind string, q backend.Query) ([]*backend.Record, error) {
	tx.b.mu.RLock()
	defer tx.b.mu.RUnlock()

	type match struct {
		id string
		e  *entry
	}

	var matches []match
	for id, e := range tx.b.records[kind] {
		if v, ok := e.indexes[q.Index]; ok && v == q.Value {
			matches = append(matches, match{id, e})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].e.seq < matches[j].e.seq
	})

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}

	records := make([]*backend.Record, 0, len(matches))
	for _, m := range matches {
		records = append(records, toRecord(kind, m.id, m.e))
	}

	return records, nil
}

func (tx *memoryTx) Put(ctx context.Context, r *backend.Record) error {
	if tx.readOnly {
		return backend.ErrReadOnly
	}

	tx.buf.Put(r)
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, kind, id string, version int64) error {
	if tx.readOnly {
		return backend.ErrReadOnly
	}

	tx.buf.Delete(kind, id, version)
	return nil
}

func toRecord(kind, id string, e *entry) *backend.Record {
	return &backend.Record{
		Kind:    kind,
		ID:      id,
		Version: e.version,
		Data:    append([]byte(nil), e.data...),
	}
}
