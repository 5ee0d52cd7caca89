package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/internal/metrickeys"
	mi "github.com/cschleiden/go-wfnet/internal/metrics"
	"github.com/cschleiden/go-wfnet/internal/state"
	"github.com/cschleiden/go-wfnet/metrics"
)

// Record hash fields
const (
	fieldVersion = "version"
	fieldData    = "data"
	fieldSeq     = "seq"
	fieldIndexes = "indexes"
)

var (
	_ backend.Backend         = (*redisBackend)(nil)
	_ backend.PendingNotifier = (*redisBackend)(nil)
)

// NewRedisBackend stores every record in a hash and every index in a sorted set ordered by insertion.
// Commits are optimistic: written records are watched while their versions are checked.
func NewRedisBackend(client redis.UniversalClient, opts ...RedisBackendOption) (*redisBackend, error) {
	options := &RedisOptions{
		Options:       backend.ApplyOptions(),
		Notifications: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	options.Metrics = options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "redis"})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &redisBackend{
		rdb:     client,
		keys:    newKeys(options.KeyPrefix),
		options: options,
	}, nil
}

type redisBackend struct {
	rdb     redis.UniversalClient
	keys    *keys
	options *RedisOptions
}

func (rb *redisBackend) Logger() *slog.Logger {
	return rb.options.Logger
}

func (rb *redisBackend) Tracer() trace.Tracer {
	return rb.options.TracerProvider.Tracer(backend.TracerName)
}

func (rb *redisBackend) Metrics() metrics.Client {
	return rb.options.Metrics
}

func (rb *redisBackend) Options() *backend.Options {
	return &rb.options.Options
}

func (rb *redisBackend) Close() error {
	return rb.rdb.Close()
}

func (rb *redisBackend) View(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	return fn(ctx, &redisTx{rb: rb, readOnly: true})
}

func (rb *redisBackend) Update(ctx context.Context, fn func(ctx context.Context, tx backend.Tx) error) error {
	timer := mi.NewTimer(rb.options.Metrics, rb.options.Clock, metrickeys.TransactionDuration, nil)
	defer timer.Stop()

	tx := &redisTx{rb: rb}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if tx.buf.Empty() {
		return nil
	}

	if err := rb.commit(ctx, tx.buf.Ops()); err != nil {
		if errors.Is(err, backend.ErrConcurrentModification) {
			rb.options.Metrics.Counter(metrickeys.TransactionConflict, nil, 1)
		}

		return err
	}

	return nil
}

type stored struct {
	exists  bool
	version int64
	seq     int64
	indexes map[string]string
}

func (rb *redisBackend) commit(ctx context.Context, ops []*backend.WriteOp) error {
	watched := make([]string, 0, len(ops))
	for _, op := range ops {
		watched = append(watched, rb.keys.record(op.Record.Kind, op.Record.ID))
	}

	err := rb.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := rb.read(ctx, tx, watched)
		if err != nil {
			return err
		}

		for i, op := range ops {
			r, cur := op.Record, current[i]

			switch {
			case !op.Delete && r.Version == 0 && !cur.exists:
			case cur.exists && cur.version == r.Version:
			default:
				return fmt.Errorf("%s %s: %w", r.Kind, r.ID, backend.ErrConcurrentModification)
			}
		}

		// Sequences for inserted records are allocated up front, gaps are fine
		for i := range ops {
			if !current[i].exists {
				seq, err := rb.rdb.Incr(ctx, rb.keys.sequence()).Result()
				if err != nil {
					return fmt.Errorf("allocating sequence: %w", err)
				}
				current[i].seq = seq
			}
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			pending := false

			for i, op := range ops {
				r, cur, key := op.Record, current[i], watched[i]

				for name, value := range cur.indexes {
					p.ZRem(ctx, rb.keys.index(r.Kind, name, value), r.ID)
				}

				if op.Delete {
					p.Del(ctx, key)
					continue
				}

				indexes, err := json.Marshal(r.Indexes)
				if err != nil {
					return fmt.Errorf("encoding indexes: %w", err)
				}

				p.HSet(ctx, key,
					fieldVersion, r.Version+1,
					fieldData, r.Data,
					fieldSeq, cur.seq,
					fieldIndexes, indexes,
				)

				for name, value := range r.Indexes {
					p.ZAdd(ctx, rb.keys.index(r.Kind, name, value), redis.Z{Score: float64(cur.seq), Member: r.ID})
				}

				if r.Kind == state.KindPending {
					pending = true
				}
			}

			if pending && rb.options.Notifications {
				p.Publish(ctx, rb.keys.pendingChannel(), "")
			}

			return nil
		})

		return err
	}, watched...)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("committing: %w", backend.ErrConcurrentModification)
	}

	return err
}

func (rb *redisBackend) read(ctx context.Context, tx *redis.Tx, keys []string) ([]*stored, error) {
	cmds := make([]*redis.SliceCmd, len(keys))

	if _, err := tx.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = p.HMGet(ctx, key, fieldVersion, fieldSeq, fieldIndexes)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	r := make([]*stored, len(keys))
	for i, cmd := range cmds {
		vals := cmd.Val()

		s := &stored{}
		r[i] = s

		if len(vals) < 3 || vals[0] == nil {
			continue
		}

		s.exists = true

		var err error
		if s.version, err = parseInt(vals[0]); err != nil {
			return nil, err
		}
		if s.seq, err = parseInt(vals[1]); err != nil {
			return nil, err
		}

		if raw, ok := vals[2].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &s.indexes); err != nil {
				return nil, fmt.Errorf("decoding indexes of %s: %w", keys[i], err)
			}
		}
	}

	return r, nil
}

func parseInt(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected value %v", v)
	}

	return strconv.ParseInt(s, 10, 64)
}

// PendingNotifications subscribes to the channel commits with pending work publish to.
func (rb *redisBackend) PendingNotifications(ctx context.Context) (<-chan struct{}, error) {
	if !rb.options.Notifications {
		return nil, nil
	}

	ps := rb.rdb.Subscribe(ctx, rb.keys.pendingChannel())

	// Wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to pending work: %w", err)
	}

	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}

				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}

type redisTx struct {
	rb       *redisBackend
	readOnly bool
	buf      backend.Buffer
}

func (tx *redisTx) Get(ctx context.Context, kind, id string) (*backend.Record, error) {
	vals, err := tx.rb.rdb.HMGet(ctx, tx.rb.keys.record(kind, id), fieldVersion, fieldData).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s %s: %w", kind, id, err)
	}

	return toRecord(kind, id, vals)
}

func toRecord(kind, id string, vals []any) (*backend.Record, error) {
	if len(vals) < 2 || vals[0] == nil {
		return nil, backend.ErrRecordNotFound
	}

	version, err := parseInt(vals[0])
	if err != nil {
		return nil, fmt.Errorf("decoding version of %s %s: %w", kind, id, err)
	}

	data, _ := vals[1].(string)

	return &backend.Record{
		Kind:    kind,
		ID:      id,
		Version: version,
		Data:    []byte(data),
	}, nil
}

func (tx *redisTx) Query(ctx context.Context, kind string, q backend.Query) ([]*backend.Record, error) {
	stop := int64(-1)
	if q.Limit > 0 {
		stop = int64(q.Limit - 1)
	}

	ids, err := tx.rb.rdb.ZRange(ctx, tx.rb.keys.index(kind, q.Index, q.Value), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", kind, err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	if _, err := tx.rb.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HMGet(ctx, tx.rb.keys.record(kind, id), fieldVersion, fieldData)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("reading %s: %w", kind, err)
	}

	records := make([]*backend.Record, 0, len(ids))
	for i, cmd := range cmds {
		r, err := toRecord(kind, ids[i], cmd.Val())
		if err != nil {
			// Removed since the index was read
			if errors.Is(err, backend.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}

		records = append(records, r)
	}

	return records, nil
}

func (tx *redisTx) Put(ctx context.Context, r *backend.Record) error {
	if tx.readOnly {
		return backend.ErrReadOnly
	}

	tx.buf.Put(r)
	return nil
}

func (tx *redisTx) Delete(ctx context.Context, kind, id string, version int64) error {
	if tx.readOnly {
		return backend.ErrReadOnly
	}

	tx.buf.Delete(kind, id, version)
	return nil
}
