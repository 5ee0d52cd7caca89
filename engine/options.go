package engine

import (
	"encoding/json"
	"time"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/events"
)

type Options struct {
	// Router supplies routing decisions for automatic completions of dummy and composite tasks. Without a
	// router, or if it returns no decision, the default route of the task definition is used.
	Router core.Router

	// SynchronousCascade drains the pending work of a workflow tree before an external event returns.
	SynchronousCascade bool

	// TickBatchSize is the maximum number of pending work items processed per scheduler tick.
	TickBatchSize int

	// MaxCascadeTicks bounds the ticks a synchronous cascade runs. Remaining work is left for later ticks.
	MaxCascadeTicks int

	// MaxSettleIterations bounds the automatic transitions within a single transaction.
	MaxSettleIterations int

	// InstanceCacheSize enables caching of workflow instance aggregates if greater than 0.
	InstanceCacheSize int

	InstanceCacheExpiration time.Duration

	// Publisher receives committed spans and pending work notifications, optional.
	Publisher *events.Publisher
}

var DefaultOptions = Options{
	SynchronousCascade:      true,
	TickBatchSize:           100,
	MaxCascadeTicks:         100,
	MaxSettleIterations:     1000,
	InstanceCacheExpiration: 10 * time.Minute,
}

type Option func(*Options)

func WithRouter(r core.Router) Option {
	return func(o *Options) {
		o.Router = r
	}
}

func WithSynchronousCascade(enabled bool) Option {
	return func(o *Options) {
		o.SynchronousCascade = enabled
	}
}

func WithTickBatchSize(n int) Option {
	return func(o *Options) {
		o.TickBatchSize = n
	}
}

func WithMaxCascadeTicks(n int) Option {
	return func(o *Options) {
		o.MaxCascadeTicks = n
	}
}

func WithMaxSettleIterations(n int) Option {
	return func(o *Options) {
		o.MaxSettleIterations = n
	}
}

// WithInstanceCache keeps up to size recently used workflow instance aggregates in memory.
func WithInstanceCache(size int, expiration time.Duration) Option {
	return func(o *Options) {
		o.InstanceCacheSize = size
		o.InstanceCacheExpiration = expiration
	}
}

func WithEventPublisher(p *events.Publisher) Option {
	return func(o *Options) {
		o.Publisher = p
	}
}

type initializeOptions struct {
	payload      any
	aggregateKey string
	attributes   map[string]any
}

type InitializeOption interface {
	applyInitialize(*initializeOptions)
}

type completeOptions struct {
	route      []string
	attributes map[string]any
}

type CompleteOption interface {
	applyComplete(*completeOptions)
}

type initializeOptionFunc func(*initializeOptions)

func (f initializeOptionFunc) applyInitialize(o *initializeOptions) { f(o) }

type completeOptionFunc func(*completeOptions)

func (f completeOptionFunc) applyComplete(o *completeOptions) { f(o) }

// WithPayload sets the payload of the workflow instance. It is stored as is and never interpreted.
func WithPayload(payload any) InitializeOption {
	return initializeOptionFunc(func(o *initializeOptions) {
		o.payload = payload
	})
}

// WithAggregateKey associates the workflow instance and its sub-workflows with a business entity.
func WithAggregateKey(key string) InitializeOption {
	return initializeOptionFunc(func(o *initializeOptions) {
		o.aggregateKey = key
	})
}

// WithRoute supplies the routing decision for the split of the completed task.
func WithRoute(outputs ...string) CompleteOption {
	return completeOptionFunc(func(o *completeOptions) {
		o.route = outputs
	})
}

// SpanAttributes records caller supplied attributes as a custom span of the operation.
type SpanAttributes map[string]any

// WithSpanAttributes can be passed to InitializeWorkflow and CompleteWorkItem.
func WithSpanAttributes(attrs map[string]any) SpanAttributes {
	return SpanAttributes(attrs)
}

func (a SpanAttributes) applyInitialize(o *initializeOptions) {
	o.attributes = merge(o.attributes, a)
}

func (a SpanAttributes) applyComplete(o *completeOptions) {
	o.attributes = merge(o.attributes, a)
}

func merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}

	for k, v := range src {
		dst[k] = v
	}

	return dst
}

func rawPayload(v any, to func(any) (json.RawMessage, error)) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}

	return to(v)
}
