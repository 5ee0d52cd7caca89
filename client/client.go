package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cschleiden/go-wfnet/core"
	"github.com/cschleiden/go-wfnet/engine"
	"github.com/cschleiden/go-wfnet/internal/log"
	"github.com/cschleiden/go-wfnet/internal/metrickeys"
	"github.com/cschleiden/go-wfnet/metrics"
)

var ErrWorkflowCanceled = errors.New("workflow canceled")
var ErrWorkflowFailed = errors.New("workflow failed")
var ErrWaitTimeout = errors.New("workflow did not finish in specified timeout")

type Options struct {
	// MaxRetries bounds the attempts of an operation that failed with a concurrent modification.
	MaxRetries uint64

	// MaxElapsedTime bounds the total time spent retrying a single operation.
	MaxElapsedTime time.Duration
}

var DefaultOptions = Options{
	MaxRetries:     10,
	MaxElapsedTime: 10 * time.Second,
}

// Client runs engine operations and retries those that lost a race against a concurrent writer of the
// same workflow instance.
type Client struct {
	engine  *engine.Engine
	options Options

	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics metrics.Client
}

func New(e *engine.Engine, opts ...func(*Options)) *Client {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	b := e.Backend()

	return &Client{
		engine:  e,
		options: options,
		clock:   b.Options().Clock,
		logger:  b.Logger(),
		tracer:  b.Tracer(),
		metrics: b.Metrics(),
	}
}

func (c *Client) Engine() *engine.Engine {
	return c.engine
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 5,
		MaxInterval:         time.Millisecond * 500,
		Multiplier:          2,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      c.options.MaxElapsedTime,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, c.options.MaxRetries), ctx)
}

// retry runs op until it succeeds, fails with an error that cannot be retried, or the retry budget is
// exhausted.
func (c *Client) retry(ctx context.Context, name string, op func() error) error {
	attempt := 0

	return backoff.RetryNotify(func() error {
		attempt++

		err := op()
		if err != nil && !core.IsRetryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}, c.backOff(ctx), func(err error, d time.Duration) {
		c.metrics.Counter(metrickeys.ClientRetry, metrics.Tags{metrickeys.Operation: name}, 1)
		c.logger.DebugContext(ctx, "retrying operation",
			log.OperationKey, name,
			log.AttemptKey, attempt,
			log.DurationKey, d.Milliseconds(),
			"error", err,
		)
	})
}

func (c *Client) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}

	span.End()
}

// InitializeWorkflow creates and starts a new instance of the given workflow.
func (c *Client) InitializeWorkflow(ctx context.Context, name, version string, opts ...engine.InitializeOption) (id string, err error) {
	ctx, span := c.span(ctx, "InitializeWorkflow",
		attribute.String(log.WorkflowNameKey, name),
		attribute.String(log.WorkflowVersionKey, version),
	)
	defer func() { endSpan(span, err) }()

	err = c.retry(ctx, "initialize_workflow", func() error {
		var err error
		id, err = c.engine.InitializeWorkflow(ctx, name, version, opts...)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("initializing workflow %s: %w", name, err)
	}

	span.SetAttributes(attribute.String(log.InstanceIDKey, id))

	return id, nil
}

// CancelWorkflow cancels a running workflow instance and its sub-workflows.
func (c *Client) CancelWorkflow(ctx context.Context, instanceID string) (err error) {
	ctx, span := c.span(ctx, "CancelWorkflow", attribute.String(log.InstanceIDKey, instanceID))
	defer func() { endSpan(span, err) }()

	return c.retry(ctx, "cancel_workflow", func() error {
		return c.engine.CancelWorkflow(ctx, instanceID)
	})
}

func (c *Client) InitializeWorkItem(ctx context.Context, target engine.WorkItemTarget, payload any) (id string, err error) {
	ctx, span := c.span(ctx, "InitializeWorkItem",
		attribute.String(log.InstanceIDKey, target.ParentWorkflowInstanceID),
		attribute.String(log.TaskNameKey, target.ParentTaskName),
	)
	defer func() { endSpan(span, err) }()

	err = c.retry(ctx, "initialize_work_item", func() error {
		var err error
		id, err = c.engine.InitializeWorkItem(ctx, target, payload)
		return err
	})
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String(log.WorkItemIDKey, id))

	return id, nil
}

func (c *Client) StartWorkItem(ctx context.Context, workItemID string) (err error) {
	ctx, span := c.span(ctx, "StartWorkItem", attribute.String(log.WorkItemIDKey, workItemID))
	defer func() { endSpan(span, err) }()

	return c.retry(ctx, "start_work_item", func() error {
		return c.engine.StartWorkItem(ctx, workItemID)
	})
}

func (c *Client) CompleteWorkItem(ctx context.Context, workItemID string, result any, opts ...engine.CompleteOption) (err error) {
	ctx, span := c.span(ctx, "CompleteWorkItem", attribute.String(log.WorkItemIDKey, workItemID))
	defer func() { endSpan(span, err) }()

	return c.retry(ctx, "complete_work_item", func() error {
		return c.engine.CompleteWorkItem(ctx, workItemID, result, opts...)
	})
}

func (c *Client) FailWorkItem(ctx context.Context, workItemID string, cause error) (err error) {
	ctx, span := c.span(ctx, "FailWorkItem", attribute.String(log.WorkItemIDKey, workItemID))
	defer func() { endSpan(span, err) }()

	return c.retry(ctx, "fail_work_item", func() error {
		return c.engine.FailWorkItem(ctx, workItemID, cause)
	})
}

func (c *Client) CancelWorkItem(ctx context.Context, workItemID string) (err error) {
	ctx, span := c.span(ctx, "CancelWorkItem", attribute.String(log.WorkItemIDKey, workItemID))
	defer func() { endSpan(span, err) }()

	return c.retry(ctx, "cancel_work_item", func() error {
		return c.engine.CancelWorkItem(ctx, workItemID)
	})
}

// WaitForWorkflow waits for the given workflow instance to reach a terminal state or until the given
// timeout has expired. Completed instances are returned without error; failed and canceled instances are
// returned together with ErrWorkflowFailed or ErrWorkflowCanceled.
func (c *Client) WaitForWorkflow(ctx context.Context, instanceID string, timeout time.Duration) (*core.WorkflowInstance, error) {
	if timeout == 0 {
		timeout = time.Second * 20
	}

	ctx, span := c.span(ctx, "WaitForWorkflow", attribute.String(log.InstanceIDKey, instanceID))
	defer span.End()

	b := backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond * 1,
		MaxInterval:         time.Second * 1,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		MaxElapsedTime:      timeout,
		Stop:                backoff.Stop,
		Clock:               c.clock,
	}
	b.Reset()

	ticker := backoff.NewTicker(backoff.WithContext(&b, ctx))
	defer ticker.Stop()

	for range ticker.C {
		wi, err := c.engine.GetWorkflowInstance(ctx, instanceID)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("getting workflow instance: %w", err)
		}

		switch wi.State {
		case core.WorkflowStateCompleted:
			return wi, nil
		case core.WorkflowStateFailed:
			if wi.Failure != nil {
				return wi, fmt.Errorf("%w: %w", ErrWorkflowFailed, wi.Failure)
			}
			return wi, ErrWorkflowFailed
		case core.WorkflowStateCanceled:
			return wi, ErrWorkflowCanceled
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return nil, ErrWaitTimeout
}
