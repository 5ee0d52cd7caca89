package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cschleiden/go-wfnet/audit"
	"github.com/cschleiden/go-wfnet/backend"
	"github.com/cschleiden/go-wfnet/core"
)

// GetTrace summarizes the trace of a workflow tree.
func (e *Engine) GetTrace(ctx context.Context, traceID string) (*audit.Trace, error) {
	spans, err := e.GetSpans(ctx, traceID)
	if err != nil {
		return nil, err
	}

	t := audit.Summarize(traceID, spans)
	if t == nil {
		return nil, fmt.Errorf("trace %s: %w", traceID, core.ErrNotFound)
	}

	return t, nil
}

// GetSpans returns all spans of the trace ordered by start time.
func (e *Engine) GetSpans(ctx context.Context, traceID string) ([]*audit.Span, error) {
	var spans []*audit.Span

	err := e.backend.View(ctx, func(ctx context.Context, tx backend.Tx) error {
		var err error
		spans, err = audit.Spans(ctx, tx, traceID)
		return err
	})

	return spans, err
}

// StateAt reconstructs the state of the workflow tree at t from its recorded spans.
func (e *Engine) StateAt(ctx context.Context, traceID string, t time.Time) (*audit.Snapshot, error) {
	spans, err := e.GetSpans(ctx, traceID)
	if err != nil {
		return nil, err
	}

	if len(spans) == 0 {
		return nil, fmt.Errorf("trace %s: %w", traceID, core.ErrNotFound)
	}

	return audit.StateAt(spans, t), nil
}
