package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cschleiden/go-wfnet/backend"
)

const (
	KindSpan = "span"

	indexTrace = "trace"
)

// Write buffers the given spans in the transaction.
func Write(ctx context.Context, tx backend.Tx, spans []*Span) error {
	for _, s := range spans {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshaling span: %w", err)
		}

		if err := tx.Put(ctx, &backend.Record{
			Kind:    KindSpan,
			ID:      s.ID,
			Data:    data,
			Indexes: map[string]string{indexTrace: s.TraceID},
		}); err != nil {
			return fmt.Errorf("writing span %s: %w", s.ID, err)
		}
	}

	return nil
}

// Spans returns all spans of the trace ordered by start time. Spans started at the same time keep the
// order they were recorded in.
func Spans(ctx context.Context, tx backend.Tx, traceID string) ([]*Span, error) {
	records, err := tx.Query(ctx, KindSpan, backend.Query{Index: indexTrace, Value: traceID})
	if err != nil {
		return nil, fmt.Errorf("querying spans: %w", err)
	}

	spans := make([]*Span, 0, len(records))
	for _, r := range records {
		s, err := decode(r.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding span %s: %w", r.ID, err)
		}
		spans = append(spans, s)
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].StartedAt.Before(spans[j].StartedAt)
	})

	return spans, nil
}

func decode(data []byte) (*Span, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var s Span
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}

	return &s, nil
}
