package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/cschleiden/go-wfnet/audit"
)

const (
	// TopicSpans carries every committed audit span.
	TopicSpans = "wfnet.spans"

	// TopicPending carries a notification whenever a transaction enqueued pending work.
	TopicPending = "wfnet.pending"

	TraceIDMetadataKey            = "trace_id"
	OperationMetadataKey          = "operation"
	WorkflowInstanceIDMetadataKey = "workflow_instance_id"
)

// PendingNotification announces pending work of a workflow tree that is ready to be processed.
type PendingNotification struct {
	TraceID             string   `json:"trace_id"`
	WorkflowInstanceIDs []string `json:"workflow_instance_ids"`
}

// Publisher publishes engine events to a watermill publisher.
type Publisher struct {
	pub message.Publisher
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{
		pub: pub,
	}
}

func (p *Publisher) PublishSpans(ctx context.Context, spans []*audit.Span) error {
	if len(spans) == 0 {
		return nil
	}

	msgs := make([]*message.Message, 0, len(spans))
	for _, s := range spans {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encoding span: %w", err)
		}

		msg := newMessage(ctx, payload)
		msg.Metadata.Set(TraceIDMetadataKey, s.TraceID)
		msg.Metadata.Set(OperationMetadataKey, s.Operation)
		msg.Metadata.Set(WorkflowInstanceIDMetadataKey, s.WorkflowInstanceID)

		msgs = append(msgs, msg)
	}

	return p.pub.Publish(TopicSpans, msgs...)
}

func (p *Publisher) PublishPending(ctx context.Context, n PendingNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding pending notification: %w", err)
	}

	msg := newMessage(ctx, payload)
	msg.Metadata.Set(TraceIDMetadataKey, n.TraceID)

	return p.pub.Publish(TopicPending, msg)
}

func newMessage(ctx context.Context, payload []byte) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	return msg
}

func (p *Publisher) Close() error {
	return p.pub.Close()
}

// DecodeSpan decodes a message of TopicSpans.
func DecodeSpan(msg *message.Message) (*audit.Span, error) {
	var s audit.Span
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		return nil, fmt.Errorf("decoding span message %s: %w", msg.UUID, err)
	}

	return &s, nil
}

// SubscribePending delivers pending notifications until ctx is canceled. Undecodable messages are
// acknowledged and dropped.
func SubscribePending(ctx context.Context, sub message.Subscriber) (<-chan PendingNotification, error) {
	msgs, err := sub.Subscribe(ctx, TopicPending)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", TopicPending, err)
	}

	c := make(chan PendingNotification)

	go func() {
		defer close(c)

		for msg := range msgs {
			var n PendingNotification
			err := json.Unmarshal(msg.Payload, &n)
			msg.Ack()

			if err != nil {
				continue
			}

			select {
			case c <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	return c, nil
}

// NewGoChannel returns an in-process pub/sub for single process deployments and tests.
func NewGoChannel(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewSlogLogger(logger),
	)
}
