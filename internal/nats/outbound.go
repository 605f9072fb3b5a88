package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/vanilka-ai/bento-assistant/internal/model"
	"github.com/vanilka-ai/bento-assistant/pkg/metrics"
)

const (
	// StreamName is the name of the outbound delivery stream.
	StreamName = "ASSISTANT_OUT"

	// SubjectPrefix is the prefix for all outbound subjects.
	SubjectPrefix = "assistant.out"
)

// Publisher publishes outbound replies to the delivery bus. The
// chat-platform bridge consumes the stream and performs the actual
// platform send; this process only ever publishes.
type Publisher struct {
	client *Client
}

// NewPublisher creates a new outbound publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream ensures the outbound stream exists with proper
// configuration.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	// Create stream
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      72 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Outbound assistant replies awaiting delivery",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// ReplySubject returns the subject for a user's outbound replies.
func ReplySubject(userID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, userID)
}

// Publish publishes one outbound reply.
func (p *Publisher) Publish(ctx context.Context, reply *model.OutboundReply) (uint64, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal reply: %w", err)
	}

	ack, err := p.client.JetStream().Publish(ctx, ReplySubject(reply.UserID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish reply: %w", err)
	}

	metrics.OutboundPublished.WithLabelValues(string(reply.Outcome)).Inc()

	return ack.Sequence, nil
}
