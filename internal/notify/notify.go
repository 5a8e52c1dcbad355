// Package notify publishes crawl completion summaries to interested systems.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
)

// Summary is the message body published when a crawl run finishes.
type Summary struct {
	RunID         uuid.UUID `json:"run_id"`
	State         string    `json:"state"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	StoppedEarly  bool      `json:"stopped_early"`
	CriticalError bool      `json:"critical_error"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Notifier delivers run summaries.
type Notifier interface {
	NotifyFinished(ctx context.Context, s Summary) error
	Close() error
}

// Noop discards summaries. Used when notifications are disabled.
type Noop struct{}

func (Noop) NotifyFinished(context.Context, Summary) error { return nil }
func (Noop) Close() error                                  { return nil }

// PubSubNotifier publishes run summaries to a Google Cloud Pub/Sub topic.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub creates a notifier bound to the given project and topic.
func NewPubSub(ctx context.Context, projectID, topicID string) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubNotifier{client: client, topic: client.Topic(topicID)}, nil
}

// NotifyFinished publishes the summary and waits for server acknowledgement.
func (n *PubSubNotifier) NotifyFinished(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": s.RunID.String(),
			"state":  s.State,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	return nil
}

// Close stops the topic's publish goroutines and closes the client.
func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}
