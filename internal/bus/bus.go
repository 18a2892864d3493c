// Package bus implements the Event bus (spec.md §6, out-of-scope
// collaborator). No pack example ships the Python reference's RabbitMQ
// client; the closest pack-native analogue to a durable message bus is
// cloud.google.com/go/pubsub, used by the Brightgate-product example
// (golang/src/bg/cl.eventd/eventd.go) to publish a JSON envelope to a
// topic. Message IDs are minted with github.com/google/uuid so
// downstream consumers can dedupe.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/wisp-sensor/wisp/internal/ports"
)

// envelope is the wire shape spec.md §6 requires.
type envelope struct {
	MessageID string `json:"message_id"`
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	MAC       string `json:"mac_address,omitempty"`
	BSSID     string `json:"bssid,omitempty"`
	RSSI      *int   `json:"rssi,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	SSID      string `json:"ssid,omitempty"`
	Channel   *int   `json:"channel,omitempty"`
}

// PubSubBus wraps a *pubsub.Topic behind ports.Bus, delivery mode
// persistent (Pub/Sub topics are durable by default).
type PubSubBus struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubBus dials the given project and ensures the named topic/queue
// exists, grounded on eventd.go's topic-publish pattern.
func NewPubSubBus(ctx context.Context, projectID, topicName string) (*PubSubBus, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bus: dial: %w", err)
	}

	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: check topic: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicName)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("bus: create topic: %w", err)
		}
	}

	return &PubSubBus{client: client, topic: topic}, nil
}

// buildEnvelope maps a domain event to the wire envelope, kept separate
// from Publish so the mapping can be tested without a live topic.
func buildEnvelope(e ports.Event, messageID string) envelope {
	env := envelope{
		MessageID: messageID,
		EventType: e.Type,
		Timestamp: e.Timestamp,
		RSSI:      e.RSSI,
		Vendor:    e.Vendor,
		SSID:      e.SSID,
		Channel:   e.Channel,
	}
	if e.Type == "ap_discovered" {
		env.BSSID = e.MAC
	} else {
		env.MAC = e.MAC
	}
	return env
}

// Publish delivers a discovery event, best-effort per spec.md §4.6:
// callers log failures rather than retrying.
func (b *PubSubBus) Publish(ctx context.Context, e ports.Event) error {
	payload, err := json.Marshal(buildEnvelope(e, uuid.NewString()))
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}

	result := b.topic.Publish(ctx, &pubsub.Message{Data: payload})
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = result.Get(publishCtx)
	if err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	return nil
}

func (b *PubSubBus) Close() error {
	b.topic.Stop()
	return b.client.Close()
}

var _ ports.Bus = (*PubSubBus)(nil)
