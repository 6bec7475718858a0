// Package events publishes domain events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
)

// 事件类型
const (
	TypeFeedbackSubmitted = "feedback.submitted"
	TypeReplyCreated      = "reply.created"
	TypeReplyEscalated    = "reply.escalated"
	TypeReviewsSynced     = "reviews.synced"
)

// Event is one domain event. Key orders events of the same aggregate on a partition.
type Event struct {
	Type       string                 `json:"type"`
	Key        string                 `json:"key"`
	CompanyID  string                 `json:"companyId"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(eventType, key, companyID string, data map[string]interface{}) Event {
	return Event{Type: eventType, Key: key, CompanyID: companyID, OccurredAt: time.Now().UTC(), Data: data}
}

// JSON encodes the event as the message value.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers domain events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// PublishQuietly publishes and only logs a failure; events never fail a workflow.
func PublishQuietly(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"eventType": event.Type,
			"key":       event.Key,
			"companyID": event.CompanyID,
		}).Warn("failed to publish domain event")
	}
}

// NoopPublisher logs events at debug level and drops them.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, event Event) error {
	log.WithFields(log.Fields{"eventType": event.Type, "key": event.Key}).Debug("domain event (no broker configured)")
	return nil
}

func (NoopPublisher) Close() error { return nil }
