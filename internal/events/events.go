// Package events announces finished sync runs to downstream consumers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"connector-sync/internal/models"
)

const (
	TypeSyncCompleted = "sync.completed"
	TypeSyncFailed    = "sync.failed"
)

type SyncEvent struct {
	ID             string                  `json:"id"`
	Type           string                  `json:"type"`
	OrganizationID string                  `json:"organizationId"`
	Source         models.SourceName       `json:"source"`
	Status         models.ConnectionStatus `json:"status"`
	Results        *models.SyncResult      `json:"results,omitempty"`
	Error          string                  `json:"error,omitempty"`
	OccurredAt     time.Time               `json:"occurredAt"`
}

// NewSyncEvent builds the event for a run outcome. A non-empty errMsg marks the run failed.
func NewSyncEvent(conn *models.Connection, results *models.SyncResult, errMsg string) SyncEvent {
	eventType := TypeSyncCompleted
	if errMsg != "" {
		eventType = TypeSyncFailed
	}
	return SyncEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		OrganizationID: conn.OrganizationID,
		Source:         conn.Source,
		Status:         conn.Status,
		Results:        results,
		Error:          errMsg,
		OccurredAt:     time.Now().UTC(),
	}
}

// Key partitions events per connection so a consumer sees one connection's runs in order.
func (e SyncEvent) Key() string {
	return models.ConnectionKey(e.OrganizationID, e.Source)
}

type Publisher interface {
	Publish(ctx context.Context, event SyncEvent) error
	Close() error
}

// Noop discards events. It is used when Kafka is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, SyncEvent) error { return nil }
func (Noop) Close() error                             { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []SyncEvent
}

func (r *Recorder) Publish(_ context.Context, event SyncEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error {
	return nil
}

func (r *Recorder) Events() []SyncEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SyncEvent(nil), r.events...)
}
