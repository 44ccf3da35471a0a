package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"grnd/internal/dispatcher"
	"grnd/pkg/cloudevent"
)

// Lifecycle event types published to webhook subscribers.
const (
	EventTypeCreated   = "grnd.job.created"
	EventTypeStarted   = "grnd.job.started"
	EventTypeCompleted = "grnd.job.completed"
	EventTypeFailed    = "grnd.job.failed"
	EventTypeCancelled = "grnd.job.cancelled"
)

// eventSource identifies this service in emitted CloudEvents.
const eventSource = "grnd/jobs"

// LifecyclePublisher turns job transitions into CloudEvents and hands them
// to the dispatcher for async webhook delivery. A nil publisher is a no-op,
// so callers never need to guard the unconfigured case.
type LifecyclePublisher struct {
	dispatcher dispatcher.Dispatcher
	webhookURL string
	signingKey string
}

// NewLifecyclePublisher creates a publisher delivering to webhookURL.
// Returns nil when no webhook is configured.
func NewLifecyclePublisher(d dispatcher.Dispatcher, webhookURL, signingKey string) *LifecyclePublisher {
	if d == nil || webhookURL == "" {
		return nil
	}
	return &LifecyclePublisher{
		dispatcher: d,
		webhookURL: webhookURL,
		signingKey: signingKey,
	}
}

// Publish dispatches a lifecycle event for the job. Delivery is async and
// best-effort; a full dispatcher buffer is logged, not propagated.
func (p *LifecyclePublisher) Publish(ctx context.Context, eventType string, jb *Job) {
	if p == nil {
		return
	}

	data := map[string]any{
		"jobId":           jb.ID,
		"datasetId":       jb.DatasetID,
		"algorithm":       jb.Algorithm,
		"status":          string(jb.Status),
		"progressPercent": jb.ProgressPercent,
	}
	if jb.ErrorMessage != "" {
		data["error"] = jb.ErrorMessage
	}

	eventID := fmt.Sprintf("%s-%d", jb.ID, time.Now().UnixNano())
	event := cloudevent.New(eventType, eventSource, jb.ID, eventID, data)

	if err := p.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     event,
		Destination: p.webhookURL,
		SigningKey:  p.signingKey,
	}); err != nil {
		slog.Warn("Failed to dispatch lifecycle event", "jobId", jb.ID, "type", eventType, "error", err)
	}
}
