package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries ledger-mutating work ahead of notifications.
	QueueCritical = "critical"

	// TaskRecurringTick materialises due recurring templates.
	TaskRecurringTick = "recurring:tick"
	// TaskGLIntegrity replays every account ledger against its cached balance.
	TaskGLIntegrity = "gl:integrity"
	// TaskEventIngest ingests one external business event.
	TaskEventIngest = "integration:ingest"
	// TaskEventRetry reprocesses FAILED external events.
	TaskEventRetry = "integration:retry_failed"
	// TaskJournalPosted fans a posted-entry notification out to subscribers.
	TaskJournalPosted = "journal:posted"
)

// RecurringTickPayload optionally pins the tick date; empty means today in
// the business timezone.
type RecurringTickPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// EventRetryPayload bounds a retry pass.
type EventRetryPayload struct {
	Limit int `json:"limit,omitempty"`
}

// EventIngestPayload is an external event as queued by producers.
type EventIngestPayload struct {
	Type       integration.EventType `json:"type"`
	ExternalID string                `json:"external_id,omitempty"`
	Payload    json.RawMessage       `json:"payload"`
}

// NewRecurringTickTask constructs a tick task. A zero asOf ticks for today.
func NewRecurringTickTask(asOf time.Time) (*asynq.Task, error) {
	payload := RecurringTickPayload{}
	if !asOf.IsZero() {
		payload.AsOf = asOf.Format(time.DateOnly)
	}
	return newTask(TaskRecurringTick, payload, asynq.Queue(QueueCritical))
}

// NewGLIntegrityTask constructs an integrity check task.
func NewGLIntegrityTask() (*asynq.Task, error) {
	return newTask(TaskGLIntegrity, struct{}{}, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}

// NewEventRetryTask constructs a retry pass over failed events.
func NewEventRetryTask(limit int) (*asynq.Task, error) {
	return newTask(TaskEventRetry, EventRetryPayload{Limit: limit}, asynq.Queue(QueueDefault))
}

// NewEventIngestTask queues an external event for translation and posting.
func NewEventIngestTask(payload EventIngestPayload) (*asynq.Task, error) {
	return newTask(TaskEventIngest, payload, asynq.Queue(QueueCritical))
}

// NewJournalPostedTask wraps a posted-entry notification.
func NewJournalPostedTask(evt journals.PostedEvent) (*asynq.Task, error) {
	return newTask(TaskJournalPosted, evt, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data, opts...), nil
}
