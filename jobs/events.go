package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// EventProcessor is the event translation layer as seen by the queue.
type EventProcessor interface {
	Ingest(ctx context.Context, in integration.IngestInput) (integration.Event, error)
	RetryFailed(ctx context.Context, limit int) (integration.RetrySummary, error)
}

// EventIngestJob ingests queued external events.
type EventIngestJob struct {
	Events  EventProcessor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle ingests one event. Domain failures are already recorded on the event
// as FAILED and picked up by the retry job, so only storage errors go back to
// the queue.
func (j *EventIngestJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Events == nil {
		return errors.New("event ingest: handler not configured")
	}
	var payload EventIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("event ingest: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskEventIngest)
	defer func() { err = tracker.End(err) }()

	logger := logOrDefault(j.Logger).With(
		slog.String("job", TaskEventIngest),
		slog.String("event_type", string(payload.Type)),
	)
	evt, err := j.Events.Ingest(ctx, integration.IngestInput{
		Type:       payload.Type,
		ExternalID: payload.ExternalID,
		Payload:    payload.Payload,
	})
	switch {
	case err == nil:
		logger.Info("event ingested", slog.Int64("event_id", evt.ID), slog.String("status", string(evt.Status)))
		return nil
	case shared.IsDomain(err) && !errors.Is(err, shared.ErrStorage):
		logger.Warn("event rejected", slog.Int64("event_id", evt.ID), slog.Any("error", err))
		return fmt.Errorf("event ingest: %w: %w", err, asynq.SkipRetry)
	default:
		logger.Error("event ingest failed", slog.Any("error", err))
		return err
	}
}

// EventRetryJob reprocesses FAILED events, typically after a mapping fix.
type EventRetryJob struct {
	Events       EventProcessor
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	DefaultLimit int
}

func (j *EventRetryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Events == nil {
		return errors.New("event retry: handler not configured")
	}
	var payload EventRetryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("event retry: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = j.DefaultLimit
	}
	tracker := j.Metrics.Track(TaskEventRetry)
	defer func() { err = tracker.End(err) }()

	summary, err := j.Events.RetryFailed(ctx, limit)
	if err != nil {
		logOrDefault(j.Logger).Error("event retry failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddEventRetries(summary.Processed, summary.Failed)
	logOrDefault(j.Logger).Info("failed events retried",
		slog.Int("attempted", summary.Attempted),
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed),
	)
	return nil
}
