package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RecurringRunner is the scheduler tick.
type RecurringRunner interface {
	RunDue(ctx context.Context, asOf time.Time) (recurring.RunSummary, error)
}

// RecurringTickJob runs the recurring scheduler from the queue.
type RecurringTickJob struct {
	Runner  RecurringRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// Today returns the business date used when the payload has none.
	Today func() time.Time
}

// Handle executes one tick.
func (j *RecurringTickJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("recurring tick: handler not configured")
	}
	var payload RecurringTickPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("recurring tick: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := j.today()
	if payload.AsOf != "" {
		parsed, err := shared.ParseDate(payload.AsOf)
		if err != nil {
			return fmt.Errorf("recurring tick: %v: %w", err, asynq.SkipRetry)
		}
		asOf = parsed
	}

	tracker := j.Metrics.Track(TaskRecurringTick)
	defer func() { err = tracker.End(err) }()

	logger := logOrDefault(j.Logger).With(slog.String("job", TaskRecurringTick), slog.Time("as_of", asOf))
	summary, err := j.Runner.RunDue(ctx, asOf)
	if errors.Is(err, locks.ErrLockNotAcquired) {
		logger.Info("recurring tick already running elsewhere")
		return nil
	}
	if err != nil {
		logger.Error("recurring tick failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRecurringOutcomes(summary.Succeeded, summary.Failed, summary.Skipped)
	for _, res := range summary.Results {
		if res.Outcome == recurring.OutcomeFailed {
			logger.Warn("recurring template failed",
				slog.Int64("template_id", res.TemplateID),
				slog.String("error", res.Error),
			)
		}
	}
	return nil
}

func (j *RecurringTickJob) today() time.Time {
	if j.Today != nil {
		return shared.TruncateDate(j.Today())
	}
	return shared.TruncateDate(time.Now())
}

func logOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
