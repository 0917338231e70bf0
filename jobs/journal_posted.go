package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
)

// JournalPostedChannel is the Redis pub/sub channel reporting and audit
// consumers subscribe to.
const JournalPostedChannel = "ledger:journal.posted"

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier implements journals.Notifier by queueing the notification.
// The posting transaction has committed by the time it is called.
type QueueNotifier struct {
	queue Enqueuer
}

func NewQueueNotifier(queue Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) JournalPosted(ctx context.Context, evt journals.PostedEvent) error {
	task, err := NewJournalPostedTask(evt)
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueContext(ctx, task)
	return err
}

// JournalPostedJob publishes queued notifications to subscribers.
type JournalPostedJob struct {
	Redis   redis.UniversalClient
	Channel string
	Logger  *slog.Logger
}

func (j *JournalPostedJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Redis == nil {
		return errors.New("journal posted: handler not configured")
	}
	var evt journals.PostedEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("journal posted: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	channel := j.Channel
	if channel == "" {
		channel = JournalPostedChannel
	}
	receivers, err := j.Redis.Publish(ctx, channel, t.Payload()).Result()
	if err != nil {
		return fmt.Errorf("journal posted: publish: %w", err)
	}
	logOrDefault(j.Logger).Debug("journal posted published",
		slog.Int64("journal_entry_id", evt.JournalEntryID),
		slog.String("source_type", string(evt.SourceType)),
		slog.Int64("receivers", receivers),
	)
	return nil
}
