package jobs_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/money"
	locks "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func TestRecurringTickJobRunsDueTemplates(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	_, err := l.Recurring.Create(ctx, recurring.CreateTemplateInput{
		Name:        "Rent",
		VoucherType: vouchers.TypeJournal,
		Frequency:   recurring.FrequencyMonthly,
		StartDate:   shared.Date(2024, time.May, 1),
		AutoPost:    true,
		Lines: []recurring.TemplateLine{
			{AccountID: l.ID(t, "6100"), Amount: money.MustParse("900"), Side: shared.SideDebit},
			{AccountID: l.ID(t, "1010"), Amount: money.MustParse("900"), Side: shared.SideCredit},
		},
	})
	require.NoError(t, err)

	job := &jobs.RecurringTickJob{
		Runner:  l.Recurring,
		Logger:  l.Logger,
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
		Today:   func() time.Time { return shared.Date(2024, time.May, 3) },
	}
	task, err := jobs.NewRecurringTickTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	assert.Equal(t, money.MustParse("900"), l.Balance(t, "6100"))

	// A pinned date far ahead catches up only one more period.
	task, err = jobs.NewRecurringTickTask(shared.Date(2024, time.December, 1))
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	assert.Equal(t, money.MustParse("1800"), l.Balance(t, "6100"))
}

func TestRecurringTickJobTreatsHeldLockAsDone(t *testing.T) {
	l := ledgertest.New(t)
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	asOf := shared.Date(2024, time.May, 3)
	require.NoError(t, srv.Set(locks.RecurringTickLockKey(asOf), "other-worker"))

	svc := recurring.NewService(l.Store.Recurring(), l.Vouchers, locks.NewRedisLocker(client), time.Minute, l.Logger)
	job := &jobs.RecurringTickJob{Runner: svc, Logger: l.Logger, Today: func() time.Time { return asOf }}
	assert.NoError(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskRecurringTick, nil)))
}

func TestRecurringTickJobRejectsBadPayload(t *testing.T) {
	l := ledgertest.New(t)
	job := &jobs.RecurringTickJob{Runner: l.Recurring}
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskRecurringTick, []byte(`{"as_of":"03/05/2024"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubVerifier []accounts.Verification

func (s stubVerifier) VerifyAll(context.Context) ([]accounts.Verification, error) {
	return s, nil
}

func TestGLIntegrityJob(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	_, err := l.Journals.Post(ctx, journals.PostingInput{
		Header: journals.Header{Date: shared.Date(2024, time.May, 1), Description: "float"},
		Lines:  []journals.LineInput{ledgertest.Dr(l.ID(t, "1000"), "50"), ledgertest.Cr(l.ID(t, "3000"), "50")},
	})
	require.NoError(t, err)

	job := &jobs.GLIntegrityJob{Verifier: l.Accounts, Logger: l.Logger, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	require.NoError(t, job.Handle(ctx, asynq.NewTask(jobs.TaskGLIntegrity, nil)))

	job.Verifier = stubVerifier{
		{AccountID: 1, Code: "1000", Cached: money.MustParse("50"), Replayed: money.MustParse("50")},
		{AccountID: 2, Code: "1010", Cached: money.MustParse("10"), Replayed: money.MustParse("0"), Entries: 1},
	}
	err = job.Handle(ctx, asynq.NewTask(jobs.TaskGLIntegrity, nil))
	require.ErrorIs(t, err, jobs.ErrIntegrityMismatch)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEventIngestJob(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	job := &jobs.EventIngestJob{Events: l.Events, Logger: l.Logger}

	task, err := jobs.NewEventIngestTask(jobs.EventIngestPayload{
		Type:       integration.EventSalesPaymentReceived,
		ExternalID: "RCPT-7",
		Payload:    json.RawMessage(`{"number":"RCPT-7","date":"2024-05-02","amount":"40","method":"bank"}`),
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	assert.Equal(t, money.MustParse("40"), l.Balance(t, "1010"))

	task, err = jobs.NewEventIngestTask(jobs.EventIngestPayload{
		Type:    integration.EventSalesInvoiceCreated,
		Payload: json.RawMessage(`{"number":"INV-1"}`),
	})
	require.NoError(t, err)
	err = job.Handle(ctx, task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEventRetryJobUsesDefaultLimit(t *testing.T) {
	l := ledgertest.New(t)
	job := &jobs.EventRetryJob{Events: l.Events, Logger: l.Logger, DefaultLimit: 10}
	task, err := jobs.NewEventRetryTask(0)
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
}

type recordingQueue struct {
	tasks []*asynq.Task
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func TestJournalPostedFanOut(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(ctx, jobs.JournalPostedChannel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	queue := &recordingQueue{}
	evt := journals.PostedEvent{JournalEntryID: 42, Number: 42, SourceType: journals.SourceVoucher, SourceRef: "7"}
	require.NoError(t, jobs.NewQueueNotifier(queue).JournalPosted(ctx, evt))
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, jobs.TaskJournalPosted, queue.tasks[0].Type())

	job := &jobs.JournalPostedJob{Redis: client}
	require.NoError(t, job.Handle(ctx, queue.tasks[0]))

	select {
	case msg := <-sub.Channel():
		var got journals.PostedEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, int64(42), got.JournalEntryID)
		assert.Equal(t, "7", got.SourceRef)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestTriggerTask(t *testing.T) {
	for _, typ := range []string{jobs.TaskRecurringTick, jobs.TaskGLIntegrity, jobs.TaskEventRetry} {
		task, err := jobs.TriggerTask(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, task.Type())
	}
	_, err := jobs.TriggerTask(jobs.TaskJournalPosted)
	require.ErrorIs(t, err, jobs.ErrUnknownTask)
}
