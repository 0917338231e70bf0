package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Ledger exposes the posting operations integrations need.
type Ledger interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
	List(ctx context.Context, filter journals.ListFilter) ([]journals.JournalEntry, error)
}

// sourceNamespace seeds deterministic source refs for events without an external id.
var sourceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("odyssey-ledger/external-events"))

// Service ingests external events and posts their translations.
type Service struct {
	repo     Repository
	ledger   Ledger
	resolver RoleResolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, ledger Ledger, resolver RoleResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, resolver: resolver, logger: logger, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id int64) (Event, error) {
	evt, err := s.repo.Get(ctx, id)
	return evt, shared.WrapStorage("get external event", err)
}

func (s *Service) List(ctx context.Context, status Status, limit int) ([]Event, error) {
	out, err := s.repo.ListByStatus(ctx, status, limit)
	return out, shared.WrapStorage("list external events", err)
}

// SourceRef derives the idempotency key of an event.
func SourceRef(t EventType, externalID string, payload json.RawMessage) string {
	if id := strings.TrimSpace(externalID); id != "" {
		return string(t) + ":" + id
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		compact.Reset()
		compact.Write(payload)
	}
	return string(t) + ":" + uuid.NewSHA1(sourceNamespace, append([]byte(string(t)+":"), compact.Bytes()...)).String()
}

// Ingest records the event and posts it. An event that already posted is
// returned as-is. Translation or posting failures mark the event FAILED and
// are returned.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (Event, error) {
	if !in.Type.Valid() {
		return Event{}, shared.ErrUnknownEventType
	}
	if len(bytes.TrimSpace(in.Payload)) == 0 {
		return Event{}, shared.Invalid("payload", "payload required")
	}
	if !json.Valid(in.Payload) {
		return Event{}, shared.Invalid("payload", "payload is not valid JSON")
	}
	evt, created, err := s.repo.Record(ctx, Event{
		Type:      in.Type,
		SourceRef: SourceRef(in.Type, in.ExternalID, in.Payload),
		Payload:   in.Payload,
	})
	if err != nil {
		return Event{}, shared.WrapStorage("record external event", err)
	}
	if !created && evt.Status == StatusProcessed {
		s.logger.Debug("external event already processed", slog.String("source_ref", evt.SourceRef))
		return evt, nil
	}
	return s.process(ctx, evt)
}

// RetryFailed reprocesses up to limit FAILED events, oldest first.
func (s *Service) RetryFailed(ctx context.Context, limit int) (RetrySummary, error) {
	failed, err := s.repo.ListByStatus(ctx, StatusFailed, limit)
	if err != nil {
		return RetrySummary{}, shared.WrapStorage("list failed events", err)
	}
	var summary RetrySummary
	for _, evt := range failed {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Attempted++
		if _, err := s.process(ctx, evt); err != nil {
			summary.Failed++
			if !shared.IsDomain(err) || errors.Is(err, shared.ErrStorage) {
				s.logger.Error("external event retry failed", slog.Int64("event_id", evt.ID), slog.Any("error", err))
			}
			continue
		}
		summary.Processed++
	}
	if summary.Attempted > 0 {
		s.logger.Info("external event retry complete",
			slog.Int("attempted", summary.Attempted),
			slog.Int("processed", summary.Processed),
			slog.Int("failed", summary.Failed),
		)
	}
	return summary, nil
}

func (s *Service) process(ctx context.Context, evt Event) (Event, error) {
	entryID, err := s.post(ctx, evt)
	at := s.now().UTC()
	evt.Attempts++
	if err != nil {
		evt.Status = StatusFailed
		evt.Error = err.Error()
		evt.ProcessedAt = &at
		if markErr := s.repo.MarkFailed(ctx, evt.ID, evt.Error, at); markErr != nil {
			s.logger.Error("mark external event failed", slog.Int64("event_id", evt.ID), slog.Any("error", markErr))
		}
		s.logger.Warn("external event rejected",
			slog.Int64("event_id", evt.ID),
			slog.String("event_type", string(evt.Type)),
			slog.Any("error", err),
		)
		return evt, err
	}
	if err := s.repo.MarkProcessed(ctx, evt.ID, entryID, at); err != nil {
		return evt, shared.WrapStorage("mark external event processed", err)
	}
	evt.Status = StatusProcessed
	evt.Error = ""
	evt.JournalEntryID = &entryID
	evt.ProcessedAt = &at
	return evt, nil
}

func (s *Service) post(ctx context.Context, evt Event) (int64, error) {
	tr, err := Translate(ctx, s.resolver, evt)
	if err != nil {
		return 0, err
	}
	entry, err := s.ledger.Post(ctx, journals.PostingInput{
		Header: journals.Header{
			Date:        tr.Date,
			Description: tr.Description,
			SourceType:  journals.SourceExternalEvent,
			SourceRef:   evt.SourceRef,
		},
		Lines: tr.Lines,
	})
	if errors.Is(err, shared.ErrSourceAlreadyLinked) {
		return s.linkedEntry(ctx, evt.SourceRef)
	}
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func (s *Service) linkedEntry(ctx context.Context, sourceRef string) (int64, error) {
	entries, err := s.ledger.List(ctx, journals.ListFilter{SourceType: journals.SourceExternalEvent, SourceRef: sourceRef, Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("integration: journal for %s: %w", sourceRef, shared.ErrJournalNotFound)
	}
	return entries[0].ID, nil
}
