package vouchers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// RoleResolver maps an integration role such as "cash" to an account id.
type RoleResolver interface {
	Resolve(ctx context.Context, role string) (int64, error)
}

// Service manages voucher envelopes and hands their lines to the posting engine.
type Service struct {
	repo     Repository
	engine   *journals.Service
	resolver RoleResolver
	logger   *slog.Logger
}

// NewService wires the voucher subsystem. resolver may be nil, in which case
// every line must name its account.
func NewService(repo Repository, engine *journals.Service, resolver RoleResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, resolver: resolver, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (Voucher, error) {
	v, err := s.repo.Get(ctx, id)
	return v, shared.WrapStorage("get voucher", err)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	out, err := s.repo.List(ctx, filter)
	return out, shared.WrapStorage("list vouchers", err)
}

// Create stores a DRAFT voucher. Lines must be present and well formed but
// need not balance yet.
func (s *Service) Create(ctx context.Context, in CreateInput) (Voucher, error) {
	var created Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := s.CreateWithin(ctx, tx, in)
		if err != nil {
			return err
		}
		created = v
		return nil
	})
	if err != nil {
		return Voucher{}, shared.WrapStorage("create voucher", err)
	}
	return created, nil
}

// CreateWithin is Create inside a caller-owned transaction.
func (s *Service) CreateWithin(ctx context.Context, tx TxRepository, in CreateInput) (Voucher, error) {
	conv, ok := in.Type.Convention()
	if !ok {
		return Voucher{}, shared.ErrUnknownVoucherType
	}
	if in.Date.IsZero() {
		return Voucher{}, shared.ErrMissingDate
	}
	if len(in.Lines) == 0 {
		return Voucher{}, shared.ErrNoLines
	}
	lines, err := s.resolveLines(ctx, conv, in.Lines)
	if err != nil {
		return Voucher{}, err
	}
	seq, err := tx.NextVoucherSequence(ctx, in.Type)
	if err != nil {
		return Voucher{}, err
	}
	v, err := tx.InsertVoucher(ctx, Voucher{
		Number:              FormatNumber(in.Type, seq),
		Type:                in.Type,
		Date:                shared.TruncateDate(in.Date),
		CounterpartyRef:     strings.TrimSpace(in.CounterpartyRef),
		Narration:           strings.TrimSpace(in.Narration),
		Status:              StatusDraft,
		RecurringTemplateID: in.RecurringTemplateID,
		ScheduledFor:        in.ScheduledFor,
		Lines:               lines,
	})
	if err != nil {
		return Voucher{}, err
	}
	s.logger.Debug("voucher created", slog.Int64("voucher_id", v.ID), slog.String("number", v.Number))
	return v, nil
}

// ReplaceLines swaps the line set of a DRAFT voucher. An empty set is allowed
// while editing; posting rejects it.
func (s *Service) ReplaceLines(ctx context.Context, id int64, in []LineInput) (Voucher, error) {
	var updated Voucher
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if v.Status != StatusDraft {
			return shared.ErrInvalidStatus
		}
		conv, _ := v.Type.Convention()
		lines, err := s.resolveLines(ctx, conv, in)
		if err != nil {
			return err
		}
		v.Lines, err = tx.ReplaceVoucherLines(ctx, v.ID, lines)
		if err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		return Voucher{}, shared.WrapStorage("replace voucher lines", err)
	}
	return updated, nil
}

// Post is the only draft->posted path. A second call on the same voucher
// returns ErrAlreadyPosted and creates nothing.
func (s *Service) Post(ctx context.Context, id int64) (PostResult, error) {
	var result PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := s.PostWithin(ctx, tx, id)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return PostResult{}, shared.WrapStorage("post voucher", err)
	}
	s.Notify(ctx, result)
	return result, nil
}

// Notify forwards the posted entry of a committed PostWithin to the engine's notifier.
func (s *Service) Notify(ctx context.Context, result PostResult) {
	s.engine.Notify(ctx, result.JournalEntry)
}

// PostWithin is Post inside a caller-owned transaction.
func (s *Service) PostWithin(ctx context.Context, tx TxRepository, id int64) (PostResult, error) {
	v, err := tx.GetVoucherForUpdate(ctx, id)
	if err != nil {
		return PostResult{}, err
	}
	switch v.Status {
	case StatusPosted:
		return PostResult{}, shared.ErrAlreadyPosted
	case StatusVoid:
		return PostResult{}, shared.ErrInvalidStatus
	}
	if len(v.Lines) == 0 {
		return PostResult{}, shared.ErrNoLines
	}
	lines := toPostingLines(v.Lines)
	if err := journals.CheckBalance(lines); err != nil {
		return PostResult{}, err
	}
	voucherID := v.ID
	entry, err := s.engine.PostWithin(ctx, tx, journals.PostingInput{
		Header: journals.Header{
			Date:        v.Date,
			Description: describe(v),
			SourceType:  journals.SourceVoucher,
			SourceRef:   strconv.FormatInt(v.ID, 10),
			VoucherID:   &voucherID,
		},
		Lines: lines,
	})
	if err != nil {
		return PostResult{}, err
	}
	if err := tx.UpdateVoucherStatus(ctx, v.ID, StatusPosted, &entry.ID); err != nil {
		return PostResult{}, err
	}
	v.Status = StatusPosted
	v.JournalEntryID = &entry.ID
	return PostResult{Voucher: v, JournalEntry: entry}, nil
}

// Void marks the voucher VOID. The linked journal entry is left alone unless
// opts.Reverse is set, in which case it is reversed in the same transaction.
func (s *Service) Void(ctx context.Context, id int64, opts VoidOptions) (VoidResult, error) {
	var result VoidResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVoucherForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if v.Status == StatusVoid {
			return shared.ErrInvalidStatus
		}
		if opts.Reverse && v.Status == StatusPosted && v.JournalEntryID != nil {
			reason := "voucher " + v.Number + " voided"
			if opts.Reason != "" {
				reason += ": " + opts.Reason
			}
			voided, err := s.engine.VoidWithin(ctx, tx, journals.VoidInput{EntryID: *v.JournalEntryID, Reason: reason})
			if err != nil {
				return err
			}
			result.Reversal = voided.Reversal
		}
		if err := tx.UpdateVoucherStatus(ctx, v.ID, StatusVoid, nil); err != nil {
			return err
		}
		v.Status = StatusVoid
		result.Voucher = v
		return nil
	})
	if err != nil {
		return VoidResult{}, shared.WrapStorage("void voucher", err)
	}
	if result.Reversal != nil {
		s.engine.Notify(ctx, *result.Reversal)
	}
	return result, nil
}

func (s *Service) resolveLines(ctx context.Context, conv Convention, in []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(in))
	for idx, line := range in {
		if !line.Side.Valid() {
			return nil, fmt.Errorf("line %d: %w", idx, shared.ErrInvalidSide)
		}
		if !line.Amount.IsPositive() {
			return nil, fmt.Errorf("line %d: %w", idx, shared.ErrNonPositiveAmount)
		}
		if !line.Amount.InRange() {
			return nil, fmt.Errorf("line %d: %w", idx, shared.ErrAmountOutOfRange)
		}
		accountID := line.AccountID
		if accountID <= 0 {
			role := line.Role
			if role == "" {
				role = conv.DefaultRole(line.Side)
			}
			if role == "" || s.resolver == nil {
				return nil, fmt.Errorf("line %d: %w", idx, shared.ErrMissingAccount)
			}
			resolved, err := s.resolver.Resolve(ctx, role)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", idx, err)
			}
			accountID = resolved
		}
		lines = append(lines, Line{
			AccountID:   accountID,
			Amount:      line.Amount,
			Side:        line.Side,
			Description: strings.TrimSpace(line.Description),
		})
	}
	return lines, nil
}

func describe(v Voucher) string {
	if v.Narration != "" {
		return v.Narration
	}
	conv, _ := v.Type.Convention()
	return fmt.Sprintf("%s voucher %s", conv.Label, v.Number)
}
