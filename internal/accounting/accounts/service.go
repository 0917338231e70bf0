package accounts

import (
	"context"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Service is the account ledger store: reads, standalone appends and replay checks.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	accounts, err := s.repo.List(ctx)
	return accounts, shared.WrapStorage("list accounts", err)
}

// GetAccount returns the account or ErrAccountNotFound.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	account, err := s.repo.Get(ctx, id)
	return account, shared.WrapStorage("get account", err)
}

// GetByCode looks an account up by its chart code.
func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	account, err := s.repo.GetByCode(ctx, strings.TrimSpace(code))
	return account, shared.WrapStorage("get account by code", err)
}

// Ledger lists the account's ledger entries in creation order.
func (s *Service) Ledger(ctx context.Context, accountID int64) ([]LedgerEntry, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListLedgerEntries(ctx, accountID)
	return entries, shared.WrapStorage("list ledger entries", err)
}

// Create seeds an account.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" {
		return Account{}, shared.Invalid("code", "account code required")
	}
	if in.Name == "" {
		return Account{}, shared.Invalid("name", "account name required")
	}
	if !in.Type.Valid() {
		return Account{}, shared.Invalid("type", "unknown account type %q", in.Type)
	}
	account, err := s.repo.Create(ctx, in)
	return account, shared.WrapStorage("create account", err)
}

// AppendLedgerEntry applies a single movement in its own unit of work. Postings
// use TxRepository.AppendLedgerEntry inside the journal transaction instead.
func (s *Service) AppendLedgerEntry(ctx context.Context, in AppendInput) (LedgerEntry, error) {
	if in.Debit < 0 || in.Credit < 0 {
		return LedgerEntry{}, shared.ErrNonPositiveAmount
	}
	if !in.Debit.InRange() || !in.Credit.InRange() {
		return LedgerEntry{}, shared.ErrAmountOutOfRange
	}
	if in.EntryDate.IsZero() {
		return LedgerEntry{}, shared.ErrMissingDate
	}
	var entry LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockAccounts(ctx, []int64{in.AccountID}); err != nil {
			return err
		}
		appended, err := tx.AppendLedgerEntry(ctx, in)
		if err != nil {
			return err
		}
		entry = appended
		return nil
	})
	if err != nil {
		return LedgerEntry{}, shared.WrapStorage("append ledger entry", err)
	}
	return entry, nil
}

// Verify replays one account's ledger against its cached balance.
func (s *Service) Verify(ctx context.Context, accountID int64) (Verification, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return Verification{}, err
	}
	return s.verify(ctx, account)
}

// VerifyAll replays every account. Accounts that fail verification are logged.
func (s *Service) VerifyAll(ctx context.Context) ([]Verification, error) {
	accounts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]Verification, 0, len(accounts))
	for _, account := range accounts {
		v, err := s.verify(ctx, account)
		if err != nil {
			return nil, err
		}
		if !v.OK() {
			s.logger.Warn("ledger replay mismatch",
				slog.Int64("account_id", v.AccountID),
				slog.String("code", v.Code),
				slog.String("cached", v.Cached.String()),
				slog.String("replayed", v.Replayed.String()),
				slog.Int64("broken_at", v.BrokenAt),
			)
		}
		results = append(results, v)
	}
	return results, nil
}

func (s *Service) verify(ctx context.Context, account Account) (Verification, error) {
	entries, err := s.repo.ListLedgerEntries(ctx, account.ID)
	if err != nil {
		return Verification{}, shared.WrapStorage("list ledger entries", err)
	}
	replayed, brokenAt := Replay(entries)
	return Verification{
		AccountID: account.ID,
		Code:      account.Code,
		Cached:    account.Balance,
		Replayed:  replayed,
		Entries:   len(entries),
		BrokenAt:  brokenAt,
	}, nil
}
