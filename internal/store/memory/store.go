// Package memory is a process-local implementation of every ledger
// repository. Transactions are serialized and run against a private copy of
// the committed state, which replaces the committed state only when the
// callback returns nil.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
)

type sequences struct {
	account, ledger, journal, journalNumber, journalLine int64
	voucher, voucherLine, template, runLog, event        int64
}

type state struct {
	seq        sequences
	accounts   map[int64]accounts.Account
	ledger     []accounts.LedgerEntry
	journals   map[int64]journals.JournalEntry
	vouchers   map[int64]vouchers.Voucher
	voucherSeq map[vouchers.Type]int64
	templates  map[int64]recurring.Template
	runLog     []recurring.LogEntry
	mappings   map[string]mappings.AccountMapping
	events     map[int64]integration.Event
}

func newState() *state {
	return &state{
		accounts:   make(map[int64]accounts.Account),
		journals:   make(map[int64]journals.JournalEntry),
		vouchers:   make(map[int64]vouchers.Voucher),
		voucherSeq: make(map[vouchers.Type]int64),
		templates:  make(map[int64]recurring.Template),
		mappings:   make(map[string]mappings.AccountMapping),
		events:     make(map[int64]integration.Event),
	}
}

// clone copies the containers. Stored values are never mutated in place, so
// sharing their line slices is safe.
func (s *state) clone() *state {
	return &state{
		seq:        s.seq,
		accounts:   maps.Clone(s.accounts),
		ledger:     slices.Clone(s.ledger),
		journals:   maps.Clone(s.journals),
		vouchers:   maps.Clone(s.vouchers),
		voucherSeq: maps.Clone(s.voucherSeq),
		templates:  maps.Clone(s.templates),
		runLog:     slices.Clone(s.runLog),
		mappings:   maps.Clone(s.mappings),
		events:     maps.Clone(s.events),
	}
}

// Store holds the committed state.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
	now  func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// read runs fn against the committed state.
func (s *Store) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// update runs fn as one transaction.
func (s *Store) update(ctx context.Context, fn func(tx *memTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.st.clone()
	s.mu.RUnlock()

	if err := fn(&memTx{st: working, now: s.now}); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = working
	s.mu.Unlock()
	return nil
}

// memTx implements the transactional repository of every package.
type memTx struct {
	st  *state
	now func() time.Time
}

var (
	_ accounts.TxRepository  = (*memTx)(nil)
	_ journals.TxRepository  = (*memTx)(nil)
	_ vouchers.TxRepository  = (*memTx)(nil)
	_ recurring.TxRepository = (*memTx)(nil)
)

// Accounts returns the ledger store repository.
func (s *Store) Accounts() accounts.Repository { return accountRepo{s} }

// Journals returns the posting engine repository.
func (s *Store) Journals() journals.Repository { return journalRepo{s} }

// Vouchers returns the voucher repository.
func (s *Store) Vouchers() vouchers.Repository { return voucherRepo{s} }

// Recurring returns the template repository.
func (s *Store) Recurring() recurring.Repository { return recurringRepo{s} }

// Mappings returns the account mapping repository.
func (s *Store) Mappings() mappings.Repository { return mappingRepo{s} }

// Events returns the external event inbox.
func (s *Store) Events() integration.Repository { return eventRepo{s} }
