package accounts

import "github.com/odyssey-erp/odyssey-ledger/internal/money"

// Replay sums debit - credit over entries in creation order. It returns the
// resulting balance and the id of the first entry whose stored running balance
// does not match the replay (zero when every snapshot matches). An entry that
// would push the sum out of the money range counts as broken and is skipped.
func Replay(entries []LedgerEntry) (money.Amount, int64) {
	var (
		balance  money.Amount
		brokenAt int64
	)
	for _, entry := range entries {
		next, err := balance.Add(entry.Delta())
		if err != nil {
			if brokenAt == 0 {
				brokenAt = entry.ID
			}
			continue
		}
		balance = next
		if brokenAt == 0 && entry.RunningBalance != balance {
			brokenAt = entry.ID
		}
	}
	return balance, brokenAt
}
