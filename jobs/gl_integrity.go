package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// ErrIntegrityMismatch reports accounts whose cached balance or running
// balance snapshots disagree with a ledger replay.
var ErrIntegrityMismatch = errors.New("gl integrity: ledger replay mismatch")

// LedgerVerifier replays account ledgers.
type LedgerVerifier interface {
	VerifyAll(ctx context.Context) ([]accounts.Verification, error)
}

// GLIntegrityJob compares every account's cached balance with its ledger.
type GLIntegrityJob struct {
	Verifier LedgerVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle runs the check. Mismatches are not retried: replaying again cannot
// fix them and the alert fires from the gauge.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Verifier == nil {
		return errors.New("gl integrity: handler not configured")
	}
	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := logOrDefault(j.Logger).With(slog.String("job", TaskGLIntegrity))
	mismatched, err := CheckLedger(ctx, j.Verifier, logger)
	if err != nil {
		return err
	}
	j.Metrics.SetIntegrityMismatches(len(mismatched))
	if len(mismatched) > 0 {
		return fmt.Errorf("%w: %d accounts: %w", ErrIntegrityMismatch, len(mismatched), asynq.SkipRetry)
	}
	return nil
}

// CheckLedger runs VerifyAll and logs each failing account. It returns the
// failing verifications.
func CheckLedger(ctx context.Context, verifier LedgerVerifier, logger *slog.Logger) ([]accounts.Verification, error) {
	results, err := verifier.VerifyAll(ctx)
	if err != nil {
		logger.Error("ledger replay failed", slog.Any("error", err))
		return nil, err
	}
	var mismatched []accounts.Verification
	for _, v := range results {
		if v.OK() {
			continue
		}
		mismatched = append(mismatched, v)
		logger.Error("ledger integrity mismatch",
			slog.Int64("account_id", v.AccountID),
			slog.String("code", v.Code),
			slog.String("cached", v.Cached.String()),
			slog.String("replayed", v.Replayed.String()),
			slog.Int64("broken_at", v.BrokenAt),
		)
	}
	logger.Info("ledger integrity checked", slog.Int("accounts", len(results)), slog.Int("mismatched", len(mismatched)))
	return mismatched, nil
}
