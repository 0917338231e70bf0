package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

const usage = `usage: odyssey <command> [flags]

commands:
  serve                          run the HTTP API (default)
  recurring run [--as-of DATE] [--json]
  ledger verify [--json]
  ledger tb [--json]
  jobs trigger <task>
  jobs stats
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	os.Exit(run(ctx, cfg, logger, args))
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	switch {
	case args[0] == "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			return cli.ExitError
		}
		return cli.ExitOK
	case len(args) >= 2 && args[0] == "recurring" && args[1] == "run":
		fs := flag.NewFlagSet("recurring run", flag.ContinueOnError)
		asOf := fs.String("as-of", "", "tick date YYYY-MM-DD (default: today in BUSINESS_TIMEZONE)")
		asJSON := fs.Bool("json", false, "print the run summary as JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return cli.ExitUsage
		}
		return withLedger(ctx, cfg, logger, func(l *cli.LedgerCLI) int {
			return l.RecurringRunCommand(ctx, cli.RecurringRunOptions{AsOf: *asOf, JSONOutput: *asJSON})
		})
	case len(args) >= 2 && args[0] == "ledger" && (args[1] == "verify" || args[1] == "tb"):
		fs := flag.NewFlagSet("ledger "+args[1], flag.ContinueOnError)
		asJSON := fs.Bool("json", false, "print the result as JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return cli.ExitUsage
		}
		return withLedger(ctx, cfg, logger, func(l *cli.LedgerCLI) int {
			if args[1] == "tb" {
				return l.TrialBalanceCommand(ctx, cli.VerifyOptions{JSONOutput: *asJSON})
			}
			return l.VerifyCommand(ctx, cli.VerifyOptions{JSONOutput: *asJSON})
		})
	case len(args) >= 3 && args[0] == "jobs" && args[1] == "trigger":
		jc := cli.NewJobsCLI(cfg.RedisAddr)
		defer jc.Close()
		return jc.TriggerCommand(ctx, args[2], os.Stdout, os.Stderr)
	case len(args) >= 2 && args[0] == "jobs" && args[1] == "stats":
		jc := cli.NewJobsCLI(cfg.RedisAddr)
		defer jc.Close()
		stats, err := jc.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return cli.ExitError
		}
		for _, s := range stats {
			fmt.Printf("%-9s pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
		}
		return cli.ExitOK
	default:
		fmt.Fprint(os.Stderr, usage)
		return cli.ExitUsage
	}
}

func withLedger(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(*cli.LedgerCLI) int) int {
	ledger, err := app.BuildLedger(ctx, cfg, logger, app.BuildOptions{})
	if err != nil {
		logger.Error("build ledger", slog.Any("error", err))
		return cli.ExitError
	}
	defer ledger.Close()
	return fn(cli.NewLedgerCLI(cli.LedgerServices{
		Recurring: ledger.Recurring,
		Accounts:  ledger.Accounts,
		Reports:   ledger.Reports,
	}, cfg.Today))
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	ledger, err := app.BuildLedger(ctx, cfg, logger, app.BuildOptions{
		Notifier: jobs.NewQueueNotifier(jobClient.Queue()),
	})
	if err != nil {
		return err
	}
	defer ledger.Close()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          observability.NewMetrics(),
		AccountsHandler:  accounts.NewHandler(logger, ledger.Accounts),
		JournalsHandler:  journals.NewHandler(logger, ledger.Journals),
		VouchersHandler:  vouchers.NewHandler(logger, ledger.Vouchers),
		RecurringHandler: recurring.NewHandler(logger, ledger.Recurring, cfg.Today),
		MappingsHandler:  mappings.NewHandler(logger, ledger.Mappings, ledger.Resolver),
		EventsHandler:    integration.NewHandler(logger, ledger.Events),
		ReportsHandler:   reports.NewHandler(logger, ledger.Reports),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		HealthChecks:     ledger.HealthChecks(),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
