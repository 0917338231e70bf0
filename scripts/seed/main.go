package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

// seed loads the default chart of accounts and pins every conventional role
// to its default account as an explicit mapping row. Running it twice is a
// no-op.
func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StorageDriver != app.StoragePostgres {
		log.Fatalf("seed: STORAGE_DRIVER=%s, nothing to persist", cfg.StorageDriver)
	}
	logger := app.NewLogger(cfg)

	ledger, err := app.BuildLedger(ctx, cfg, logger, app.BuildOptions{})
	if err != nil {
		log.Fatalf("build ledger: %v", err)
	}
	defer ledger.Close()

	fmt.Println("→ Seeding chart of accounts...")
	chart, err := ledger.Accounts.EnsureChart(ctx, accounts.DefaultChart)
	if err != nil {
		log.Fatalf("seed chart: %v", err)
	}
	fmt.Printf("  %d accounts present\n", len(chart))

	fmt.Println("→ Seeding account mappings...")
	roles := make([]string, 0, len(mappings.DefaultCodes))
	for role := range mappings.DefaultCodes {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		account, ok := chart[mappings.DefaultCodes[role]]
		if !ok {
			fmt.Printf("  skip %s: account %s not in chart\n", role, mappings.DefaultCodes[role])
			continue
		}
		if _, err := ledger.Mappings.Upsert(ctx, role, account.ID); err != nil {
			log.Fatalf("seed mapping %s: %v", role, err)
		}
		fmt.Printf("  %-32s → %s %s\n", role, account.Code, account.Name)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
