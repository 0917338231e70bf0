package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/recurring"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/vouchers"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
)

type apiFixture struct {
	ledger *Ledger
	server http.Handler
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	cfg := &Config{
		StorageDriver:      StorageMemory,
		RedisAddr:          redisSrv.Addr(),
		MappingCacheTTL:    time.Minute,
		RecurringLockTTL:   time.Minute,
		RateLimitPerMinute: 1000,
		BusinessTimezone:   "UTC",
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}
	require.NoError(t, cfg.Validate())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := BuildLedger(context.Background(), cfg, logger, BuildOptions{})
	require.NoError(t, err)
	t.Cleanup(ledger.Close)

	router := NewRouter(RouterParams{
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
		HealthChecks:     ledger.HealthChecks(),
	})
	return apiFixture{ledger: ledger, server: router}
}

func (f apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f apiFixture) accountID(t *testing.T, code string) int64 {
	t.Helper()
	a, err := f.ledger.Accounts.GetByCode(context.Background(), code)
	require.NoError(t, err)
	return a.ID
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["redis"])
}

func TestJournalAPIRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	cash, equity := f.accountID(t, "1000"), f.accountID(t, "3000")

	unbalanced := fmt.Sprintf(`{"date":"2024-05-01","post":true,"lines":[
		{"account_id":%d,"amount":"100","side":"dr"},
		{"account_id":%d,"amount":"90","side":"cr"}]}`, cash, equity)
	rec := f.do(t, http.MethodPost, "/api/journals/", unbalanced)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"total_debit":"100.00"`)

	balanced := strings.Replace(unbalanced, `"90"`, `"100"`, 1)
	rec = f.do(t, http.MethodPost, "/api/journals/", balanced)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/reports/trial-balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balanced":true`)
	assert.Contains(t, rec.Body.String(), `"total_debit":"100.00"`)

	rec = f.do(t, http.MethodGet, "/api/accounts/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/ledgers", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "odyssey_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/journals/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
