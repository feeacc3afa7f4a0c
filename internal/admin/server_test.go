package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/chain/xrpl/rpc"
	"github.com/emperorhan/xrpl-insights/internal/circuitbreaker"
	"github.com/emperorhan/xrpl-insights/internal/domain/model"
	"github.com/emperorhan/xrpl-insights/internal/pipeline"
	"github.com/emperorhan/xrpl-insights/internal/pipeline/sampler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeSnapshots struct {
	snap   *pipeline.Snapshot
	health *pipeline.Health
	state  circuitbreaker.State
}

func (f *fakeSnapshots) Snapshot() *pipeline.Snapshot { return f.snap }

func (f *fakeSnapshots) Health() *pipeline.Health { return f.health }

func (f *fakeSnapshots) BreakerState() circuitbreaker.State { return f.state }

type fakeInspector struct {
	stateCalls   atomic.Int32
	historyCalls atomic.Int32
	lastLimit    atomic.Int32
	state        *model.AccountSnapshot
	history      *model.AccountHistory
	err          error
}

func (f *fakeInspector) AccountState(_ context.Context, address string) (*model.AccountSnapshot, error) {
	f.stateCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	s := *f.state
	s.Address = address
	return &s, nil
}

func (f *fakeInspector) AccountHistory(_ context.Context, address string, limit int) (*model.AccountHistory, error) {
	f.historyCalls.Add(1)
	f.lastLimit.Store(int32(limit))
	if f.err != nil {
		return nil, f.err
	}
	h := *f.history
	h.Address = address
	return &h, nil
}

type fakeReporter struct {
	calls       atomic.Int32
	unreachable atomic.Bool
}

func (f *fakeReporter) Report(context.Context) model.NetworkHealth {
	f.calls.Add(1)
	if f.unreachable.Load() {
		return model.NetworkHealth{
			Status: model.StatusHalf{Error: "server_info: all endpoints unavailable"},
			Fees:   model.FeeHalf{Error: "fee: all endpoints unavailable"},
		}
	}
	return model.NetworkHealth{
		Status:   model.StatusHalf{Info: &model.ServerStatus{ServerState: "full", ValidatedLedgerSeq: 90000000}},
		Fees:     model.FeeHalf{Error: "fee: all endpoints unavailable"},
		Endpoint: "https://s2.ripple.com:51234",
	}
}

// --- helpers ---

var generatedAt = time.Date(2024, 9, 18, 18, 45, 0, 0, time.UTC)

func testSnapshot() *pipeline.Snapshot {
	minute := time.Date(2024, 9, 18, 18, 40, 0, 0, time.UTC)
	return &pipeline.Snapshot{
		CycleID:        "4f6c1b7e-2a53-4d39-9b61-0a1b2c3d4e5f",
		Network:        "mainnet",
		GeneratedAt:    generatedAt,
		LatestSequence: 90000000,
		Records: []model.TransactionRecord{
			{Hash: "A", Account: "rAlice", FeeDrops: "10", Timestamp: minute, LedgerIndex: 90000000},
			{Hash: "B", Account: "rBob", FeeDrops: "20", Timestamp: minute, LedgerIndex: 90000000},
			{Hash: "C", Account: "rAlice", FeeDrops: "12", Timestamp: minute.Add(time.Minute), LedgerIndex: 89999999},
		},
		Counts: []model.MinuteCount{{Minute: minute, TxnCount: 2}, {Minute: minute.Add(time.Minute), TxnCount: 1}},
		AvgFees: []model.MinuteAvgFee{
			{Minute: minute, AvgFeeXRP: decimal.RequireFromString("0.000015")},
		},
		Prices:         []model.PricePoint{{Time: minute, Price: decimal.RequireFromString("0.5812")}},
		Endpoint:       "https://s1.ripple.com:51234",
		SkippedLedgers: []int64{89999998},
		Ledgers: []sampler.LedgerOutcome{
			{Index: 90000000, Fetched: true},
			{Index: 89999999, Fetched: true},
			{Index: 89999998},
		},
	}
}

type testEnv struct {
	snapshots *fakeSnapshots
	inspector *fakeInspector
	reporter  *fakeReporter
	handler   http.Handler
}

func newTestEnv(t *testing.T, snap *pipeline.Snapshot) *testEnv {
	t.Helper()
	env := &testEnv{
		snapshots: &fakeSnapshots{snap: snap, health: pipeline.NewHealth(model.NetworkMainnet, 2)},
		inspector: &fakeInspector{
			state:   &model.AccountSnapshot{Found: true, BalanceDrops: "25000000", Sequence: 7, Validated: true},
			history: &model.AccountHistory{Transactions: []model.AccountTxEnvelope{}},
		},
		reporter: &fakeReporter{},
	}
	srv := NewServer(env.snapshots, env.inspector, env.reporter, Options{TxTableRows: 2}, discardLogger())
	srv.nowFn = func() time.Time { return generatedAt.Add(30 * time.Second) }
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

// --- tests ---

func TestOverview(t *testing.T) {
	env := newTestEnv(t, testSnapshot())
	rec, body := env.get(t, "/api/v1/overview")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mainnet", body["network"])
	assert.Equal(t, float64(90000000), body["latest_sequence"])
	assert.Equal(t, float64(3), body["sample_size"])
	assert.Equal(t, float64(2), body["unique_accounts"])
	assert.Equal(t, "0.000014", body["mean_fee_xrp"])
	assert.Equal(t, "https://s1.ripple.com:51234", body["endpoint"])
	assert.Equal(t, []any{float64(89999998)}, body["skipped_ledgers"])
	assert.Equal(t, float64(2), body["ledgers_sampled"])
}

func TestSnapshotRoutes_BeforeFirstCycle(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{
		"/api/v1/overview",
		"/api/v1/transactions",
		"/api/v1/charts/throughput",
		"/api/v1/charts/fees",
		"/api/v1/prices",
	} {
		t.Run(path, func(t *testing.T) {
			rec, body := env.get(t, path)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Equal(t, "no snapshot published yet", body["error"])
		})
	}
}

func TestTransactions_Limit(t *testing.T) {
	env := newTestEnv(t, testSnapshot())

	rec, body := env.get(t, "/api/v1/transactions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["transactions"], 2, "default row count applies")

	_, body = env.get(t, "/api/v1/transactions?limit=10")
	txs := body["transactions"].([]any)
	require.Len(t, txs, 3)
	assert.Equal(t, "A", txs[0].(map[string]any)["hash"])

	for _, bad := range []string{"0", "-3", "ten"} {
		rec, body = env.get(t, "/api/v1/transactions?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, body["error"], "limit")
	}
}

func TestCharts(t *testing.T) {
	env := newTestEnv(t, testSnapshot())

	_, body := env.get(t, "/api/v1/charts/throughput")
	points := body["points"].([]any)
	require.Len(t, points, 2)
	assert.Equal(t, float64(2), points[0].(map[string]any)["txn_count"])
	assert.Equal(t, "2024-09-18T18:40:00Z", points[0].(map[string]any)["minute"])

	_, body = env.get(t, "/api/v1/charts/fees")
	points = body["points"].([]any)
	require.Len(t, points, 1)
	assert.Equal(t, "0.000015", points[0].(map[string]any)["avg_fee_xrp"])
}

func TestPrices_WithError(t *testing.T) {
	snap := testSnapshot()
	snap.PriceError = "market api status 404: not found"
	env := newTestEnv(t, snap)

	rec, body := env.get(t, "/api/v1/prices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["points"], 1)
	assert.Equal(t, "market api status 404: not found", body["error"])
}

func TestAccount_RejectsNonClassicAddress(t *testing.T) {
	env := newTestEnv(t, testSnapshot())
	for _, path := range []string{
		"/api/v1/accounts/XV5sbjUmgPpvXv4ixFWZ5ptAYZ6PD28Sq49uo34VyjnmK5H",
		"/api/v1/accounts/r",
		"/api/v1/accounts/XV5sbjUmgPpvXv4ixFWZ5ptAYZ6PD28Sq49uo34VyjnmK5H/transactions",
	} {
		rec, body := env.get(t, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, body["error"], "classic address")
	}
	assert.Zero(t, env.inspector.stateCalls.Load())
	assert.Zero(t, env.inspector.historyCalls.Load())
}

func TestAccount_CachedLookup(t *testing.T) {
	env := newTestEnv(t, testSnapshot())
	const path = "/api/v1/accounts/rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"

	rec, body := env.get(t, path)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", body["address"])
	assert.Equal(t, "25000000", body["balance_drops"])
	assert.Equal(t, true, body["found"])

	env.get(t, path)
	assert.Equal(t, int32(1), env.inspector.stateCalls.Load(), "second lookup served from cache")
}

func TestAccount_NotFound(t *testing.T) {
	env := newTestEnv(t, testSnapshot())
	env.inspector.state = &model.AccountSnapshot{Found: false, Message: "Account not found."}

	rec, body := env.get(t, "/api/v1/accounts/rUnfundedAccount1111111111111")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["found"])
	assert.Equal(t, "Account not found.", body["message"])
}

func TestAccount_TransportFailure(t *testing.T) {
	env := newTestEnv(t, testSnapshot())
	env.inspector.err = &rpc.AllEndpointsUnavailableError{Method: rpc.MethodAccountInfo}

	rec, body := env.get(t, "/api/v1/accounts/rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "ledger endpoints unavailable", body["error"])

	env.inspector.err = nil
	rec, _ = env.get(t, "/api/v1/accounts/rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh")
	assert.Equal(t, http.StatusOK, rec.Code, "failures are not cached")
	assert.Equal(t, int32(2), env.inspector.stateCalls.Load())
}

func TestAccountTransactions_LimitClampedAndCachedPerLimit(t *testing.T) {
	env := newTestEnv(t, testSnapshot())
	const base = "/api/v1/accounts/rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh/transactions"

	rec, body := env.get(t, base)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", body["address"])
	assert.Equal(t, int32(20), env.inspector.lastLimit.Load())

	env.get(t, base+"?limit=5000")
	assert.Equal(t, int32(200), env.inspector.lastLimit.Load())

	env.get(t, base+"?limit=200")
	assert.Equal(t, int32(2), env.inspector.historyCalls.Load(), "clamped limit shares the cache entry")

	rec, _ = env.get(t, base+"?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNetwork_CachedReport(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, body := env.get(t, "/api/v1/network")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://s2.ripple.com:51234", body["endpoint"])
	fees := body["fee_schedule"].(map[string]any)
	assert.Equal(t, "fee: all endpoints unavailable", fees["error"])
	status := body["status_info"].(map[string]any)
	assert.Equal(t, "full", status["info"].(map[string]any)["server_state"])

	env.get(t, "/api/v1/network")
	assert.Equal(t, int32(1), env.reporter.calls.Load())
}

func TestNetwork_UnreachableReportNotCached(t *testing.T) {
	env := newTestEnv(t, nil)
	env.reporter.unreachable.Store(true)

	rec, body := env.get(t, "/api/v1/network")
	require.Equal(t, http.StatusOK, rec.Code)
	status := body["status_info"].(map[string]any)
	assert.Equal(t, "server_info: all endpoints unavailable", status["error"])

	env.reporter.unreachable.Store(false)
	rec, body = env.get(t, "/api/v1/network")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://s2.ripple.com:51234", body["endpoint"])
	assert.Equal(t, int32(2), env.reporter.calls.Load())

	env.get(t, "/api/v1/network")
	assert.Equal(t, int32(2), env.reporter.calls.Load(), "healthy report is cached")
}

func TestAccount_AddressTrimmed(t *testing.T) {
	env := newTestEnv(t, testSnapshot())

	rec, body := env.get(t, "/api/v1/accounts/%20rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh%20")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh", body["address"])

	env.get(t, "/api/v1/accounts/rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh")
	assert.Equal(t, int32(1), env.inspector.stateCalls.Load(), "trimmed and plain forms share a cache entry")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testSnapshot())

	rec, body := env.get(t, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "closed", body["breaker"])
	assert.Equal(t, float64(30), body["snapshot_age_sec"])
	assert.Equal(t, "UNKNOWN", body["refresh"].(map[string]any)["status"])

	env.snapshots.health.RecordFailure(errors.New("x"))
	env.snapshots.health.RecordFailure(errors.New("x"))
	env.snapshots.state = circuitbreaker.StateOpen
	rec, body = env.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "open", body["breaker"])
}

func TestHealth_NoSnapshotOmitsAge(t *testing.T) {
	env := newTestEnv(t, nil)
	_, body := env.get(t, "/api/v1/health")
	_, ok := body["snapshot_age_sec"]
	assert.False(t, ok)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, testSnapshot())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/overview", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
