package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mfehr/questfolio/internal/app"
	"github.com/mfehr/questfolio/internal/clients/boc"
	"github.com/mfehr/questfolio/internal/clients/questrade"
	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/pnl"
)

// fakeActivity is one canned activity record served by the fake brokerage API.
type fakeActivity struct {
	Type      string
	Action    string
	Symbol    string
	Currency  string
	Quantity  float64
	Price     float64
	NetAmount float64
	TradeDate string // YYYY-MM-DD
}

// testFixture is a single-position account: deposit 1000 CAD, buy 10 ABC.TO
// at 60, last close 62.50. Ledger equity ends at 1025 and the broker snapshot
// agrees.
var testFixture = []fakeActivity{
	{Type: "Deposits", Action: "DEP", Currency: "CAD", NetAmount: 1000, TradeDate: "2025-01-02"},
	{Type: "Trades", Action: "Buy", Symbol: "ABC.TO", Currency: "CAD", Quantity: 10, Price: 60, NetAmount: -600, TradeDate: "2025-01-03"},
}

// newFakeQuestrade serves just enough of the brokerage API for the handlers:
// symbol search, daily candles, windowed activities, and balances. Every
// account gets the same fixture.
func newFakeQuestrade(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}

		switch {
		case r.URL.Path == "/v1/symbols/search":
			fmt.Fprint(w, `{"symbols":[{"symbol":"ABC.TO","symbolId":101,"currency":"CAD"}]}`)

		case strings.HasPrefix(r.URL.Path, "/v1/markets/candles/"):
			fmt.Fprint(w, `{"candles":[
				{"end":"2025-01-03T16:00:00-05:00","open":60,"high":60,"low":60,"close":60,"volume":1000},
				{"end":"2025-01-15T16:00:00-05:00","open":62,"high":63,"low":62,"close":62.5,"volume":1200}
			]}`)

		case strings.HasSuffix(r.URL.Path, "/activities"):
			start, err := time.Parse("2006-01-02T15:04:05-07:00", r.URL.Query().Get("startTime"))
			if err != nil {
				http.Error(w, "bad startTime", http.StatusBadRequest)
				return
			}
			end, err := time.Parse("2006-01-02T15:04:05-07:00", r.URL.Query().Get("endTime"))
			if err != nil {
				http.Error(w, "bad endTime", http.StatusBadRequest)
				return
			}

			var out []map[string]interface{}
			for _, a := range testFixture {
				d, _ := time.Parse("2006-01-02", a.TradeDate)
				if d.Before(start) || !d.Before(end) {
					continue
				}
				out = append(out, map[string]interface{}{
					"type": a.Type, "action": a.Action, "symbol": a.Symbol,
					"currency": a.Currency, "quantity": a.Quantity, "price": a.Price,
					"netAmount": a.NetAmount, "tradeDate": a.TradeDate,
					"transactionDate": a.TradeDate,
				})
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"activities": out})

		case strings.HasSuffix(r.URL.Path, "/balances"):
			fmt.Fprint(w, `{"combinedBalances":[{"currency":"CAD","cash":400,"marketValue":625,"totalEquity":1025}]}`)

		default:
			http.NotFound(w, r)
		}
	}))
}

// newFakeValet serves one USD/CAD observation.
func newFakeValet(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/observations/FXUSDCAD/json") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"observations":[{"d":"2025-01-03","FXUSDCAD":{"v":"1.35"}}]}`)
	}))
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	qtAPI := newFakeQuestrade(t)
	t.Cleanup(qtAPI.Close)
	valet := newFakeValet(t)
	t.Cleanup(valet.Close)

	logger := common.NewSilentLogger()
	qt := questrade.NewClient(questrade.StaticToken("test-token"),
		questrade.WithBaseURL(qtAPI.URL),
		questrade.WithRateLimit(1000),
		questrade.WithLogger(logger),
	)
	bocClient := boc.NewClient(
		boc.WithBaseURL(valet.URL),
		boc.WithRateLimit(1000),
		boc.WithLogger(logger),
	)

	a := &app.App{
		Config:          common.NewDefaultConfig(),
		Logger:          logger,
		QuestradeClient: qt,
		BOCClient:       bocClient,
		PnlService:      pnl.NewService(qt, bocClient, nil, "CAD", logger),
		StartupTime:     time.Now(),
	}
	return NewServer(a).Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHandleHealth(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
	if body["version"] == "" {
		t.Error("version field is empty")
	}
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodPost, "/api/health")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != http.MethodGet {
		t.Errorf("Allow = %q, want GET", allow)
	}
}

func TestHandleVersion(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/version")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestHandleAccountPnl(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/accounts/26598145/pnl?from=2025-01-01")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var result models.SeriesResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.AccountID != "26598145" {
		t.Errorf("AccountID = %q", result.AccountID)
	}
	if len(result.Points) < 2 {
		t.Fatalf("got %d points, want a daily series", len(result.Points))
	}
	if result.Points[0].TotalPnl != 0 {
		t.Errorf("first TotalPnl = %.4f, want exactly 0", result.Points[0].TotalPnl)
	}
	for _, p := range result.Points {
		if math.Abs(p.TotalPnl-(p.Equity-p.NetDeposits)) > 1e-9 {
			t.Fatalf("identity violated on %s: pnl=%.4f equity=%.4f deposits=%.4f",
				p.Date.Format("2006-01-02"), p.TotalPnl, p.Equity, p.NetDeposits)
		}
	}

	last := result.Points[len(result.Points)-1]
	if math.Abs(last.Equity-1025) > 1e-6 || math.Abs(last.TotalPnl-25) > 1e-6 {
		t.Errorf("last point = equity %.2f pnl %.2f, want 1025 / 25", last.Equity, last.TotalPnl)
	}
	if !result.Summary.Reconciled {
		t.Errorf("summary not reconciled: %+v", result.Summary)
	}
	if math.Abs(result.Summary.BrokerEquity-1025) > 1e-6 {
		t.Errorf("BrokerEquity = %.2f, want 1025", result.Summary.BrokerEquity)
	}
}

func TestHandleAccountPnl_WeeklyInterval(t *testing.T) {
	handler := newTestHandler(t)

	daily := doRequest(t, handler, http.MethodGet, "/api/accounts/26598145/pnl?from=2025-01-01")
	weekly := doRequest(t, handler, http.MethodGet, "/api/accounts/26598145/pnl?from=2025-01-01&interval=weekly")

	var dailyResult, weeklyResult models.SeriesResult
	if err := json.Unmarshal(daily.Body.Bytes(), &dailyResult); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(weekly.Body.Bytes(), &weeklyResult); err != nil {
		t.Fatal(err)
	}

	if len(weeklyResult.Points) >= len(dailyResult.Points) {
		t.Errorf("weekly points = %d, daily = %d, want fewer", len(weeklyResult.Points), len(dailyResult.Points))
	}

	dailyLast := dailyResult.Points[len(dailyResult.Points)-1]
	weeklyLast := weeklyResult.Points[len(weeklyResult.Points)-1]
	if !dailyLast.Date.Equal(weeklyLast.Date) || dailyLast.TotalPnl != weeklyLast.TotalPnl {
		t.Errorf("weekly series dropped the terminal point: %+v vs %+v", weeklyLast, dailyLast)
	}
}

func TestHandleAccountPnlChart(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/accounts/26598145/pnl/chart?from=2025-01-01")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("response body is not a PNG")
	}
}

func TestHandleAccountDeposits(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/accounts/26598145/deposits?from=2025-01-01")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var summary models.FundingSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if math.Abs(summary.NetDeposits-1000) > 1e-6 {
		t.Errorf("NetDeposits = %.2f, want 1000", summary.NetDeposits)
	}
	if math.Abs(summary.TotalEquity-1025) > 1e-6 {
		t.Errorf("TotalEquity = %.2f, want snapshot 1025", summary.TotalEquity)
	}
	if math.Abs(summary.TotalPnl-25) > 1e-6 {
		t.Errorf("TotalPnl = %.2f, want 25", summary.TotalPnl)
	}
	if summary.CashFlowCount != 2 {
		t.Errorf("CashFlowCount = %d, want deposit plus terminal flow", summary.CashFlowCount)
	}
}

func TestHandleAccountPnlSymbols(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/accounts/26598145/pnl/symbols?from=2025-01-01")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var breakdown models.SymbolBreakdown
	if err := json.Unmarshal(rr.Body.Bytes(), &breakdown); err != nil {
		t.Fatal(err)
	}
	if len(breakdown.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(breakdown.Entries))
	}
	entry := breakdown.Entries[0]
	if entry.Symbol != "ABC.TO" {
		t.Errorf("symbol = %q, want ABC.TO", entry.Symbol)
	}
	if math.Abs(entry.Invested-600) > 1e-6 || math.Abs(entry.MarketValue-625) > 1e-6 {
		t.Errorf("invested/market = %.2f/%.2f, want 600/625", entry.Invested, entry.MarketValue)
	}
	if math.Abs(entry.TotalPnl-25) > 1e-6 {
		t.Errorf("TotalPnl = %.2f, want 25", entry.TotalPnl)
	}
}

func TestHandleGroupPnl(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/accounts/group/pnl?ids=26598145,26598146&from=2025-01-01")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var result models.GroupSeriesResult
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if len(result.AccountIDs) != 2 {
		t.Errorf("AccountIDs = %v, want both", result.AccountIDs)
	}
	if len(result.Points) == 0 {
		t.Fatal("no points in group series")
	}
	last := result.Points[len(result.Points)-1]
	if math.Abs(last.Equity-2050) > 1e-6 || math.Abs(last.TotalPnl-50) > 1e-6 {
		t.Errorf("last group point = equity %.2f pnl %.2f, want 2050 / 50", last.Equity, last.TotalPnl)
	}
}

func TestHandleGroupPnl_RequiresIds(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/accounts/group/pnl")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestRouteAccounts_UnknownSubroute(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodGet, "/api/accounts/26598145/positions")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestCorrelationID(t *testing.T) {
	handler := newTestHandler(t)

	// Supplied ID is echoed back.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "abc123" {
		t.Errorf("X-Correlation-ID = %q, want abc123", got)
	}

	// Absent ID gets generated.
	rr = doRequest(t, handler, http.MethodGet, "/api/health")
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("no correlation ID generated")
	}
}

func TestCORSPreflight(t *testing.T) {
	rr := doRequest(t, newTestHandler(t), http.MethodOptions, "/api/health")
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}

func TestHandleShutdown_DisabledInProduction(t *testing.T) {
	a := &app.App{
		Config:      common.NewDefaultConfig(),
		Logger:      common.NewSilentLogger(),
		StartupTime: time.Now(),
	}
	a.Config.Environment = "production"

	rr := doRequest(t, NewServer(a).Handler(), http.MethodPost, "/api/shutdown")
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}
