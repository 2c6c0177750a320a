// Package questrade provides a client for the Questrade REST API
package questrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
// Questrade emits numeric activity fields as strings on some record types.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://api01.iq.questrade.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	// activityChunkDays is the widest window one activities request accepts.
	activityChunkDays = 30
)

// TokenSource supplies the current access token. Token acquisition and
// refresh live outside this client; the source is consulted per request so a
// rotated token takes effect immediately.
type TokenSource func() (string, error)

// StaticToken wraps a fixed token as a TokenSource.
func StaticToken(token string) TokenSource {
	return func() (string, error) { return token, nil }
}

// Client implements PriceHistoryClient and ActivityFetcher against the
// Questrade API.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter

	mu        sync.Mutex
	symbolIDs map[string]int // symbol -> Questrade symbolId
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Questrade client
func NewClient(token TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:    common.NewSilentLogger(),
		symbolIDs: make(map[string]int),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Questrade API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited authenticated GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	token, err := c.token()
	if err != nil {
		return fmt.Errorf("failed to resolve access token: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Questrade API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// resolveSymbolID looks up the numeric Questrade symbolId for a ticker,
// cached for the client's lifetime.
func (c *Client) resolveSymbolID(ctx context.Context, symbol string) (int, error) {
	c.mu.Lock()
	if id, ok := c.symbolIDs[symbol]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("prefix", symbol)

	var resp symbolSearchResponse
	if err := c.get(ctx, "/v1/symbols/search", params, &resp); err != nil {
		return 0, err
	}

	for _, s := range resp.Symbols {
		if s.Symbol == symbol {
			c.mu.Lock()
			c.symbolIDs[symbol] = s.SymbolID
			c.mu.Unlock()
			return s.SymbolID, nil
		}
	}
	return 0, fmt.Errorf("symbol %q not found", symbol)
}

type symbolSearchResponse struct {
	Symbols []struct {
		Symbol   string `json:"symbol"`
		SymbolID int    `json:"symbolId"`
		Currency string `json:"currency"`
	} `json:"symbols"`
}

// GetCandles retrieves daily candles for a symbol over a date range.
func (c *Client) GetCandles(ctx context.Context, symbol string, from, to time.Time) (*models.PriceSeries, error) {
	symbolID, err := c.resolveSymbolID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("startTime", from.Format("2006-01-02T15:04:05-07:00"))
	params.Set("endTime", to.Format("2006-01-02T15:04:05-07:00"))
	params.Set("interval", "OneDay")

	path := fmt.Sprintf("/v1/markets/candles/%d", symbolID)

	var resp candlesResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	series := &models.PriceSeries{
		Symbol:   symbol,
		Currency: c.symbolCurrency(ctx, symbol),
		Candles:  make([]models.Candle, 0, len(resp.Candles)),
	}

	for _, bar := range resp.Candles {
		date, err := time.Parse(time.RFC3339, bar.End)
		if err != nil {
			continue
		}
		series.Candles = append(series.Candles, models.Candle{
			Date:   date.UTC().Truncate(24 * time.Hour),
			Open:   float64(bar.Open),
			High:   float64(bar.High),
			Low:    float64(bar.Low),
			Close:  float64(bar.Close),
			Volume: bar.Volume,
		})
	}
	series.SortCandles()

	return series, nil
}

// symbolCurrency returns the listing currency from the cached search result,
// falling back to the TSX ".U" convention when the lookup misses.
func (c *Client) symbolCurrency(ctx context.Context, symbol string) string {
	params := url.Values{}
	params.Set("prefix", symbol)

	var resp symbolSearchResponse
	if err := c.get(ctx, "/v1/symbols/search", params, &resp); err == nil {
		for _, s := range resp.Symbols {
			if s.Symbol == symbol && s.Currency != "" {
				return s.Currency
			}
		}
	}

	for _, seg := range splitDots(symbol) {
		if seg == "U" {
			return "USD"
		}
	}
	return "CAD"
}

func splitDots(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

type candlesResponse struct {
	Candles []struct {
		Start  string      `json:"start"`
		End    string      `json:"end"`
		Open   flexFloat64 `json:"open"`
		High   flexFloat64 `json:"high"`
		Low    flexFloat64 `json:"low"`
		Close  flexFloat64 `json:"close"`
		Volume int64       `json:"volume"`
	} `json:"candles"`
}

// GetActivities retrieves activities for an account, chunked into the 30-day
// windows the API accepts, in chronological order.
func (c *Client) GetActivities(ctx context.Context, accountID string, from, to time.Time) ([]models.RawActivity, error) {
	var all []models.RawActivity

	for start := from; start.Before(to); start = start.AddDate(0, 0, activityChunkDays) {
		end := start.AddDate(0, 0, activityChunkDays)
		if end.After(to) {
			end = to
		}

		params := url.Values{}
		params.Set("startTime", start.Format("2006-01-02T15:04:05-07:00"))
		params.Set("endTime", end.Format("2006-01-02T15:04:05-07:00"))

		path := fmt.Sprintf("/v1/accounts/%s/activities", accountID)

		var resp activitiesResponse
		if err := c.get(ctx, path, params, &resp); err != nil {
			return nil, fmt.Errorf("activities %s to %s: %w",
				start.Format("2006-01-02"), end.Format("2006-01-02"), err)
		}

		for _, a := range resp.Activities {
			all = append(all, models.RawActivity{
				Type:            a.Type,
				Action:          a.Action,
				Symbol:          a.Symbol,
				Description:     a.Description,
				Currency:        a.Currency,
				Quantity:        float64(a.Quantity),
				Price:           float64(a.Price),
				GrossAmount:     float64(a.GrossAmount),
				Commission:      float64(a.Commission),
				NetAmount:       float64(a.NetAmount),
				TradeDate:       a.TradeDate,
				TransactionDate: a.TransactionDate,
				SettlementDate:  a.SettlementDate,
			})
		}
	}

	c.logger.Debug().
		Str("account", accountID).
		Int("activities", len(all)).
		Msg("Questrade activities fetched")

	return all, nil
}

type activitiesResponse struct {
	Activities []struct {
		Type            string      `json:"type"`
		Action          string      `json:"action"`
		Symbol          string      `json:"symbol"`
		Description     string      `json:"description"`
		Currency        string      `json:"currency"`
		Quantity        flexFloat64 `json:"quantity"`
		Price           flexFloat64 `json:"price"`
		GrossAmount     flexFloat64 `json:"grossAmount"`
		Commission      flexFloat64 `json:"commission"`
		NetAmount       flexFloat64 `json:"netAmount"`
		TradeDate       string      `json:"tradeDate"`
		TransactionDate string      `json:"transactionDate"`
		SettlementDate  string      `json:"settlementDate"`
	} `json:"activities"`
}

// GetBalances retrieves the broker-reported balance snapshot.
func (c *Client) GetBalances(ctx context.Context, accountID string) (*models.BalanceSnapshot, error) {
	path := fmt.Sprintf("/v1/accounts/%s/balances", accountID)

	var resp balancesResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}

	snapshot := &models.BalanceSnapshot{
		Combined: make(map[string]models.BalanceDetail, len(resp.CombinedBalances)),
		AsOf:     time.Now().UTC(),
	}
	for _, b := range resp.CombinedBalances {
		snapshot.Combined[b.Currency] = models.BalanceDetail{
			Currency:    b.Currency,
			Cash:        float64(b.Cash),
			MarketValue: float64(b.MarketValue),
			TotalEquity: float64(b.TotalEquity),
		}
	}

	return snapshot, nil
}

type balancesResponse struct {
	CombinedBalances []struct {
		Currency    string      `json:"currency"`
		Cash        flexFloat64 `json:"cash"`
		MarketValue flexFloat64 `json:"marketValue"`
		TotalEquity flexFloat64 `json:"totalEquity"`
	} `json:"combinedBalances"`
}

// Ensure Client implements the fetch contracts
var (
	_ interfaces.PriceHistoryClient = (*Client)(nil)
	_ interfaces.ActivityFetcher    = (*Client)(nil)
)
