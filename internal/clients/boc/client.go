// Package boc provides a client for the Bank of Canada Valet API
package boc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/models"
)

const (
	DefaultBaseURL   = "https://www.bankofcanada.ca/valet"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	// usdCadSeries is the Valet series name for the daily USD/CAD noon rate.
	usdCadSeries = "FXUSDCAD"
)

// Client fetches published USD/CAD observations from the Bank of Canada
// Valet API. Observations are CAD per 1 USD; weekends and bank holidays
// publish nothing and are backfilled downstream.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
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

// NewClient creates a new Valet client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetRates retrieves daily USD/CAD observations over a date range.
func (c *Client) GetRates(ctx context.Context, from, to time.Time) (*models.FxRateSeries, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("start_date", from.Format("2006-01-02"))
	params.Set("end_date", to.Format("2006-01-02"))

	reqURL := fmt.Sprintf("%s/observations/%s/json?%s", c.baseURL, usdCadSeries, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().
		Str("series", usdCadSeries).
		Str("from", from.Format("2006-01-02")).
		Str("to", to.Format("2006-01-02")).
		Msg("Valet API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Valet API error: %s (status: %d)", string(body), resp.StatusCode)
	}

	var payload observationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	series := &models.FxRateSeries{
		Pair:         "USDCAD",
		Observations: make([]models.FxObservation, 0, len(payload.Observations)),
	}

	for _, obs := range payload.Observations {
		date, err := time.Parse("2006-01-02", obs.Date)
		if err != nil {
			continue
		}
		value, ok := obs.Series[usdCadSeries]
		if !ok {
			continue
		}
		ratef, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			continue
		}
		series.Observations = append(series.Observations, models.FxObservation{
			Date: date.UTC(),
			Rate: ratef,
		})
	}
	series.SortObservations()

	return series, nil
}

// observationsResponse mirrors the Valet observations payload: one entry per
// published date, values keyed by series name as strings.
type observationsResponse struct {
	Observations []observation `json:"observations"`
}

type observation struct {
	Date   string                     `json:"d"`
	Series map[string]seriesValuation `json:"-"`
}

type seriesValuation struct {
	Value string `json:"v"`
}

// UnmarshalJSON splits the date field from the per-series values, which share
// one flat JSON object.
func (o *observation) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Series = make(map[string]seriesValuation)
	for key, value := range raw {
		if key == "d" {
			if err := json.Unmarshal(value, &o.Date); err != nil {
				return err
			}
			continue
		}
		var sv seriesValuation
		if err := json.Unmarshal(value, &sv); err != nil {
			continue
		}
		o.Series[key] = sv
	}
	return nil
}

// Ensure Client implements FxRateClient
var _ interfaces.FxRateClient = (*Client)(nil)
