package fmp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"PriceBand/internal/domain/models"
	drepo "PriceBand/internal/domain/repository"
	"PriceBand/internal/service/ratelimit"
	"PriceBand/pkg/http"
	"PriceBand/pkg/logger"
)

const (
	DefaultBaseURL = "https://financialmodelingprep.com"

	dailyPath  = "/stable/historical-price-eod/full"
	minutePath = "/api/v3/historical-chart/1min/"

	dayLayout    = "2006-01-02"
	minuteLayout = "2006-01-02 15:04:05"

	providerName = "fmp"
)

// Option configures Client.
type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLimiter(l *ratelimit.Limiter) Option { return func(c *Client) { c.limiter = l } }

func WithMetrics(m drepo.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithLogger(l *logger.Logger) Option { return func(c *Client) { c.log = l } }

// WithBreaker trips the circuit after failures consecutive errors and keeps
// it open for cooldown.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(c *Client) {
		c.breakerFailures = failures
		c.breakerCooldown = cooldown
	}
}

// Client implements MarketData against the Financial Modeling Prep REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
	metrics drepo.Metrics
	log     *logger.Logger

	breakerFailures uint32
	breakerCooldown time.Duration
	breaker         *gobreaker.CircuitBreaker
}

// New creates a new FMP market data client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:          apiKey,
		baseURL:         DefaultBaseURL,
		breakerFailures: 5,
		breakerCooldown: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = http.NewClient()
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	failures := c.breakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    providerName,
		Timeout: c.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: providerHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return c
}

var _ drepo.MarketData = (*Client)(nil)

type eodBar struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// DailyBars fetches end-of-day bars for symbol within [from, to].
func (c *Client) DailyBars(ctx context.Context, symbol string, from, to time.Time) (models.Series, error) {
	var raw []eodBar
	err := c.get(ctx, dailyPath, map[string][]string{
		"symbol": {symbol},
		"from":   {from.Format(dayLayout)},
		"to":     {to.Format(dayLayout)},
	}, &raw)
	if err != nil {
		return models.Series{}, fmt.Errorf("fmp daily %s: %w", symbol, err)
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, r := range raw {
		d, err := time.Parse(dayLayout, r.Date)
		if err != nil {
			return models.Series{}, fmt.Errorf("fmp daily %s: %w: bad date %q", symbol, models.ErrFetch, r.Date)
		}
		bars = append(bars, models.Bar{Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	return models.NewSeries(symbol, bars), nil
}

// LatestMinuteBar fetches the most recent one-minute bar for symbol.
func (c *Client) LatestMinuteBar(ctx context.Context, symbol string) (models.Bar, error) {
	var raw []eodBar
	if err := c.get(ctx, minutePath+url.PathEscape(symbol), nil, &raw); err != nil {
		return models.Bar{}, fmt.Errorf("fmp minute %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return models.Bar{}, fmt.Errorf("fmp minute %s: %w: empty response", symbol, models.ErrFetch)
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, r := range raw {
		ts, err := time.Parse(minuteLayout, r.Date)
		if err != nil {
			return models.Bar{}, fmt.Errorf("fmp minute %s: %w: bad timestamp %q", symbol, models.ErrFetch, r.Date)
		}
		bars = append(bars, models.Bar{Date: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars[len(bars)-1], nil
}

func (c *Client) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, providerName); err != nil {
			return fmt.Errorf("%w: rate limit: %v", models.ErrFetch, err)
		}
	}
	if query == nil {
		query = map[string][]string{}
	}
	query["apikey"] = []string{c.apiKey}

	started := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.http.SendAndParse(ctx, &http.RequestOptions{
			Method:      http.MethodGet,
			URL:         c.baseURL + path,
			QueryParams: query,
		}, dest)
	})
	c.record(started, err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: provider unavailable: %v", models.ErrFetch, err)
		}
		return fmt.Errorf("%w: %v", models.ErrFetch, redact(err.Error(), c.apiKey))
	}
	return nil
}

func (c *Client) record(started time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.RecordFetch(providerName, outcome, time.Since(started).Seconds())
}

// providerHealthy treats client errors other than 429 as answers from a
// working provider, so an unknown symbol never opens the breaker.
func providerHealthy(err error) bool {
	if err == nil {
		return true
	}
	var se *http.StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != 429
	}
	return false
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
