// Package upstream calls the external detection provider for live statistics
// and the latest fraud/DoS events.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alertdesk/internal/config"
	"alertdesk/internal/domain"
	"alertdesk/internal/metrics"
	"alertdesk/internal/normalize"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	// EndpointStats labels the live statistics call.
	EndpointStats = "stats"
	// EndpointLatestFraud labels the latest fraud event call.
	EndpointLatestFraud = "latest_fraud"
	// EndpointLatestDoS labels the latest DoS event call.
	EndpointLatestDoS = "latest_dos"

	breakerName  = "upstream"
	maxBodyBytes = 1 << 20
)

// ErrNotConfigured is returned for every call when no base URL is set.
var ErrNotConfigured = errors.New("upstream base url not configured")

// StatsReport is the provider's live transaction and attack totals.
type StatsReport struct {
	TotalTransactions int64
	FraudTransactions int64
	DoSAttacks        int64
	NonFraudAmount    float64
}

// statsBody accepts both snake_case and camelCase provider payloads.
type statsBody struct {
	TotalTransactions      *int64   `json:"total_transactions"`
	TotalTransactionsCamel *int64   `json:"totalTransactions"`
	FraudTransactions      *int64   `json:"fraud_transactions"`
	FraudulentCamel        *int64   `json:"fraudulentTransactions"`
	FraudTransactionsCamel *int64   `json:"fraudTransactions"`
	DoSAttacks             *int64   `json:"dos_attacks"`
	DoSAttacksCamel        *int64   `json:"dosAttacks"`
	NonFraudAmount         *float64 `json:"non_fraud_amount"`
	NonFraudAmountCamel    *float64 `json:"nonFraudAmount"`
}

// Client is a breaker-guarded HTTP client for the detection provider.
// Params: base URL, endpoint paths, per-call timeout, breaker settings.
// Returns: typed provider responses or UpstreamUnavailableError.
type Client struct {
	baseURL    string
	statsPath  string
	fraudPath  string
	dosPath    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     *slog.Logger
}

// New creates a provider client from configuration.
// Params: upstream settings and logger.
// Returns: client; an empty base URL yields a client that is always unavailable.
func New(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		statsPath:  cfg.StatsPath,
		fraudPath:  cfg.LatestFraudPath,
		dosPath:    cfg.LatestDoSPath,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
	c.breaker = newBreaker(cfg.Breaker, logger)
	return c
}

func newBreaker(cfg config.BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	openFor := time.Duration(cfg.OpenSec) * time.Second
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}

	metrics.UpstreamBreakerState.WithLabelValues(breakerName).Set(0)
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: halfOpen,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			metrics.UpstreamBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Enabled reports whether a base URL is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// BreakerState returns the current breaker state name.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Stats fetches live totals.
// Params: request context.
// Returns: stats report or UpstreamUnavailableError (including malformed bodies).
func (c *Client) Stats(ctx context.Context) (StatsReport, error) {
	body, err := c.get(ctx, EndpointStats, c.statsPath)
	if err != nil {
		return StatsReport{}, err
	}

	var raw statsBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return StatsReport{}, domain.NewUpstreamUnavailableError(EndpointStats, fmt.Errorf("decode stats: %w", err))
	}
	total := firstInt(raw.TotalTransactions, raw.TotalTransactionsCamel)
	fraud := firstInt(raw.FraudTransactions, raw.FraudTransactionsCamel, raw.FraudulentCamel)
	dos := firstInt(raw.DoSAttacks, raw.DoSAttacksCamel)
	if total == nil || fraud == nil || dos == nil {
		return StatsReport{}, domain.NewUpstreamUnavailableError(EndpointStats, errors.New("stats response missing totals"))
	}

	report := StatsReport{
		TotalTransactions: *total,
		FraudTransactions: *fraud,
		DoSAttacks:        *dos,
	}
	if amount := firstFloat(raw.NonFraudAmount, raw.NonFraudAmountCamel); amount != nil {
		report.NonFraudAmount = *amount
	}
	return report, nil
}

// LatestFraud fetches the most recent fraud detection.
// Returns: raw payload, nil when the provider has none, or UpstreamUnavailableError.
func (c *Client) LatestFraud(ctx context.Context) (normalize.Payload, error) {
	return c.latest(ctx, EndpointLatestFraud, c.fraudPath)
}

// LatestDoS fetches the most recent DoS detection.
// Returns: raw payload, nil when the provider has none, or UpstreamUnavailableError.
func (c *Client) LatestDoS(ctx context.Context) (normalize.Payload, error) {
	return c.latest(ctx, EndpointLatestDoS, c.dosPath)
}

func (c *Client) latest(ctx context.Context, endpoint, path string) (normalize.Payload, error) {
	body, err := c.get(ctx, endpoint, path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var payload normalize.Payload
	if err := decoder.Decode(&payload); err != nil {
		return nil, domain.NewUpstreamUnavailableError(endpoint, fmt.Errorf("decode event: %w", err))
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

// get performs one breaker-guarded GET bounded by the client timeout.
func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	if !c.Enabled() {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "disabled").Inc()
		return nil, domain.NewUpstreamUnavailableError(endpoint, ErrNotConfigured)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, c.baseURL+path)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
		c.logger.Debug("upstream call failed", "endpoint", endpoint, "outcome", outcome, "err", err)
		return nil, domain.NewUpstreamUnavailableError(endpoint, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func firstInt(values ...*int64) *int64 {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}

func firstFloat(values ...*float64) *float64 {
	for _, value := range values {
		if value != nil {
			return value
		}
	}
	return nil
}
