// Package cfbd is a client for the College Football Data API (https://api.collegefootballdata.com).
package cfbd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zring/cfbmodel/internal/logging"
	"github.com/zring/cfbmodel/internal/metrics"
)

const (
	// APIBase is the base URL for the College Football Data API.
	APIBase = "https://api.collegefootballdata.com"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is how many times a retryable failure is retried.
	DefaultMaxRetries = 3

	// Backoff settings
	InitialBackoff = 500 * time.Millisecond
	MaxBackoff     = 8 * time.Second
	BackoffFactor  = 2.0

	// DefaultMaxRetryAfter caps a server-requested Retry-After delay.
	DefaultMaxRetryAfter = 60 * time.Second

	// Accepted parameter ranges.
	MinYear = 2000
	MaxYear = 2100
	MinWeek = 1
	MaxWeek = 20

	userAgent = "cfbmodel/1.0"
)

// DefaultRateLimit allows five requests per second.
var DefaultRateLimit = rate.Every(200 * time.Millisecond)

// ResponseCache stores raw response bodies keyed by request path and query.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
}

// Client provides access to the College Football Data API.
type Client struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	maxRetryAfter  time.Duration
	cache          ResponseCache
	logger         *logrus.Logger
	metrics        *metrics.PipelineMetrics

	stats   *ClientStats
	statsMu sync.RWMutex
}

// ClientOptions configures the client.
type ClientOptions struct {
	// APIKey is sent as a bearer token on every request.
	APIKey string

	// BaseURL overrides APIBase (used by tests and mirrors).
	BaseURL string

	// RateLimit controls request frequency (default: 5 req/second)
	RateLimit rate.Limit

	// Timeout for HTTP requests (default: 30 seconds)
	Timeout time.Duration

	// MaxRetries for retryable failures. Zero selects the default; negative disables retries.
	MaxRetries int

	// InitialBackoff overrides the first retry delay.
	InitialBackoff time.Duration

	// MaxRetryAfter caps how long a Retry-After header may delay a retry (default: 60 seconds).
	MaxRetryAfter time.Duration

	// HTTPClient allows a custom HTTP client
	HTTPClient *http.Client

	// Cache is consulted before the network when set.
	Cache ResponseCache

	Logger  *logrus.Logger
	Metrics *metrics.PipelineMetrics
}

// DefaultClientOptions returns default options for the given key.
func DefaultClientOptions(apiKey string) ClientOptions {
	return ClientOptions{
		APIKey:     apiKey,
		BaseURL:    APIBase,
		RateLimit:  DefaultRateLimit,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewClient creates a new API client.
func NewClient(options ClientOptions) *Client {
	if options.BaseURL == "" {
		options.BaseURL = APIBase
	}
	if options.RateLimit == 0 {
		options.RateLimit = DefaultRateLimit
	}
	if options.Timeout == 0 {
		options.Timeout = DefaultTimeout
	}
	switch {
	case options.MaxRetries == 0:
		options.MaxRetries = DefaultMaxRetries
	case options.MaxRetries < 0:
		options.MaxRetries = 0
	}
	if options.InitialBackoff <= 0 {
		options.InitialBackoff = InitialBackoff
	}
	if options.MaxRetryAfter <= 0 {
		options.MaxRetryAfter = DefaultMaxRetryAfter
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: options.Timeout,
		}
	}

	return &Client{
		apiKey:         options.APIKey,
		baseURL:        strings.TrimRight(options.BaseURL, "/"),
		httpClient:     httpClient,
		limiter:        rate.NewLimiter(options.RateLimit, 1),
		maxRetries:     options.MaxRetries,
		initialBackoff: options.InitialBackoff,
		maxRetryAfter:  options.MaxRetryAfter,
		cache:          options.Cache,
		logger:         logging.OrNop(options.Logger),
		metrics:        options.Metrics,
		stats:          &ClientStats{},
	}
}

// GetGames fetches games for a season, optionally narrowed to a week and team.
func (c *Client) GetGames(ctx context.Context, q GameQuery) ([]Game, error) {
	if err := validateYear(q.Year); err != nil {
		return nil, err
	}
	if err := validateWeek(q.Week); err != nil {
		return nil, err
	}
	seasonType := q.SeasonType
	if seasonType == "" {
		seasonType = SeasonTypeRegular
	}
	if err := validateSeasonType(seasonType); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("year", strconv.Itoa(q.Year))
	params.Set("seasonType", seasonType)
	if q.Week > 0 {
		params.Set("week", strconv.Itoa(q.Week))
	}
	if q.Team != "" {
		params.Set("team", q.Team)
	}

	var games []Game
	if err := c.getJSON(ctx, "/games", params, &games, "games"); err != nil {
		return nil, err
	}
	return games, nil
}

// GetTeamStats fetches season statistics in long format (one row per team per stat).
func (c *Client) GetTeamStats(ctx context.Context, year int, team string) ([]TeamStat, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("year", strconv.Itoa(year))
	if team != "" {
		params.Set("team", team)
	}

	var stats []TeamStat
	if err := c.getJSON(ctx, "/stats/season", params, &stats, "team stats"); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetTeamRecords fetches win/loss records for a season.
func (c *Client) GetTeamRecords(ctx context.Context, year int, team string) ([]TeamRecord, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("year", strconv.Itoa(year))
	if team != "" {
		params.Set("team", team)
	}

	var records []TeamRecord
	if err := c.getJSON(ctx, "/records", params, &records, "team records"); err != nil {
		return nil, err
	}
	return records, nil
}

// GetTeamTalent fetches the talent composite for a season.
func (c *Client) GetTeamTalent(ctx context.Context, year int) ([]TeamTalent, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("year", strconv.Itoa(year))

	var talent []TeamTalent
	if err := c.getJSON(ctx, "/talent", params, &talent, "team talent"); err != nil {
		return nil, err
	}
	return talent, nil
}

// GetTeams fetches all FBS teams.
func (c *Client) GetTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.getJSON(ctx, "/teams/fbs", url.Values{}, &teams, "teams"); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetBettingLines fetches betting lines for a season, optionally narrowed to a week and team.
func (c *Client) GetBettingLines(ctx context.Context, q LinesQuery) ([]GameLine, error) {
	if err := validateYear(q.Year); err != nil {
		return nil, err
	}
	if err := validateWeek(q.Week); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("year", strconv.Itoa(q.Year))
	if q.Week > 0 {
		params.Set("week", strconv.Itoa(q.Week))
	}
	if q.Team != "" {
		params.Set("team", q.Team)
	}

	var lines []GameLine
	if err := c.getJSON(ctx, "/lines", params, &lines, "betting lines"); err != nil {
		return nil, err
	}
	return lines, nil
}

// getJSON fetches path with params (through the cache when configured) and decodes into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any, what string) error {
	if c.apiKey == "" {
		return invalidParams("API key is required")
	}

	key := path
	if encoded := params.Encode(); encoded != "" {
		key += "?" + encoded
	}

	body, cached := c.fromCache(ctx, key)
	if !cached {
		var err error
		body, err = c.doRequest(ctx, c.baseURL+key)
		if err != nil {
			return err
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{
			Type:    ErrParseError,
			Message: fmt.Sprintf("failed to parse %s response", what),
			Err:     err,
		}
	}

	if !cached && c.cache != nil {
		if err := c.cache.Put(ctx, key, body); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("failed to cache response")
		}
	}
	return nil
}

func (c *Client) fromCache(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("response cache lookup failed")
		return nil, false
	}
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHits.Add(1)
		} else {
			c.metrics.CacheMisses.Add(1)
		}
	}
	if ok {
		c.updateStats(func(s *ClientStats) { s.CachedResponses++ })
		c.logger.WithField("key", key).Debug("serving response from cache")
	}
	return body, ok
}

// doRequest performs a GET with rate limiting, retrying retryable failures with exponential backoff.
func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	backoff := c.initialBackoff

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &APIError{
				Type:    ErrRateLimited,
				Message: "rate limiter error",
				Err:     err,
			}
		}

		body, retryAfter, err := c.attempt(ctx, fullURL)
		if err == nil {
			return body, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.retryable() || attempt >= c.maxRetries || ctx.Err() != nil {
			return nil, err
		}

		wait := c.retryDelay(backoff, retryAfter)

		c.logger.WithFields(logrus.Fields{
			"url":     fullURL,
			"attempt": attempt + 1,
			"wait":    wait,
			"status":  apiErr.StatusCode,
		}).Warn("request failed, retrying")
		c.updateStats(func(s *ClientStats) { s.Retries++ })
		if c.metrics != nil {
			c.metrics.APIRetries.Add(1)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &APIError{Type: ErrUnavailable, Message: "request cancelled during backoff", Err: ctx.Err()}
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * BackoffFactor)
		if backoff > MaxBackoff {
			backoff = MaxBackoff
		}
	}
}

// attempt performs a single request. retryAfter is the server-requested delay, if any.
func (c *Client) attempt(ctx context.Context, fullURL string) (body []byte, retryAfter time.Duration, err error) {
	c.updateStats(func(s *ClientStats) {
		s.TotalRequests++
		s.LastRequestTime = time.Now()
	})
	if c.metrics != nil {
		c.metrics.APIRequests.Add(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, &APIError{
			Type:    ErrInvalidParams,
			Message: "failed to create request",
			Err:     err,
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(startTime)

	if err != nil {
		c.recordFailure()
		return nil, 0, &APIError{
			Type:    ErrUnavailable,
			Message: "failed to execute request",
			Err:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.recordFailure()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), errorForStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure()
		return nil, 0, &APIError{
			Type:    ErrUnavailable,
			Message: "failed to read response body",
			Err:     err,
		}
	}

	c.recordSuccess(latency)
	c.logger.WithFields(logrus.Fields{
		"url":     fullURL,
		"latency": latency.Round(time.Millisecond),
		"bytes":   len(body),
	}).Debug("request succeeded")

	return body, 0, nil
}

// retryDelay prefers the server's Retry-After, capped at maxRetryAfter, over
// the exponential backoff.
func (c *Client) retryDelay(backoff, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, c.maxRetryAfter)
	}
	return min(backoff, MaxBackoff)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// recordFailure records a failed request.
func (c *Client) recordFailure() {
	if c.metrics != nil {
		c.metrics.APIErrors.Add(1)
	}
	c.updateStats(func(s *ClientStats) {
		s.FailedRequests++
		s.LastFailureTime = time.Now()
		s.ConsecutiveErrors++
	})
}

// recordSuccess records a successful request.
func (c *Client) recordSuccess(latency time.Duration) {
	if c.metrics != nil {
		c.metrics.RequestLatency.Record(latency)
	}
	c.updateStats(func(s *ClientStats) {
		s.LastSuccessTime = time.Now()
		s.ConsecutiveErrors = 0

		if s.AverageLatency == 0 {
			s.AverageLatency = latency
		} else {
			s.AverageLatency = (s.AverageLatency + latency) / 2
		}
	})
}

// updateStats safely updates client statistics.
func (c *Client) updateStats(fn func(*ClientStats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(c.stats)
}

// GetStats returns a copy of the current client statistics.
func (c *Client) GetStats() ClientStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return *c.stats
}

func validateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return invalidParams(fmt.Sprintf("year %d out of range [%d, %d]", year, MinYear, MaxYear))
	}
	return nil
}

func validateWeek(week int) error {
	if week == 0 {
		return nil
	}
	if week < MinWeek || week > MaxWeek {
		return invalidParams(fmt.Sprintf("week %d out of range [%d, %d]", week, MinWeek, MaxWeek))
	}
	return nil
}

func validateSeasonType(seasonType string) error {
	switch seasonType {
	case SeasonTypeRegular, SeasonTypePostseason, SeasonTypeBoth:
		return nil
	default:
		return invalidParams(fmt.Sprintf("unknown season type %q", seasonType))
	}
}
