// Package edgar fetches Form 4 filings from SEC EDGAR and parses them into
// transaction records.
//
// SEC requires a descriptive User-Agent and allows at most 10 requests per
// second, both of which are carried by ClientConfig.
package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

// Default EDGAR hosts
const (
	DefaultWWWBaseURL  = "https://www.sec.gov"
	DefaultDataBaseURL = "https://data.sec.gov"
)

const maxBodyBytes = 32 << 20

var (
	// ErrUnknownTicker is returned when a ticker is not in the SEC issuer directory
	ErrUnknownTicker = errors.New("unknown ticker")
	// ErrNotFound is returned for a 404 from EDGAR
	ErrNotFound = errors.New("edgar resource not found")
	// ErrNoOwnershipXML is returned when a filing index lists no raw ownership document
	ErrNoOwnershipXML = errors.New("no ownership xml in filing")
)

// ClientConfig holds everything the adapter needs. There is no package-level
// configuration; callers build one of these and pass it to NewClient.
type ClientConfig struct {
	UserAgent      string
	RateLimit      float64
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	WWWBaseURL     string
	DataBaseURL    string
	ClassifierMode ClassifierMode
}

// DefaultClientConfig returns SEC-compliant defaults for the given user agent
func DefaultClientConfig(userAgent string) ClientConfig {
	return ClientConfig{
		UserAgent:      userAgent,
		RateLimit:      10,
		Timeout:        10 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   500 * time.Millisecond,
		WWWBaseURL:     DefaultWWWBaseURL,
		DataBaseURL:    DefaultDataBaseURL,
		ClassifierMode: ClassifierTextPreferred,
	}
}

// Client talks to EDGAR
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *RateLimiter
	classifier Classifier
	feedParser *gofeed.Parser

	tickersMu sync.Mutex
	tickers   map[string]TickerInfo
}

// NewClient creates a new EDGAR client
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("edgar user agent is required")
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("edgar rate limit must be positive, got %v", cfg.RateLimit)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.WWWBaseURL == "" {
		cfg.WWWBaseURL = DefaultWWWBaseURL
	}
	if cfg.DataBaseURL == "" {
		cfg.DataBaseURL = DefaultDataBaseURL
	}
	cfg.WWWBaseURL = strings.TrimRight(cfg.WWWBaseURL, "/")
	cfg.DataBaseURL = strings.TrimRight(cfg.DataBaseURL, "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    NewRateLimiter(cfg.RateLimit),
		classifier: Classifier{Mode: cfg.ClassifierMode},
		feedParser: gofeed.NewParser(),
	}, nil
}

// get fetches url, retrying transient failures with exponential backoff
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retry, err := c.doGet(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%s: %w", url, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("edgar returned %d for %s", resp.StatusCode, url)
	default:
		return nil, false, fmt.Errorf("edgar returned %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read %s: %w", url, err)
	}
	return body, false, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dest interface{}) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to parse json from %s: %w", url, err)
	}
	return nil
}
