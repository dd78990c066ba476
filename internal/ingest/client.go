package ingest

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
	"time"

	"go.uber.org/zap"
)

// Client defaults.
const (
	DefaultPerPage   = 250
	DefaultSleep     = 400 * time.Millisecond
	DefaultMaxPages  = 2000
	DefaultTimeout   = 25 * time.Second
	DefaultUserAgent = "prodsearch-ingest/1.0"

	pageAttempts     = 3
	retryBaseDelay   = 500 * time.Millisecond
	maxResponseBytes = 64 << 20
)

var (
	// ErrInvalidConfig signals unusable client settings.
	ErrInvalidConfig = errors.New("invalid ingest config")

	errStatus = errors.New("unexpected status")
)

// Config holds storefront client settings. Zero numeric values select defaults;
// a zero Sleep disables the pause between pages.
type Config struct {
	BaseURL    string
	PerPage    int
	Sleep      time.Duration
	MaxPages   int
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Validate rejects settings the fetch loop cannot work with.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	case c.PerPage < 0:
		return fmt.Errorf("%w: per-page must be a positive integer", ErrInvalidConfig)
	case c.MaxPages < 0:
		return fmt.Errorf("%w: max-pages must be a positive integer", ErrInvalidConfig)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must be a positive number", ErrInvalidConfig)
	case c.Sleep < 0:
		return fmt.Errorf("%w: sleep must be zero or a positive number", ErrInvalidConfig)
	}
	u, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q must be absolute", ErrInvalidConfig, c.BaseURL)
	}
	return nil
}

// Client pages through a storefront's public products.json.
type Client struct {
	http      *http.Client
	endpoint  string
	perPage   int
	sleep     time.Duration
	maxPages  int
	userAgent string
	logger    *zap.Logger
	wait      func(ctx context.Context, d time.Duration) error
}

// FetchResult holds the fetched products. HadErrors is set when any page failed,
// even if later pages succeeded.
type FetchResult struct {
	Products  []Product
	Pages     int
	HadErrors bool
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PerPage == 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		http:      hc,
		endpoint:  strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/products.json",
		perPage:   cfg.PerPage,
		sleep:     cfg.Sleep,
		maxPages:  cfg.MaxPages,
		userAgent: strings.TrimSpace(cfg.UserAgent),
		logger:    logger,
		wait:      sleepCtx,
	}, nil
}

// pageOutcome tells the pagination loop what to do after a page.
type pageOutcome int

const (
	pageNext pageOutcome = iota // page consumed, continue
	pageStop                    // stop pagination
	pageFailed                  // retries exhausted, skip to the next page
)

// FetchAll pages from 1 to MaxPages. Network errors and 5xx responses are retried up to
// three times per page; other statuses, undecodable bodies and payloads without a
// products list stop pagination. An empty page ends it. Only context cancellation
// returns an error.
func (c *Client) FetchAll(ctx context.Context) (FetchResult, error) {
	var res FetchResult

	for page := 1; page <= c.maxPages; page++ {
		products, outcome, err := c.fetchPage(ctx, page)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("fetch page %d: %w", page, ctxErr)
		}
		if err != nil {
			res.HadErrors = true
		}
		if outcome == pageStop {
			break
		}
		if outcome == pageNext {
			res.Products = append(res.Products, products...)
			res.Pages = page
			c.logger.Info("page fetched",
				zap.Int("page", page),
				zap.Int("products", len(products)),
				zap.Int("total", len(res.Products)),
			)
		}

		if c.sleep > 0 && page < c.maxPages {
			if err := c.wait(ctx, c.sleep); err != nil {
				return res, fmt.Errorf("fetch: %w", err)
			}
		}
	}
	return res, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]Product, pageOutcome, error) {
	var lastErr error
	for attempt := 1; attempt <= pageAttempts; attempt++ {
		status, body, err := c.get(ctx, page)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, pageStop, err
			}
			lastErr = err
			c.logger.Warn("page request failed",
				zap.Int("page", page), zap.Int("attempt", attempt), zap.Error(err))
		case status >= 500 && status < 600:
			lastErr = fmt.Errorf("%w %d", errStatus, status)
			c.logger.Warn("page returned server error",
				zap.Int("page", page), zap.Int("attempt", attempt), zap.Int("status", status))
		case status != http.StatusOK:
			c.logger.Error("page returned unexpected status; stopping",
				zap.Int("page", page), zap.Int("status", status))
			return nil, pageStop, fmt.Errorf("%w %d", errStatus, status)
		default:
			return c.decodePage(page, body)
		}

		if attempt < pageAttempts {
			delay := retryBaseDelay << (attempt - 1)
			if err := c.wait(ctx, delay); err != nil {
				return nil, pageStop, err
			}
		}
	}
	return nil, pageFailed, lastErr
}

func (c *Client) decodePage(page int, body []byte) ([]Product, pageOutcome, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error("failed to parse page JSON; stopping", zap.Int("page", page), zap.Error(err))
		return nil, pageStop, fmt.Errorf("decode page %d: %w", page, err)
	}
	raw, ok := payload["products"]
	if !ok || string(raw) == "null" {
		c.logger.Error("page response missing products key; stopping", zap.Int("page", page))
		return nil, pageStop, fmt.Errorf("page %d: missing products", page)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		c.logger.Error("page products is not a list; stopping", zap.Int("page", page))
		return nil, pageStop, fmt.Errorf("page %d: products is not a list: %w", page, err)
	}
	if len(items) == 0 {
		c.logger.Info("page returned 0 products; ending pagination", zap.Int("page", page))
		return nil, pageStop, nil
	}

	products := make([]Product, 0, len(items))
	var decodeErr error
	for i, item := range items {
		var p Product
		if err := json.Unmarshal(item, &p); err != nil {
			c.logger.Warn("skipping undecodable product", zap.Int("page", page), zap.Int("index", i), zap.Error(err))
			decodeErr = fmt.Errorf("page %d product %d: %w", page, i, err)
			continue
		}
		products = append(products, p)
	}
	return products, pageNext, decodeErr
}

func (c *Client) get(ctx context.Context, page int) (int, []byte, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.perPage))
	q.Set("page", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("get page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read page %d: %w", page, err)
	}
	return resp.StatusCode, body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
