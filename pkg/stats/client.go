// Package stats fetches live network statistics from a block explorer API.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/emission-labs/emission-curve/pkg/types"
)

// DefaultURL is the explorer endpoint reporting Monero network stats.
const DefaultURL = "https://localmonero.co/blocks/api/get_stats"

// ErrMissingField is returned when the stats payload has no total_emission.
var ErrMissingField = errors.New("total_emission missing from stats response")

// Config controls the stats client.
type Config struct {
	URL                string
	Timeout            time.Duration
	MaxRequestRetries  int
	RequestRetryDelay  time.Duration
	AtomicUnitExponent int
	Ticker             string
}

func DefaultConfig() Config {
	return Config{
		URL:                DefaultURL,
		Timeout:            5 * time.Second,
		MaxRequestRetries:  2,
		RequestRetryDelay:  500 * time.Millisecond,
		AtomicUnitExponent: 12,
		Ticker:             "XMR",
	}
}

// A wrapper around zap.Logger to make it compatible with
// retryablehttp.LeveledLogger interface.
type retryableHTTPLogger struct {
	inner *zap.Logger
}

func (r retryableHTTPLogger) Error(format string, args ...any) {
	r.inner.Sugar().Errorw(format, args...)
}

func (r retryableHTTPLogger) Info(format string, args ...any) {
	r.inner.Sugar().Infow(format, args...)
}

func (r retryableHTTPLogger) Warn(format string, args ...any) {
	r.inner.Sugar().Warnw(format, args...)
}

func (r retryableHTTPLogger) Debug(format string, args ...any) {
	r.inner.Sugar().Debugw(format, args...)
}

type Client struct {
	url    string
	cfg    Config
	client *retryablehttp.Client
	logger *zap.Logger
	now    func() time.Time
}

type Opt func(*Client)

func WithLogger(logger *zap.Logger) Opt {
	return func(c *Client) {
		c.logger = logger
		c.client.Logger = &retryableHTTPLogger{inner: logger}
	}
}

// WithHTTPClient replaces the underlying http client, mostly for tests.
func WithHTTPClient(hc *http.Client) Opt {
	return func(c *Client) {
		c.client.HTTPClient = hc
	}
}

func NewClient(cfg Config, opts ...Opt) *Client {
	c := &Client{
		url: strings.TrimRight(cfg.URL, "/"),
		cfg: cfg,
		client: &retryablehttp.Client{
			HTTPClient:   &http.Client{Timeout: cfg.Timeout},
			RetryMax:     cfg.MaxRequestRetries,
			RetryWaitMin: cfg.RequestRetryDelay,
			RetryWaitMax: 2 * cfg.RequestRetryDelay,
			Backoff:      retryablehttp.LinearJitterBackoff,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the client queries.
func (c *Client) URL() string { return c.url }

// TotalEmission returns the total amount emitted so far as reported by the
// explorer, both as the raw atomic integer and scaled to display units.
func (c *Client) TotalEmission(ctx context.Context) (*types.TotalEmission, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating stats request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("stats: status %s: %s", resp.Status, string(b))
	}

	var out struct {
		TotalEmission json.Number `json:"total_emission"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	if out.TotalEmission == "" {
		return nil, ErrMissingField
	}
	atomic, amount, err := scale(out.TotalEmission.String(), c.cfg.AtomicUnitExponent)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetched total emission", zap.String("atomic", atomic), zap.Float64("amount", amount))
	return &types.TotalEmission{
		Atomic:    atomic,
		Amount:    amount,
		Ticker:    c.cfg.Ticker,
		UpdatedAt: c.now().UTC(),
	}, nil
}

// scale converts an atomic amount to display units. Non-integer inputs
// are truncated toward zero.
func scale(raw string, exponent int) (string, float64, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		f, _, err := big.ParseFloat(raw, 10, 256, big.ToZero)
		if err != nil {
			return "", 0, fmt.Errorf("invalid total_emission %q: %w", raw, err)
		}
		if f.IsInf() {
			return "", 0, fmt.Errorf("invalid total_emission %q: not finite", raw)
		}
		n, _ = f.Int(nil)
	}
	if n.Sign() < 0 {
		return "", 0, fmt.Errorf("invalid total_emission %q: negative", raw)
	}
	div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exponent)), nil))
	amount, _ := new(big.Float).Quo(new(big.Float).SetInt(n), div).Float64()
	return n.String(), amount, nil
}
