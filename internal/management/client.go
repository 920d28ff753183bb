// Package management is a thin JSON client for the identity provider's
// management API.
package management

import (
	"bytes"
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

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
)

var ErrBaseURLRequired = errors.New("management: base url is required")

// TokenProvider supplies the bearer token for each request.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// invalidator is implemented by token suppliers that can drop a rejected token.
type invalidator interface {
	Invalidate()
}

type Config struct {
	// BaseURL is the management API root, e.g. https://tenant.example.com/api/v2
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues management API calls. It never retries; callers that need
// to absorb lag poll explicitly.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenProvider
	logger *zap.SugaredLogger
}

func NewClient(cfg Config, tokens TokenProvider, logger *zap.SugaredLogger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if tokens == nil {
		return nil, errors.New("management: token provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "idpsync"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, tokens: tokens, logger: logger}, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debugw("management request failed", "method", method, "path", path, "err", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debugw("management request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.tokens.(invalidator); ok {
				inv.Invalidate()
			}
		}
		return parseAPIError(method, path, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// fetchPage requests one page of a collection that wraps its items under key
// when include_totals is set. Endpoints that ignore include_totals and return
// a bare array are treated as a single complete page.
func fetchPage[T any](ctx context.Context, c *Client, path, key string, params url.Values, offset, limit int) (paging.Page[T], error) {
	if limit <= 0 {
		limit = paging.DefaultPageSize
	}
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(offset/limit))
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("include_totals", "true")

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, q, nil, &raw); err != nil {
		return paging.Page[T]{}, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return paging.Page[T]{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return paging.Page[T]{Items: items, Total: len(items)}, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return paging.Page[T]{}, fmt.Errorf("decode %s: %w", path, err)
	}
	var page paging.Page[T]
	if v, ok := env[key]; ok {
		if err := json.Unmarshal(v, &page.Items); err != nil {
			return paging.Page[T]{}, fmt.Errorf("decode %s.%s: %w", path, key, err)
		}
	}
	v, ok := env["total"]
	if !ok {
		return paging.Page[T]{}, fmt.Errorf("decode %s: %w", path, ErrMissingTotal)
	}
	if err := json.Unmarshal(v, &page.Total); err != nil {
		return paging.Page[T]{}, fmt.Errorf("decode %s.total: %w", path, err)
	}
	if v, ok := env["limit"]; ok {
		if err := json.Unmarshal(v, &page.Limit); err != nil {
			return paging.Page[T]{}, fmt.Errorf("decode %s.limit: %w", path, err)
		}
	}
	return page, nil
}
