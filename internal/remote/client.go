package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "buildpulse/pkg/logx"
)

// Client talks to the build-counter service. It owns the per-request timeout
// and an optional outbound rate cap; it never retries on its own.
type Client struct {
	base string
	http *http.Client
	log  logx.Logger

	// mu guards limiter: SetRate swaps it from the reload path while
	// request goroutines read it.
	mu      sync.Mutex
	limiter *rate.Limiter
}

type Options struct {
	// BaseURL without trailing slash, e.g. "http://localhost:8080".
	BaseURL string
	// RequestTimeout bounds each call. Zero falls back to 10s.
	RequestTimeout time.Duration
	// RatePerSec caps outbound requests across all callers. Zero disables the cap.
	RatePerSec int

	Log logx.Logger
}

// StartResult is the acknowledgment for a started build. NextID is the
// server-assigned sequence number; it is display/history material only.
type StartResult struct {
	NextID int `json:"next_id"`
}

func New(opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var lim *rate.Limiter
	if opts.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	return &Client{
		base:    opts.BaseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: lim,
		log:     opts.Log,
	}
}

// SetRate swaps the outbound rate cap at runtime. Zero disables it.
// Safe to call while requests are in flight.
func (c *Client) SetRate(perSec int) {
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	c.mu.Lock()
	c.limiter = lim
	c.mu.Unlock()
}

func (c *Client) rateLimiter() *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limiter
}

// Health probes GET /health. nil means the service answered 200.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// StartBuild posts /start for the given project and build id.
// Success is status 200 with a JSON body carrying next_id.
func (c *Client) StartBuild(ctx context.Context, project, buildID string) (StartResult, error) {
	q := url.Values{"name": {project}, "build_id": {buildID}}
	resp, err := c.do(ctx, http.MethodPost, "/start", q)
	if err != nil {
		return StartResult{}, fmt.Errorf("start %s#%s: %w", project, buildID, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return StartResult{}, fmt.Errorf("start %s#%s: unexpected status %d", project, buildID, resp.StatusCode)
	}
	var res StartResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		// The server acknowledged the build; a malformed body only costs us the
		// display id.
		c.log.Debug("start response body undecodable", logx.String("project", project), logx.Err(err))
	}
	return res, nil
}

// FinishBuild posts /finish for the given project and build id.
// Success is status 201.
func (c *Client) FinishBuild(ctx context.Context, project, buildID string) error {
	q := url.Values{"name": {project}, "build_id": {buildID}}
	resp, err := c.do(ctx, http.MethodPost, "/finish", q)
	if err != nil {
		return fmt.Errorf("finish %s#%s: %w", project, buildID, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("finish %s#%s: unexpected status %d", project, buildID, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values) (*http.Response, error) {
	if lim := c.rateLimiter(); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
