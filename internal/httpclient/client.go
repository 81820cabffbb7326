// Package httpclient issues JSON API requests off the loop and hands every
// completion back to the loop.
//
// Requests run on their own goroutine. The result, decoded there, is posted
// to the loop, where the caller's callback runs unless the call was cancelled
// in the meantime. Cancellation is decided on the loop, so a cancelled call's
// callback never runs even if the transport ignores the cancellation.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/imagefeed/internal/errs"
	"github.com/and161185/imagefeed/internal/limiter"
	"github.com/and161185/imagefeed/internal/loop"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "imagefeed/1.0"

	// quotaWarnAt is the remaining hourly quota below which responses are logged at warn.
	quotaWarnAt = 5
)

// TokenSource provides the bearer token attached to outgoing requests.
type TokenSource interface {
	Get() (string, bool)
}

// Doer performs a single HTTP round trip. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes an API call relative to the client's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Bearer overrides the TokenSource for this request when non-empty.
	Bearer string
}

// stopper is implemented by loops that report when they stopped running.
type stopper interface {
	Done() <-chan struct{}
}

// Client is the HTTP client shared by the services.
type Client struct {
	base      *url.URL
	doer      Doer
	tokens    TokenSource
	loop      loop.Poster
	lim       limiter.Limiter
	log       *zap.Logger
	timeout   time.Duration
	userAgent string

	inflight sync.WaitGroup
}

// Option customizes a Client.
type Option func(*Client)

// WithDoer replaces the transport.
func WithDoer(d Doer) Option { return func(c *Client) { c.doer = d } }

// WithLimiter paces requests through l.
func WithLimiter(l limiter.Limiter) Option { return func(c *Client) { c.lim = l } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithTimeout bounds the HTTP exchange of each call. Time spent waiting for
// the limiter does not count. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// New constructs a client for baseURL. tokens may be nil for anonymous use.
func New(baseURL string, tokens TokenSource, lp loop.Poster, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if lp == nil {
		return nil, errors.New("nil loop")
	}
	c := &Client{
		base:      base,
		doer:      &http.Client{Timeout: 60 * time.Second},
		tokens:    tokens,
		loop:      lp,
		lim:       limiter.Unlimited{},
		log:       zap.NewNop(),
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Call is a handle on an in-flight request.
type Call struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Cancel abandons the call. Its callback will not run. Cancel on a nil or
// already settled call is a no-op.
func (c *Call) Cancel() {
	if c == nil {
		return
	}
	c.cancelled.Store(true)
	c.cancel()
}

// Cancelled reports whether Cancel was called.
func (c *Call) Cancelled() bool { return c != nil && c.cancelled.Load() }

// Send performs r and delivers the raw body on the loop.
func (c *Client) Send(r Request, done func([]byte, error)) *Call {
	return c.start(r, func(body []byte, err error) func() {
		return func() { done(body, err) }
	})
}

// Fetch performs r, decodes the body into T and delivers it on the loop.
func Fetch[T any](c *Client, r Request, done func(T, error)) *Call {
	return c.start(r, func(body []byte, err error) func() {
		var v T
		if err == nil {
			if derr := json.Unmarshal(body, &v); derr != nil {
				c.log.Warn("decode response",
					zap.String("path", r.Path),
					zap.Error(derr),
				)
				err = &DecodingError{Err: derr, Body: body}
			}
		}
		return func() { done(v, err) }
	})
}

// Wait blocks until every started call has been settled on the loop, or
// dropped because the loop stopped.
func (c *Client) Wait() { c.inflight.Wait() }

func (c *Client) start(r Request, settle func([]byte, error) func()) *Call {
	ctx, cancel := context.WithCancel(context.Background())
	call := &Call{cancel: cancel}

	c.inflight.Add(1)
	go func() {
		var once sync.Once
		release := func() { once.Do(c.inflight.Done) }

		body, err := c.roundTrip(ctx, r)
		deliver := settle(body, err)
		cancel()

		ran := make(chan struct{})
		posted := c.loop.Post(func() {
			defer close(ran)
			defer release()
			if call.cancelled.Load() {
				c.log.Debug("dropping result of cancelled call",
					zap.String("method", r.Method),
					zap.String("path", r.Path),
				)
				return
			}
			deliver()
		})
		if !posted {
			release()
			return
		}
		// A loop that stops with the task still queued never runs it.
		if s, ok := c.loop.(stopper); ok {
			select {
			case <-ran:
			case <-s.Done():
				release()
			}
		}
	}()
	return call
}

// roundTrip waits for the limiter under ctx alone, then bounds the HTTP
// exchange by the client timeout.
func (c *Client) roundTrip(ctx context.Context, r Request) ([]byte, error) {
	if err := c.lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrRateLimited, err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqID, err := uuid.NewV4()
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req, err := c.newRequest(ctx, r, reqID.String())
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		c.log.Warn("http",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("request_id", reqID.String()),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.Info("http",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", reqID.String()),
		zap.Duration("dur", time.Since(start)),
	)
	c.observeQuota(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, r Request, reqID string) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	u := c.base.JoinPath(r.Path)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Version", "v1")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", reqID)

	token := r.Bearer
	if token == "" && c.tokens != nil {
		token, _ = c.tokens.Get()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) observeQuota(h http.Header) {
	v := h.Get("X-Ratelimit-Remaining")
	if v == "" {
		return
	}
	remaining, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	if remaining < quotaWarnAt {
		c.log.Warn("api quota running low",
			zap.Int("remaining", remaining),
			zap.String("limit", h.Get("X-Ratelimit-Limit")),
		)
	}
}
