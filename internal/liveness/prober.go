// Package liveness decides whether corpus locators still resolve to a retrievable image,
// and filters ranked candidates down to the reachable ones.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Defaults used when no option overrides them.
const (
	DefaultTimeout      = 6 * time.Second
	DefaultUserAgent    = "Mozilla/5.0"
	DefaultMaxRedirects = 10
)

// Result is the outcome of probing one locator. Alive is false on any error.
type Result struct {
	Alive bool
	// Status is the status code of the deciding response, 0 when none was received.
	Status int
	// Method is the request that decided the outcome: http.MethodHead or http.MethodGet.
	Method   string
	Reason   string
	Duration time.Duration
	// Cancelled is set when the caller's context ended the probe, as opposed to the resource failing.
	Cancelled bool
}

// Checker probes a single locator.
type Checker interface {
	Probe(ctx context.Context, locator string) Result
}

// Prober checks reachability with a HEAD request and falls back to a streamed GET
// when HEAD reports an error status or a content type that is not an image.
type Prober struct {
	client       *http.Client
	timeout      time.Duration
	userAgent    string
	maxRedirects int
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithTimeout bounds each of the HEAD and GET steps.
func WithTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every probe.
func WithUserAgent(ua string) ProberOption {
	return func(p *Prober) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithMaxRedirects limits how many redirects a single step follows.
func WithMaxRedirects(n int) ProberOption {
	return func(p *Prober) {
		if n > 0 {
			p.maxRedirects = n
		}
	}
}

// WithHTTPClient replaces the underlying client. Its CheckRedirect is overwritten.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *Prober) {
		if c != nil {
			p.client = c
		}
	}
}

// NewProber creates a prober with the given options.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		client:       &http.Client{},
		timeout:      DefaultTimeout,
		userAgent:    DefaultUserAgent,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(p)
	}
	client := *p.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= p.maxRedirects {
			return fmt.Errorf("stopped after %d redirects", p.maxRedirects)
		}
		return nil
	}
	p.client = &client
	return p
}

// IsAlive reports whether locator currently resolves to a retrievable resource.
func (p *Prober) IsAlive(ctx context.Context, locator string) bool {
	return p.Probe(ctx, locator).Alive
}

// Probe runs the HEAD then GET strategy. It never returns an error: every transport
// failure, timeout or malformed locator yields Alive=false with a Reason.
func (p *Prober) Probe(ctx context.Context, locator string) Result {
	start := time.Now()
	res := p.probe(ctx, locator)
	res.Duration = time.Since(start)
	if !res.Alive && ctx.Err() != nil {
		res.Cancelled = true
	}
	return res
}

func (p *Prober) probe(ctx context.Context, locator string) Result {
	status, contentType, err := p.do(ctx, http.MethodHead, locator)
	if err != nil {
		return Result{Method: http.MethodHead, Reason: err.Error()}
	}
	if status < http.StatusBadRequest && isImageContentType(contentType) {
		return Result{Alive: true, Status: status, Method: http.MethodHead}
	}

	status, _, err = p.do(ctx, http.MethodGet, locator)
	if err != nil {
		return Result{Method: http.MethodGet, Reason: err.Error()}
	}
	res := Result{Alive: status < http.StatusBadRequest, Status: status, Method: http.MethodGet}
	if !res.Alive {
		res.Reason = http.StatusText(status)
	}
	return res
}

// do issues one request and releases the connection without reading the body.
func (p *Prober) do(ctx context.Context, method, locator string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, locator, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", p.userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, "", fmt.Errorf("%s timed out after %s", method, p.timeout)
		}
		return 0, "", err
	}
	resp.Body.Close()
	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

func isImageContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "application/octet-stream")
}
