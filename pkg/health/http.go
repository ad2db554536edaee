package health

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/foreman/pkg/types"
)

// probeUserAgent identifies probe traffic in worker access logs
const probeUserAgent = "foreman-probe"

// probeClient is shared by every HTTP probe; each check carries its own deadline
var probeClient = &http.Client{}

// HTTPChecker probes a worker's HTTP endpoint with GET. Any status in
// [StatusMin, StatusMax] is healthy.
type HTTPChecker struct {
	URL       string
	Header    http.Header
	StatusMin int
	StatusMax int
	Timeout   time.Duration
}

// NewHTTPChecker creates a checker accepting 2xx and 3xx
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		Header:    make(http.Header),
		StatusMin: http.StatusOK,
		StatusMax: 399,
		Timeout:   DefaultProbeTimeout,
	}
}

// Check issues one request and judges the response status
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return finish(start, false, "invalid probe URL: %v", err)
	}
	req.Header = h.Header.Clone()
	req.Header.Set("User-Agent", probeUserAgent)

	resp, err := probeClient.Do(req)
	if err != nil {
		return finish(start, false, "request failed: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	status := resp.Status
	if status == "" {
		status = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode < h.StatusMin || resp.StatusCode > h.StatusMax {
		return finish(start, false, "HTTP %s (expected %d-%d)", status, h.StatusMin, h.StatusMax)
	}
	return finish(start, true, "HTTP %s", status)
}

// Type returns the probe type
func (h *HTTPChecker) Type() types.ProbeType {
	return types.ProbeHTTP
}

// WithHeader adds a request header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Header.Set(key, value)
	return h
}

// WithStatusRange sets the accepted status codes, inclusive
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.StatusMin, h.StatusMax = min, max
	return h
}

// WithTimeout bounds a single check
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Timeout = timeout
	return h
}
