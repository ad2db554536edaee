package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/foreman/pkg/types"
	"github.com/stretchr/testify/assert"
)

func statusServer(t *testing.T, code int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHTTPCheckerStatusRange(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		min, max int
		healthy  bool
		message  string
	}{
		{name: "ok", code: http.StatusOK, healthy: true, message: "HTTP 200 OK"},
		{name: "redirect accepted", code: http.StatusNotModified, healthy: true},
		{name: "server error", code: http.StatusInternalServerError, message: "expected 200-399"},
		{name: "narrow range rejects", code: http.StatusAccepted, min: 200, max: 201},
		{name: "wide range accepts", code: http.StatusAccepted, min: 200, max: 299, healthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewHTTPChecker(statusServer(t, tt.code))
			if tt.max > 0 {
				c.WithStatusRange(tt.min, tt.max)
			}

			result := c.Check(context.Background())
			assert.Equal(t, tt.healthy, result.Healthy, result.Message)
			assert.Greater(t, result.Duration, time.Duration(0))
			if tt.message != "" {
				assert.Contains(t, result.Message, tt.message)
			}
		})
	}
}

func TestHTTPCheckerSendsHeaders(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
		if r.Header.Get("X-Foreman-Probe") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := NewHTTPChecker(srv.URL).Check(context.Background())
	assert.False(t, result.Healthy)

	result = NewHTTPChecker(srv.URL).WithHeader("X-Foreman-Probe", "1").Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
	assert.Equal(t, probeUserAgent, agent)
}

func TestHTTPCheckerDeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := NewHTTPChecker(srv.URL).WithTimeout(50 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy, "probe timeout")
	assert.Contains(t, result.Message, "request failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result = NewHTTPChecker(srv.URL).Check(ctx)
	assert.False(t, result.Healthy, "cancelled caller")
}

func TestHTTPCheckerInvalidURL(t *testing.T) {
	result := NewHTTPChecker("://bad").Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "invalid probe URL")
	assert.Equal(t, types.ProbeHTTP, NewHTTPChecker("http://example.com").Type())
}
