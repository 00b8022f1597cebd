package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/prometheus/client_golang/prometheus"

	"datacache/internal/config"
	"datacache/internal/fetcher"
	"datacache/internal/telemetry"
)

const payload = `{"items":[1,2,3]}`

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type upstream struct {
	calls  int32
	status atomic.Int32
}

func (u *upstream) Get(_ context.Context, _ string) (*fetcher.Response, error) {
	atomic.AddInt32(&u.calls, 1)
	st := int(u.status.Load())
	if st == 0 {
		return nil, errors.New("connection refused")
	}
	return &fetcher.Response{StatusCode: st, StatusText: http.StatusText(st), Body: []byte(payload)}, nil
}

type fixture struct {
	srv   *Server
	up    *upstream
	clock *clock
	reg   *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := &log.Logger{Handler: discard.New(), Level: log.DebugLevel}
	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	up := &upstream{}
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	f := fetcher.New[json.RawMessage](up, nil, fetcher.Options{
		URL:      "http://upstream.test/data.json",
		TTL:      24 * time.Hour,
		Now:      clk.Now,
		Observer: metrics,
		Logger:   logger,
	})

	srv := New(Deps{
		Config:   &config.FinalConfig{},
		Data:     f,
		Metrics:  metrics,
		Gatherer: reg,
		Logger:   logger,
	})
	return &fixture{srv: srv, up: up, clock: clk, reg: reg}
}

func (fx *fixture) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := fx.srv.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("GET %s err=%v", path, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body err=%v", err)
	}
	return resp, string(body)
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)
	resp, body := fx.get(t, "/health")
	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
}

func TestData_NoDataAvailable(t *testing.T) {
	fx := newFixture(t)

	resp, body := fx.get(t, "/data")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if out["error"] != fetcher.ErrNoDataAvailable.Error() {
		t.Fatalf("error=%q", out["error"])
	}
	if got := resp.Header.Get("X-Upstream-Status"); got != "" {
		t.Fatalf("transport failure must not set X-Upstream-Status, got %q", got)
	}
}

func TestData_NoDataAvailable_UpstreamStatus(t *testing.T) {
	fx := newFixture(t)
	fx.up.status.Store(http.StatusBadGateway)

	resp, _ := fx.get(t, "/data")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
	if got := resp.Header.Get("X-Upstream-Status"); got != "502" {
		t.Fatalf("X-Upstream-Status=%q want 502", got)
	}
}

func TestData_MissThenHit(t *testing.T) {
	fx := newFixture(t)
	fx.up.status.Store(http.StatusOK)

	resp, body := fx.get(t, "/data")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if body != payload {
		t.Fatalf("body=%q want %q", body, payload)
	}
	if got := resp.Header.Get("X-Cache"); got != "MISS" {
		t.Fatalf("X-Cache=%q want MISS", got)
	}
	if got := resp.Header.Get("X-Fetched-At"); got != "2025-03-01T12:00:00Z" {
		t.Fatalf("X-Fetched-At=%q", got)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}

	fx.clock.Advance(time.Hour)
	resp, _ = fx.get(t, "/data")
	if got := resp.Header.Get("X-Cache"); got != "HIT" {
		t.Fatalf("X-Cache=%q want HIT", got)
	}
	if n := atomic.LoadInt32(&fx.up.calls); n != 1 {
		t.Fatalf("upstream calls=%d want 1", n)
	}
}

func TestData_StaleAfterFailedRefresh(t *testing.T) {
	fx := newFixture(t)
	fx.up.status.Store(http.StatusOK)
	fx.get(t, "/data")

	fx.clock.Advance(25 * time.Hour)
	fx.up.status.Store(http.StatusInternalServerError)

	resp, body := fx.get(t, "/data")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache"); got != "STALE" {
		t.Fatalf("X-Cache=%q want STALE", got)
	}
	if body != payload {
		t.Fatalf("body=%q", body)
	}
	if n := atomic.LoadInt32(&fx.up.calls); n != 2 {
		t.Fatalf("upstream calls=%d want 2", n)
	}
}

func TestStatus(t *testing.T) {
	fx := newFixture(t)

	_, body := fx.get(t, "/status")
	var empty statusResponse
	if err := json.Unmarshal([]byte(body), &empty); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if empty.State != "empty" || empty.FetchedAt != nil || empty.TTL != "24h0m0s" {
		t.Fatalf("empty status=%+v", empty)
	}
	if empty.URL != "http://upstream.test/data.json" {
		t.Fatalf("url=%q", empty.URL)
	}
	if n := atomic.LoadInt32(&fx.up.calls); n != 0 {
		t.Fatalf("status must not fetch, calls=%d", n)
	}

	fx.up.status.Store(http.StatusOK)
	fx.get(t, "/data")
	fx.clock.Advance(time.Hour)

	_, body = fx.get(t, "/status")
	var fresh statusResponse
	if err := json.Unmarshal([]byte(body), &fresh); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fresh.State != "fresh" || fresh.AgeSeconds != 3600 || fresh.AgeHuman != "1 hour ago" {
		t.Fatalf("fresh status=%+v", fresh)
	}

	fx.clock.Advance(24 * time.Hour)
	_, body = fx.get(t, "/status")
	if !strings.Contains(body, `"state":"stale"`) {
		t.Fatalf("stale status body=%s", body)
	}
}

func TestRequestID_Echo(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := fx.srv.App().Test(req)
	if err != nil {
		t.Fatalf("req err: %v", err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("X-Request-ID=%q", got)
	}

	resp, _ = fx.get(t, "/health")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t)
	fx.up.status.Store(http.StatusOK)
	fx.get(t, "/data")
	fx.get(t, "/data")

	resp, body := fx.get(t, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	for _, want := range []string{
		"datacache_cache_hits_total 1",
		"datacache_cache_misses_total 1",
		`datacache_http_requests_total{route="/data",status="200"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestRegisterRoutes_DebugConfig_DevOnly(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	fx := newFixture(t)
	resp, _ := fx.get(t, "/debug/config")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want %d", resp.StatusCode, http.StatusNotFound)
	}

	t.Setenv("APP_ENV", "dev")
	fx2 := newFixture(t)
	resp2, _ := fx2.get(t, "/debug/config")
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status2=%d want %d", resp2.StatusCode, http.StatusOK)
	}
}

func TestCfgAddress(t *testing.T) {
	if got := cfgAddress(""); got != ":" {
		t.Fatalf("got %q", got)
	}
	if got := cfgAddress(":9090"); got != ":9090" {
		t.Fatalf("got %q", got)
	}
}
