package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/logflow/internal/analytics"
	"github.com/gosight/logflow/internal/config"
	"github.com/gosight/logflow/internal/dashboard"
	"github.com/gosight/logflow/internal/event"
	"github.com/gosight/logflow/internal/insights"
	"github.com/gosight/logflow/internal/metrics"
	"github.com/gosight/logflow/internal/report"
	"github.com/gosight/logflow/internal/tracker"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fixture struct {
	tracker *tracker.Tracker
	server  *Server
	handler http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	tr := tracker.New(context.Background(), tracker.NewPage("/"), nil)
	opts.Tracker = tr
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Dashboard == nil {
		opts.Dashboard = dashboard.NewWatcher(tr, config.DashboardConfig{Timezone: "UTC"}, opts.Metrics)
	}
	s := New(opts)
	return &fixture{tracker: tr, server: s, handler: s.Router()}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", chromeUA)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestPostEvents_Single(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/v1/events",
		`{"type":"click","element_id":"btn_a","element_name":"Button A","metadata":{"plan":"pro"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[EventResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.AcceptedCount)

	events := f.tracker.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeClick, events[0].Type)
	assert.Equal(t, "/", events[0].Path)
	assert.Equal(t, "pro", events[0].Metadata["plan"])
	assert.Equal(t, "Chrome", events[0].Metadata["browser"])
	assert.Equal(t, "desktop", events[0].Metadata["device_type"])
}

func TestPostEvents_BatchWithRejects(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/v1/events", `{"events":[
		{"type":"page_view","path":"/pricing"},
		{"type":"hover","element_id":"x"},
		{"type":"click"},
		{"type":"form_submit","element_id":"signup","path":"/signup"}
	]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[EventResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, 2, resp.AcceptedCount)
	assert.Equal(t, 2, resp.RejectedCount)
	require.Len(t, resp.Errors, 2)
	assert.Contains(t, resp.Errors[0], `unknown event type "hover"`)
	assert.Contains(t, resp.Errors[1], "element_id is required")

	events := f.tracker.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "/pricing", events[0].ElementID)
	assert.Equal(t, "signup", events[1].ElementName)
	assert.Equal(t, []string{"/", "/pricing", "/signup"}, f.tracker.CurrentSession().Path)
}

func TestPostEvents_BadRequests(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/events", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/events", `{}`).Code)
	assert.Empty(t, f.tracker.Events())
}

func TestListEvents_Limit(t *testing.T) {
	f := newFixture(t, Options{})
	for _, id := range []string{"a", "b", "c"} {
		f.do(t, http.MethodPost, "/v1/events", `{"type":"click","element_id":"`+id+`"}`)
	}

	rec := f.do(t, http.MethodGet, "/v1/events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Events []event.Event `json:"events"`
		Total  int           `json:"total"`
	}](t, rec)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "b", body.Events[0].ElementID)
	assert.Equal(t, "c", body.Events[1].ElementID)
	assert.Equal(t, 3, body.Total)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/events?limit=x", "").Code)
}

// growingTracker records another event every time the log is read, as a
// concurrent writer would
type growingTracker struct {
	*tracker.Tracker
}

func (g growingTracker) Events() []event.Event {
	events := g.Tracker.Events()
	g.Record(context.Background(), tracker.Hit{Type: event.TypeClick, ElementID: "concurrent"})
	return events
}

func TestListEvents_TotalMatchesReadLog(t *testing.T) {
	tr := tracker.New(context.Background(), tracker.NewPage("/"), nil)
	tr.TrackClick(context.Background(), "a", "A", nil)
	s := New(Options{Tracker: growingTracker{tr}})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Events []event.Event `json:"events"`
		Total  int           `json:"total"`
	}](t, rec)
	assert.Len(t, body.Events, 1)
	assert.Equal(t, 1, body.Total)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, Options{})

	rec := f.do(t, http.MethodPost, "/v1/user", `{"user_id":"user_42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/user", `{}`).Code)

	rec = f.do(t, http.MethodGet, "/v1/session/current", "")
	cur := decode[struct {
		Session *event.Session `json:"session"`
	}](t, rec)
	require.NotNil(t, cur.Session)
	assert.Equal(t, "user_42", cur.Session.UserID)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/session/end", "").Code)
	rec = f.do(t, http.MethodGet, "/v1/sessions", "")
	sessions := decode[struct {
		Sessions []event.Session `json:"sessions"`
	}](t, rec)
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, event.StateEnded, sessions.Sessions[0].State)

	rec = f.do(t, http.MethodPost, "/v1/session/start", "")
	started := decode[struct {
		Session *event.Session `json:"session"`
	}](t, rec)
	require.NotNil(t, started.Session)
	assert.NotEqual(t, sessions.Sessions[0].ID, started.Session.ID)
}

func TestAnalyticsRoutes(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodPost, "/v1/events", `{"events":[
		{"type":"click","element_id":"btn_a","element_name":"Button A"},
		{"type":"click","element_id":"btn_a","element_name":"Button A"},
		{"type":"click","element_id":"btn_b","element_name":"Button B"},
		{"type":"form_submit","element_id":"signup","path":"/signup"}
	]}`)

	rec := f.do(t, http.MethodGet, "/v1/top?n=1", "")
	top := decode[struct {
		Top []analytics.Ranked `json:"top"`
	}](t, rec)
	require.Len(t, top.Top, 1)
	assert.Equal(t, "btn_a", top.Top[0].ElementID)
	assert.Equal(t, 2, top.Top[0].Count)

	rec = f.do(t, http.MethodGet, "/v1/breakdown", "")
	types := decode[struct {
		Types []analytics.TypeShare `json:"types"`
	}](t, rec)
	require.Len(t, types.Types, 2)
	assert.InDelta(t, 75.0, types.Types[0].Percentage, 1e-9)

	rec = f.do(t, http.MethodGet, "/v1/timeline?range=24h", "")
	hourly := decode[struct {
		Buckets []analytics.Bucket `json:"buckets"`
	}](t, rec)
	assert.Len(t, hourly.Buckets, 24)

	rec = f.do(t, http.MethodGet, "/v1/timeline?range=7d", "")
	daily := decode[struct {
		Buckets []analytics.Bucket `json:"buckets"`
	}](t, rec)
	assert.Len(t, daily.Buckets, 7)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/timeline?range=1y", "").Code)

	rec = f.do(t, http.MethodGet, "/v1/dashboard", "")
	summary := decode[analytics.Summary](t, rec)
	assert.Equal(t, 4, summary.TotalEvents)
	assert.InDelta(t, 100.0, summary.ConversionRate, 1e-9)

	rec = f.do(t, http.MethodPost, "/v1/funnel", `{"steps":["/","/signup"]}`)
	funnel := decode[struct {
		Steps []analytics.FunnelStep `json:"steps"`
	}](t, rec)
	require.Len(t, funnel.Steps, 2)
	assert.Equal(t, 1, funnel.Steps[1].Sessions)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/funnel", `{}`).Code)
}

func TestInsights(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodPost, "/v1/events", `{"events":[
		{"type":"click","element_id":"buy"},
		{"type":"click","element_id":"buy"},
		{"type":"click","element_id":"buy"},
		{"type":"page_view","path":"/thanks"}
	]}`)

	rec := f.do(t, http.MethodGet, "/v1/insights", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Insights []insights.Insight    `json:"insights"`
		Counts   map[insights.Kind]int `json:"counts"`
	}](t, rec)
	assert.Equal(t, 1, body.Counts[insights.KindRageClick])
	require.NotEmpty(t, body.Insights)

	rec = f.do(t, http.MethodGet, "/v1/insights?kind=slow_page", "")
	body = decode[struct {
		Insights []insights.Insight    `json:"insights"`
		Counts   map[insights.Kind]int `json:"counts"`
	}](t, rec)
	assert.Empty(t, body.Insights)
}

func TestReport(t *testing.T) {
	f := newFixture(t, Options{TimeRange: "last 7 days"})
	f.do(t, http.MethodPost, "/v1/events", `{"type":"click","element_id":"btn_a","element_name":"Button A"}`)

	rec := f.do(t, http.MethodPost, "/v1/report", `{"time_range":"today"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	doc := decode[struct {
		Report report.Structured `json:"report"`
	}](t, rec)
	assert.Equal(t, "today", doc.Report.TimeRange)

	rec = f.do(t, http.MethodPost, "/v1/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	doc = decode[struct {
		Report report.Structured `json:"report"`
	}](t, rec)
	assert.Equal(t, "last 7 days", doc.Report.TimeRange)
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ report.Request) (report.Result, error) {
	<-ctx.Done()
	return report.Result{}, ctx.Err()
}

func TestReport_Timeout(t *testing.T) {
	f := newFixture(t, Options{Generator: slowGenerator{}, ReportTimeout: 10 * time.Millisecond})
	rec := f.do(t, http.MethodPost, "/v1/report", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	// tracking is unaffected
	f.do(t, http.MethodPost, "/v1/events", `{"type":"click","element_id":"btn"}`)
	assert.Len(t, f.tracker.Events(), 1)
}

func TestClearData(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodPost, "/v1/events", `{"type":"click","element_id":"btn"}`)

	rec := f.do(t, http.MethodDelete, "/v1/data", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.tracker.Events())
	assert.Empty(t, f.tracker.Sessions())
	assert.Nil(t, f.tracker.CurrentSession())
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, Options{})
	f.do(t, http.MethodPost, "/v1/events", `{"type":"api_call","element_id":"GET /users"}`)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `logflow_events_tracked_total{type="api_call"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodOptions, "/v1/events", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	l := NewMemoryLimiter(2)
	l.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	f := newFixture(t, Options{Limiter: l})
	body := `{"type":"click","element_id":"btn"}`

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/v1/events", body).Code)
	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/v1/events", body).Code)

	rec := f.do(t, http.MethodPost, "/v1/events", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, []string{"Rate limit exceeded"}, decode[EventResponse](t, rec).Errors)

	assert.Len(t, f.tracker.Events(), 2)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
}

func TestMemoryLimiter_Window(t *testing.T) {
	l := NewMemoryLimiter(2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "a"))
	assert.False(t, l.Allow(ctx, "a"))
	assert.True(t, l.Allow(ctx, "b"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow(ctx, "a"))
}

func TestNewLimiter(t *testing.T) {
	l, err := NewLimiter(config.RateLimitConfig{}, config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = NewLimiter(config.RateLimitConfig{RequestsPerSecond: 5, Backend: "memory"}, config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)

	_, err = NewLimiter(config.RateLimitConfig{RequestsPerSecond: 5, Backend: "etcd"}, config.RedisConfig{})
	assert.Error(t, err)
}
