package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/0xPexy/aletta-backend/internal/analysis"
	"github.com/0xPexy/aletta-backend/internal/auth"
	"github.com/0xPexy/aletta-backend/internal/config"
	"github.com/0xPexy/aletta-backend/internal/diagnosis"
	"github.com/0xPexy/aletta-backend/internal/logging"
	"github.com/0xPexy/aletta-backend/internal/metrics"
	"github.com/0xPexy/aletta-backend/internal/store"
	"github.com/0xPexy/aletta-backend/internal/tracing"
)

const testTx = "0x9f1b5d0c1e6f5a0a4b2c3d4e5f60718293a4b5c6d7e8f90123456789abcdef01"

type fakeSource struct {
	frames []diagnosis.RawCallFrame
	err    error
}

func (f *fakeSource) Fetch(_ context.Context, chain string, _ common.Hash) (*tracing.Trace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &tracing.Trace{Network: testChains().Resolve(chain), Frames: f.frames}, nil
}

func testChains() config.ChainConfig {
	return config.ChainConfig{
		Default: "arbitrum-one",
		Networks: map[string]config.Network{
			"arbitrum-one": {Name: "arbitrum-one", RPCURL: "https://arb1.arbitrum.io/rpc", ChainID: 42161, Stylus: true},
		},
	}
}

func revertedTrace() []diagnosis.RawCallFrame {
	return []diagnosis.RawCallFrame{{
		Type:    "CALL",
		From:    "0x1000000000000000000000000000000000000001",
		To:      "0x4000000000000000000000000000000000000004",
		Gas:     "0x186a0",
		GasUsed: "0x5208",
		Input:   "0xa9059cbb",
		Error:   "execution reverted: insufficient balance",
	}}
}

type testEnv struct {
	router *gin.Engine
	hub    *EventHub
	auth   *auth.Service
}

func newTestEnv(t *testing.T, src analysis.TraceSource, authCfg config.AuthConfig) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hub := NewEventHub(logging.Discard())
	m := metrics.New()
	svc := analysis.NewService(analysis.Options{
		Config:    config.AnalyzerConfig{Timeout: time.Second, ReportTTL: time.Hour},
		Chains:    testChains(),
		Source:    src,
		Store:     store.NewRepository(db),
		Publisher: hub,
		Metrics:   m.Analysis,
		Logger:    logging.Discard(),
	})
	authSvc := auth.NewService(authCfg)
	return &testEnv{router: NewRouter(svc, authSvc, hub, m), hub: hub, auth: authSvc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type reportBody struct {
	Report struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		RootCause string `json:"root_cause"`
		Chain     string `json:"chain"`
	} `json:"report"`
	Cached bool `json:"cached"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeSource{}, config.AuthConfig{})
	w := env.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode[map[string]string](t, w)
	if body["status"] != "ok" || body["service"] != "aletta-backend" || body["version"] == "" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestAnalyzeAndFetchReport(t *testing.T) {
	env := newTestEnv(t, &fakeSource{frames: revertedTrace()}, config.AuthConfig{})

	w := env.do(t, http.MethodPost, "/api/analyze", analysis.Request{Name: "transfer", Chain: "arbitrum-one", TxHash: testTx}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[reportBody](t, w)
	if created.Report.Status != "reverted" {
		t.Fatalf("expected reverted, got %q", created.Report.Status)
	}
	if !strings.Contains(created.Report.RootCause, "insufficient balance") {
		t.Fatalf("unexpected root cause %q", created.Report.RootCause)
	}

	w = env.do(t, http.MethodGet, "/api/report/"+created.Report.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[reportBody](t, w); got.Report.ID != created.Report.ID {
		t.Fatalf("expected id %s, got %s", created.Report.ID, got.Report.ID)
	}

	w = env.do(t, http.MethodGet, "/api/reports?tx_hash="+testTx+"&chain=arbitrum-one", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decode[reportBody](t, w); got.Report.ID != created.Report.ID {
		t.Fatalf("expected latest report %s, got %s", created.Report.ID, got.Report.ID)
	}

	w = env.do(t, http.MethodPost, "/api/analyze", analysis.Request{Chain: "arbitrum-one", TxHash: testTx}, nil)
	if again := decode[reportBody](t, w); !again.Cached || again.Report.ID != created.Report.ID {
		t.Fatalf("expected cached report %s, got %+v", created.Report.ID, again)
	}

	w = env.do(t, http.MethodGet, "/api/reports?chain=arbitrum-one", nil, nil)
	list := decode[struct {
		Items []analysis.Summary `json:"items"`
	}](t, w)
	if len(list.Items) != 1 || list.Items[0].Name != "transfer" {
		t.Fatalf("unexpected listing %+v", list.Items)
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		source *fakeSource
		body   any
		want   int
	}{
		{name: "empty body", source: &fakeSource{}, want: http.StatusBadRequest},
		{name: "bad hash", source: &fakeSource{}, body: analysis.Request{TxHash: "0xabc"}, want: http.StatusBadRequest},
		{name: "not found", source: &fakeSource{err: errors.Wrap(tracing.ErrNotFound, "trace")}, body: analysis.Request{TxHash: testTx}, want: http.StatusNotFound},
		{name: "chain down", source: &fakeSource{err: errors.Wrap(tracing.ErrChainUnavailable, "dial")}, body: analysis.Request{TxHash: testTx}, want: http.StatusBadGateway},
		{name: "timeout", source: &fakeSource{err: errors.Wrap(context.DeadlineExceeded, "trace")}, body: analysis.Request{TxHash: testTx}, want: http.StatusGatewayTimeout},
		{name: "canceled", source: &fakeSource{err: errors.Wrap(context.Canceled, "trace")}, body: analysis.Request{TxHash: testTx}, want: statusClientClosedRequest},
		{name: "malformed", source: &fakeSource{frames: []diagnosis.RawCallFrame{{Type: "CALL", From: "nope"}}}, body: analysis.Request{TxHash: testTx}, want: http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.source, config.AuthConfig{})
			w := env.do(t, http.MethodPost, "/api/analyze", tc.body, nil)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			body := decode[errorResponse](t, w)
			if body.Error == "" {
				t.Fatalf("expected error message in %s", w.Body.String())
			}
		})
	}
}

func TestReportNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeSource{}, config.AuthConfig{})
	for _, path := range []string{
		"/api/report/00000000-0000-4000-8000-000000000000",
		"/api/report/garbage",
		"/api/reports?tx_hash=" + testTx,
	} {
		if w := env.do(t, http.MethodGet, path, nil, nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestAnalyzeRequiresTokenWhenEnabled(t *testing.T) {
	env := newTestEnv(t, &fakeSource{frames: revertedTrace()}, config.AuthConfig{JWTSecret: "s3cret", JWTTTL: time.Hour})
	req := analysis.Request{TxHash: testTx}

	if w := env.do(t, http.MethodPost, "/api/analyze", req, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	token, err := env.auth.Issue("tester")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	w := env.do(t, http.MethodPost, "/api/analyze", req, http.Header{"Authorization": {"Bearer " + token}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	// Reads stay public.
	if w := env.do(t, http.MethodGet, "/api/reports", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("expected public listing, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, &fakeSource{}, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Authorization")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, &fakeSource{}, config.AuthConfig{})
	env.do(t, http.MethodGet, "/health", nil, nil)
	w := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `aletta_http_requests_total{handler="/health",method="GET",status_class="2xx"} 1`) {
		t.Fatalf("missing http metric in:\n%s", w.Body.String())
	}
}

func TestEventsStreamReports(t *testing.T) {
	env := newTestEnv(t, &fakeSource{frames: revertedTrace()}, config.AuthConfig{})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(srv.URL+"/api/analyze", "application/json",
		strings.NewReader(`{"chain":"arbitrum-one","tx_hash":"`+testTx+`"}`))
	if err != nil {
		t.Fatalf("post analyze: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		Type   string           `json:"type"`
		Report analysis.Summary `json:"report"`
	}
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != "report.created" || event.Report.TxHash != testTx || event.Report.Status != "reverted" {
		t.Fatalf("unexpected event %+v", event)
	}
}
