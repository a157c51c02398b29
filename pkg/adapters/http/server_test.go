package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/internal/testutils"
	advisorhttp "github.com/aretw0/advisor/pkg/adapters/http"
	"github.com/aretw0/advisor/pkg/adapters/memory"
	"github.com/aretw0/advisor/pkg/clock"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/gateway"
	"github.com/aretw0/advisor/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     *testutils.ScoringService
	mgr     *session.Manager
	handler http.Handler
}

func newFixture(t *testing.T, opts ...advisorhttp.Option) *fixture {
	t.Helper()
	svc := testutils.NewScoringService(t)

	var mu sync.Mutex
	n := 0
	ids := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	}
	factory := func(id string) *runtime.Engine {
		fake := clock.NewFake()
		gw := gateway.New(svc.URL, gateway.WithClock(fake))
		return runtime.NewEngine(gw, runtime.WithSessionID(id), runtime.WithClock(fake))
	}
	mgr := session.NewManager(factory, memory.NewStore(), session.WithIDGenerator(ids))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})

	h, err := advisorhttp.NewHandler(mgr, opts...)
	require.NoError(t, err)
	return &fixture{svc: svc, mgr: mgr, handler: h}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	w := f.do("POST", "/analyses", `{"amount": 1000000, "risk_tolerance": "moderate", "period": "1year"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id := resp["session_id"]
	require.NotEmpty(t, id)
	assert.Equal(t, "/analyses/"+id, w.Header().Get("Location"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.mgr.Wait(ctx, id))
	return id
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t, advisorhttp.WithVersion("1.2.3\n"))

	w := f.do("GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = f.do("GET", "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "1.0.0", info["api_version"])

	w = f.do("GET", "/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
}

func TestStartAndGetAnalysis(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	w := f.do("GET", "/analyses/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	var rs domain.ResultSet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rs))
	assert.True(t, rs.Settled())
	assert.Equal(t, id, rs.SessionID)
	assert.Equal(t, 12, rs.Context.HorizonMonths)
	assert.Len(t, rs.Allocation(), 3)

	w = f.do("GET", "/analyses", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":["`+id+`"]}`, w.Body.String())
}

func TestStartAnalysis_Rejects(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"non-positive amount", `{"amount": 0, "risk_tolerance": "moderate"}`},
		{"unknown risk", `{"amount": 100, "risk_tolerance": "reckless"}`},
		{"unknown mode", `{"amount": 100, "risk_tolerance": "moderate", "explanation_mode": "slow"}`},
		{"unknown field", `{"amount": 100, "risk_tolerance": "moderate", "leverage": 3}`},
		{"missing risk", `{"amount": 100}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do("POST", "/analyses", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	ids, err := f.mgr.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRiskScoreIsAccepted(t *testing.T) {
	f := newFixture(t)
	w := f.do("POST", "/analyses", `{"amount": 500, "risk_tolerance": "9", "horizon_months": 36}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	snap, err := f.mgr.Snapshot(context.Background(), resp["session_id"])
	require.NoError(t, err)
	assert.Equal(t, domain.RiskAggressive, snap.Context.RiskTolerance)
	assert.Equal(t, 36, snap.Context.HorizonMonths)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do("GET", "/analyses/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do("POST", "/analyses/nope/retry", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do("POST", "/analyses/nope/tasks/allocation/retry", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/analyses/nope/events", "").Code)
}

func TestRetries(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	w := f.do("POST", "/analyses/"+id+"/retry", "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"generation":2}`, w.Body.String())

	w = f.do("POST", "/analyses/"+id+"/tasks/xai/retry", "")
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = f.do("POST", "/analyses/"+id+"/tasks/weather/retry", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryTask_WithoutAllocation(t *testing.T) {
	f := newFixture(t)
	f.svc.Fail(gateway.EndpointPredict, http.StatusServiceUnavailable)
	id := f.start(t)

	w := f.do("POST", "/analyses/"+id+"/tasks/correlation/retry", "")
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "allocation not available")
}

func TestSetExplanationMode(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	w := f.do("PUT", "/analyses/"+id+"/explanation-mode", `{"mode": "accurate"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.mgr.Wait(ctx, id))
	snap, err := f.mgr.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeAccurate, snap.Context.ExplanationMode)

	w = f.do("PUT", "/analyses/"+id+"/explanation-mode", `{"mode": "slow"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	w := f.do("OPTIONS", "/analyses", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("advisor_up 1\n"))
	})
	f := newFixture(t, advisorhttp.WithMetrics(metrics))

	w := f.do("GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "advisor_up")

	bare := newFixture(t)
	assert.Equal(t, http.StatusNotFound, bare.do("GET", "/metrics", "").Code)
}

func TestSubscribeEvents(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/analyses/"+id+"/events?watch=allocation,xai", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	var diff domain.SnapshotDiff
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if payload, ok := strings.CutPrefix(line, "data: {"); ok {
			require.NoError(t, json.Unmarshal([]byte("{"+payload), &diff))
			break
		}
	}
	cancel()

	assert.Contains(t, lines, "event: ping")
	assert.Equal(t, id, diff.SessionID)
	assert.Len(t, diff.Tasks, 2)
	assert.Equal(t, domain.StatusSuccess, diff.Tasks[domain.CategoryAllocation].Status)
	assert.Contains(t, diff.Tasks, domain.CategoryExplanation)
}

func TestSubscribeEvents_BadWatch(t *testing.T) {
	f := newFixture(t)
	id := f.start(t)

	w := f.do("GET", "/analyses/"+id+"/events?watch=weather", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
