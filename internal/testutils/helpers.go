package testutils

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/gateway"
)

// Responder answers one request to the fake scoring service.
type Responder func(w http.ResponseWriter, r *http.Request, body []byte)

// ScoringService is an httptest server mimicking the remote scoring API.
// Every route answers with a canned payload until overridden.
type ScoringService struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Responder
	calls    map[string]int
	bodies   map[string][]json.RawMessage
}

// NewScoringService starts the fake service and closes it when t ends.
func NewScoringService(t testing.TB) *ScoringService {
	t.Helper()

	s := &ScoringService{
		handlers: make(map[string]Responder),
		calls:    make(map[string]int),
		bodies:   make(map[string][]json.RawMessage),
	}
	for endpoint, payload := range DefaultResponses() {
		s.Respond(endpoint, http.StatusOK, payload)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *ScoringService) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls[r.URL.Path]++
	if len(body) > 0 {
		s.bodies[r.URL.Path] = append(s.bodies[r.URL.Path], json.RawMessage(body))
	}
	h, ok := s.handlers[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r, body)
}

// Handle overrides the responder of endpoint.
func (s *ScoringService) Handle(endpoint string, fn Responder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[endpoint] = fn
}

// Respond makes endpoint answer with status and payload encoded as JSON.
func (s *ScoringService) Respond(endpoint string, status int, payload any) {
	data, _ := json.Marshal(payload)
	s.Handle(endpoint, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(data)
	})
}

// Fail makes endpoint answer with an error status.
func (s *ScoringService) Fail(endpoint string, status int) {
	s.Handle(endpoint, func(w http.ResponseWriter, _ *http.Request, _ []byte) {
		http.Error(w, http.StatusText(status), status)
	})
}

// Hang makes endpoint never answer; the request ends when the client gives up.
func (s *ScoringService) Hang(endpoint string) {
	s.Handle(endpoint, func(_ http.ResponseWriter, r *http.Request, _ []byte) {
		<-r.Context().Done()
	})
}

// Calls returns how many requests endpoint received.
func (s *ScoringService) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// LastBody decodes the last request body sent to endpoint into v.
// It reports false when endpoint was never called with a body.
func (s *ScoringService) LastBody(endpoint string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bodies[endpoint]
	if len(b) == 0 {
		return false
	}
	return json.Unmarshal(b[len(b)-1], v) == nil
}

// Context returns the inputs used across the test suites.
func Context() domain.AnalysisContext {
	return domain.AnalysisContext{
		Amount:          1_000_000,
		RiskTolerance:   domain.RiskModerate,
		HorizonMonths:   12,
		ExplanationMode: domain.ModeFast,
	}
}

// PredictResponse is a well-formed /predict answer for the given weights.
func PredictResponse(alloc ...domain.AllocationItem) map[string]any {
	items := make([]any, 0, len(alloc))
	for _, a := range alloc {
		items = append(items, map[string]any{"symbol": a.Symbol, "weight": a.Weight})
	}
	return map[string]any{
		"allocation": items,
		"metrics": map[string]any{
			"total_return":  18.5,
			"annual_return": 12.34,
			"sharpe_ratio":  1.2345,
			"sortino_ratio": 1.8,
			"max_drawdown":  8.2,
			"volatility":    14.1,
		},
	}
}

// DefaultResponses are the canned answers of every route.
func DefaultResponses() map[string]any {
	return map[string]any{
		gateway.EndpointPredict: PredictResponse(
			domain.AllocationItem{Symbol: "AAPL", Weight: 0.5},
			domain.AllocationItem{Symbol: "MSFT", Weight: 0.3},
			domain.AllocationItem{Symbol: domain.CashSymbol, Weight: 0.2},
		),
		gateway.EndpointExplain: map[string]any{
			"feature_importance": []any{
				map[string]any{"asset_name": "AAPL", "feature_name": "momentum", "importance_score": 0.42},
			},
			"attention_weights": []any{
				map[string]any{"from_asset": "AAPL", "to_asset": "MSFT", "weight": 0.3},
			},
			"explanation_text": "Large caps dominate the **allocation**.",
		},
		gateway.EndpointHistoricalPerformance: map[string]any{
			"performance_history": []any{
				map[string]any{"date": "2024-01-02", "portfolio": 100.0, "benchmark1": 100.0, "benchmark2": 100.0},
				map[string]any{"date": "2024-01-03", "portfolio": 101.2, "benchmark1": 100.4, "benchmark2": 100.9},
			},
		},
		gateway.EndpointCorrelation: map[string]any{
			"correlation_data": []any{
				map[string]any{"stock1": "AAPL", "stock2": "MSFT", "correlation": 0.71},
			},
		},
		gateway.EndpointRiskReturn: map[string]any{
			"risk_return_data": []any{
				map[string]any{"symbol": "AAPL", "risk": 24.1, "return_rate": 18.3, "allocation": 50.0},
				map[string]any{"symbol": "MSFT", "risk": 21.7, "return_rate": 15.2, "allocation": 30.0},
			},
		},
		gateway.EndpointHealth:       map[string]any{"status": "ok"},
		gateway.EndpointMarketStatus: map[string]any{"market_data": []any{}, "last_updated": "2024-01-02T09:00:00Z"},
	}
}
