package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Server exposes analysis sessions over REST and server-sent events.
type Server struct {
	Analyzer ports.Analyzer

	logger  *slog.Logger
	version string
	metrics http.Handler
}

// Option configures the handler built by NewHandler.
type Option func(*Server)

// WithLogger sets the logger used for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the build version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(v)
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates a new HTTP handler for the analyzer.
func NewHandler(an ports.Analyzer, opts ...Option) (http.Handler, error) {
	s := &Server{
		Analyzer: an,
		logger:   slog.Default(),
		version:  "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	v, err := newValidator(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(v.middleware)
		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo)
		r.Get("/analyses", s.ListAnalyses)
		r.Post("/analyses", s.StartAnalysis)
		r.Route("/analyses/{sessionId}", func(r chi.Router) {
			r.Get("/", s.GetAnalysis)
			r.Post("/retry", s.RetryAnalysis)
			r.Post("/tasks/{category}/retry", s.RetryTask)
			r.Put("/explanation-mode", s.SetExplanationMode)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Advisor API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// AnalysisRequest is the body of POST /analyses.
type AnalysisRequest struct {
	Amount          float64 `json:"amount"`
	RiskTolerance   string  `json:"risk_tolerance"`
	HorizonMonths   int     `json:"horizon_months,omitempty"`
	Period          string  `json:"period,omitempty"`
	ExplanationMode string  `json:"explanation_mode,omitempty"`
}

// Context converts the request into analysis inputs. An explicit horizon wins
// over the period shortcut.
func (req AnalysisRequest) Context() (domain.AnalysisContext, error) {
	risk, err := domain.ParseRiskTolerance(req.RiskTolerance)
	if err != nil {
		return domain.AnalysisContext{}, err
	}
	mode, err := domain.ParseExplanationMode(req.ExplanationMode)
	if err != nil {
		return domain.AnalysisContext{}, err
	}
	horizon := req.HorizonMonths
	if horizon == 0 {
		horizon = domain.HorizonFromPeriod(req.Period)
	}
	ac := domain.AnalysisContext{
		Amount:          req.Amount,
		RiskTolerance:   risk,
		HorizonMonths:   horizon,
		ExplanationMode: mode,
	}
	return ac, ac.Validate()
}

// StartAnalysis handles the POST /analyses request.
func (s *Server) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	var body AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("StartAnalysis: Invalid request body", "error", err)
		return
	}
	ac, err := body.Context()
	if err != nil {
		s.fail(w, "StartAnalysis", err)
		return
	}

	id, err := s.Analyzer.Start(r.Context(), ac)
	if err != nil {
		s.fail(w, "StartAnalysis", err)
		return
	}
	w.Header().Set("Location", "/analyses/"+id)
	s.writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// ListAnalyses handles the GET /analyses request.
func (s *Server) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Analyzer.List(r.Context())
	if err != nil {
		s.fail(w, "ListAnalyses", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// GetAnalysis handles the GET /analyses/{sessionId} request.
func (s *Server) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	rs, err := s.Analyzer.Snapshot(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		s.fail(w, "GetAnalysis", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rs)
}

// RetryAnalysis handles the POST /analyses/{sessionId}/retry request.
func (s *Server) RetryAnalysis(w http.ResponseWriter, r *http.Request) {
	gen, err := s.Analyzer.RetryAnalysis(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		s.fail(w, "RetryAnalysis", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]uint64{"generation": gen})
}

// RetryTask handles the POST /analyses/{sessionId}/tasks/{category}/retry request.
func (s *Server) RetryTask(w http.ResponseWriter, r *http.Request) {
	c, err := domain.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.fail(w, "RetryTask", err)
		return
	}
	if err := s.Analyzer.RetryTask(r.Context(), chi.URLParam(r, "sessionId"), c); err != nil {
		s.fail(w, "RetryTask", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SetExplanationMode handles the PUT /analyses/{sessionId}/explanation-mode request.
func (s *Server) SetExplanationMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SetExplanationMode: Invalid request body", "error", err)
		return
	}
	mode, err := domain.ParseExplanationMode(body.Mode)
	if err != nil {
		s.fail(w, "SetExplanationMode", err)
		return
	}
	if err := s.Analyzer.SetExplanationMode(r.Context(), chi.URLParam(r, "sessionId"), mode); err != nil {
		s.fail(w, "SetExplanationMode", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "advisor-http",
		"version":     s.version,
		"api_version": apiVersion,
	})
}

// SubscribeEvents handles the GET /analyses/{sessionId}/events request (SSE).
// The first event carries the whole result set; later ones only the changed tasks.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	watch, err := parseWatch(r.URL.Query().Get("watch"))
	if err != nil {
		s.fail(w, "SubscribeEvents", err)
		return
	}

	diffs, err := s.Analyzer.Watch(r.Context(), sessionID)
	if err != nil {
		s.fail(w, "SubscribeEvents", err)
		return
	}
	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case diff, ok := <-diffs:
			if !ok {
				return
			}
			diff = filterDiff(diff, watch)
			if diff == nil {
				continue
			}
			data, err := json.Marshal(diff)
			if err != nil {
				s.logger.Error("SSE: Encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func parseWatch(raw string) (map[domain.Category]bool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	watch := make(map[domain.Category]bool)
	for _, field := range strings.Split(raw, ",") {
		c, err := domain.ParseCategory(strings.TrimSpace(field))
		if err != nil {
			return nil, err
		}
		watch[c] = true
	}
	return watch, nil
}

// filterDiff keeps only the watched categories. Resets always go through so
// clients can drop their local state.
func filterDiff(diff *domain.SnapshotDiff, watch map[domain.Category]bool) *domain.SnapshotDiff {
	if diff == nil || len(watch) == 0 {
		return diff
	}
	out := &domain.SnapshotDiff{
		SessionID:  diff.SessionID,
		Generation: diff.Generation,
		Reset:      diff.Reset,
	}
	for c, t := range diff.Tasks {
		if !watch[c] {
			continue
		}
		if out.Tasks == nil {
			out.Tasks = make(map[domain.Category]domain.Task)
		}
		out.Tasks[c] = t
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidContext), errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoActiveRun), errors.Is(err, runtime.ErrMissingAllocation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
