package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const analysesURI = "advisor://analyses"

// AnalysisResponse aligns with the HTTP result set and adds the settle flag
// agents poll on.
type AnalysisResponse struct {
	SessionID string            `json:"session_id" jsonschema_description:"Session the analysis belongs to"`
	Settled   bool              `json:"settled" jsonschema_description:"True once every category succeeded or failed"`
	Result    *domain.ResultSet `json:"result" jsonschema_description:"Latest result set"`
}

// StartArgs are the inputs of the start_analysis tool.
type StartArgs struct {
	Amount          float64 `json:"amount"`
	RiskTolerance   string  `json:"risk_tolerance"`
	HorizonMonths   int     `json:"horizon_months,omitempty"`
	Period          string  `json:"period,omitempty"`
	ExplanationMode string  `json:"explanation_mode,omitempty"`
}

// SessionArgs identify a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// RetryTaskArgs are the inputs of the retry_task tool.
type RetryTaskArgs struct {
	SessionID string `json:"session_id"`
	Category  string `json:"category"`
}

// ModeArgs are the inputs of the set_explanation_mode tool.
type ModeArgs struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

// StartResponse is returned by start_analysis.
type StartResponse struct {
	SessionID string `json:"session_id"`
}

// RetryResponse is returned by retry_analysis.
type RetryResponse struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
}

// ListResponse is returned by list_analyses.
type ListResponse struct {
	Sessions []string `json:"sessions"`
}

// Server wraps the session layer and exposes it as an MCP Server.
type Server struct {
	analyzer  ports.Analyzer
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(an ports.Analyzer, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		analyzer:  an,
		logger:    logger,
		mcpServer: server.NewMCPServer("advisor-mcp", strings.TrimSpace(version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	startTool := mcp.NewTool("start_analysis",
		mcp.WithDescription("Start a portfolio analysis. Every category runs concurrently; poll get_analysis until settled."),
		mcp.WithNumber("amount", mcp.Required(), mcp.Description("Amount to invest (positive)")),
		mcp.WithString("risk_tolerance", mcp.Required(), mcp.Description("conservative, moderate, aggressive or a 1-10 score")),
		mcp.WithNumber("horizon_months", mcp.Description("Investment horizon in months")),
		mcp.WithString("period", mcp.Description("Horizon shortcut used when horizon_months is absent"), mcp.Enum("1year", "3years", "5years", "10years")),
		mcp.WithString("explanation_mode", mcp.Description("Explanation method"), mcp.Enum("fast", "accurate")),
		mcp.WithOutputSchema[StartResponse](),
	)
	s.mcpServer.AddTool(startTool, mcp.NewStructuredToolHandler(s.handleStart))

	getTool := mcp.NewTool("get_analysis",
		mcp.WithDescription("Get the latest result set of an analysis."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session returned by start_analysis")),
		mcp.WithOutputSchema[AnalysisResponse](),
	)
	s.mcpServer.AddTool(getTool, mcp.NewStructuredToolHandler(s.handleGet))

	listTool := mcp.NewTool("list_analyses",
		mcp.WithDescription("List the known analysis sessions."),
		mcp.WithOutputSchema[ListResponse](),
	)
	s.mcpServer.AddTool(listTool, mcp.NewStructuredToolHandler(s.handleList))

	retryTaskTool := mcp.NewTool("retry_task",
		mcp.WithDescription("Re-run one failed category within the current run."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category to retry"),
			mcp.Enum("allocation", "explanation", "performance", "correlation", "riskReturn")),
		mcp.WithOutputSchema[AnalysisResponse](),
	)
	s.mcpServer.AddTool(retryTaskTool, mcp.NewStructuredToolHandler(s.handleRetryTask))

	retryTool := mcp.NewTool("retry_analysis",
		mcp.WithDescription("Restart every category under a new run. Late answers of the previous run are dropped."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithOutputSchema[RetryResponse](),
	)
	s.mcpServer.AddTool(retryTool, mcp.NewStructuredToolHandler(s.handleRetryAnalysis))

	modeTool := mcp.NewTool("set_explanation_mode",
		mcp.WithDescription("Regenerate the explanation with another method."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("mode", mcp.Required(), mcp.Description("Explanation method"), mcp.Enum("fast", "accurate")),
		mcp.WithOutputSchema[AnalysisResponse](),
	)
	s.mcpServer.AddTool(modeTool, mcp.NewStructuredToolHandler(s.handleSetMode))
}

func (s *Server) handleStart(ctx context.Context, _ mcp.CallToolRequest, args StartArgs) (StartResponse, error) {
	risk, err := domain.ParseRiskTolerance(args.RiskTolerance)
	if err != nil {
		return StartResponse{}, err
	}
	mode, err := domain.ParseExplanationMode(args.ExplanationMode)
	if err != nil {
		return StartResponse{}, err
	}
	horizon := args.HorizonMonths
	if horizon == 0 {
		horizon = domain.HorizonFromPeriod(args.Period)
	}

	id, err := s.analyzer.Start(ctx, domain.AnalysisContext{
		Amount:          args.Amount,
		RiskTolerance:   risk,
		HorizonMonths:   horizon,
		ExplanationMode: mode,
	})
	if err != nil {
		return StartResponse{}, fmt.Errorf("start failed: %w", err)
	}
	s.logger.Info("MCP: Analysis started", "session_id", id)
	return StartResponse{SessionID: id}, nil
}

func (s *Server) handleGet(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (AnalysisResponse, error) {
	return s.analysis(ctx, args.SessionID)
}

func (s *Server) handleList(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (ListResponse, error) {
	ids, err := s.analyzer.List(ctx)
	if err != nil {
		return ListResponse{}, fmt.Errorf("list failed: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ListResponse{Sessions: ids}, nil
}

func (s *Server) handleRetryTask(ctx context.Context, _ mcp.CallToolRequest, args RetryTaskArgs) (AnalysisResponse, error) {
	c, err := domain.ParseCategory(args.Category)
	if err != nil {
		return AnalysisResponse{}, err
	}
	if err := s.analyzer.RetryTask(ctx, args.SessionID, c); err != nil {
		return AnalysisResponse{}, fmt.Errorf("retry failed: %w", err)
	}
	return s.analysis(ctx, args.SessionID)
}

func (s *Server) handleRetryAnalysis(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (RetryResponse, error) {
	gen, err := s.analyzer.RetryAnalysis(ctx, args.SessionID)
	if err != nil {
		return RetryResponse{}, fmt.Errorf("retry failed: %w", err)
	}
	return RetryResponse{SessionID: args.SessionID, Generation: gen}, nil
}

func (s *Server) handleSetMode(ctx context.Context, _ mcp.CallToolRequest, args ModeArgs) (AnalysisResponse, error) {
	mode, err := domain.ParseExplanationMode(args.Mode)
	if err != nil {
		return AnalysisResponse{}, err
	}
	if err := s.analyzer.SetExplanationMode(ctx, args.SessionID, mode); err != nil {
		return AnalysisResponse{}, fmt.Errorf("set explanation mode failed: %w", err)
	}
	return s.analysis(ctx, args.SessionID)
}

func (s *Server) analysis(ctx context.Context, sessionID string) (AnalysisResponse, error) {
	if sessionID == "" {
		return AnalysisResponse{}, errors.New("session_id is required")
	}
	rs, err := s.analyzer.Snapshot(ctx, sessionID)
	if err != nil {
		return AnalysisResponse{}, fmt.Errorf("get analysis failed: %w", err)
	}
	return AnalysisResponse{SessionID: sessionID, Settled: rs.Settled(), Result: rs}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(analysesURI, "Analysis sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.handleList(ctx, mcp.CallToolRequest{}, struct{}{})
		if err != nil {
			return nil, err
		}
		jsonBytes, _ := json.Marshal(list)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      analysesURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
