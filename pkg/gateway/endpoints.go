package gateway

import "github.com/aretw0/advisor/pkg/domain"

// Scoring service routes.
const (
	EndpointPredict               = "/predict"
	EndpointExplain               = "/explain"
	EndpointHistoricalPerformance = "/historical-performance"
	EndpointCorrelation           = "/correlation-analysis"
	EndpointRiskReturn            = "/risk-return-analysis"
	EndpointHealth                = "/health"
	EndpointMarketStatus          = "/market-status"
)

// EndpointFor maps a category to the route that computes it.
func EndpointFor(c domain.Category) string {
	switch c {
	case domain.CategoryAllocation:
		return EndpointPredict
	case domain.CategoryExplanation:
		return EndpointExplain
	case domain.CategoryPerformance:
		return EndpointHistoricalPerformance
	case domain.CategoryCorrelation:
		return EndpointCorrelation
	case domain.CategoryRiskReturn:
		return EndpointRiskReturn
	}
	return ""
}

// PredictRequest is the body of /predict.
type PredictRequest struct {
	InvestmentAmount  float64              `json:"investment_amount"`
	RiskTolerance     domain.RiskTolerance `json:"risk_tolerance"`
	InvestmentHorizon int                  `json:"investment_horizon"`
}

// ExplainRequest is the body of /explain.
type ExplainRequest struct {
	InvestmentAmount  float64                `json:"investment_amount"`
	RiskTolerance     domain.RiskTolerance   `json:"risk_tolerance"`
	InvestmentHorizon int                    `json:"investment_horizon"`
	Method            domain.ExplanationMode `json:"method"`
}

// AllocationRequest is the body of /historical-performance and /risk-return-analysis.
type AllocationRequest struct {
	PortfolioAllocation []domain.AllocationItem `json:"portfolio_allocation"`
	Period              string                  `json:"period,omitempty"`
}

// CorrelationRequest is the body of /correlation-analysis.
type CorrelationRequest struct {
	Tickers []string `json:"tickers"`
	Period  string   `json:"period"`
}

// NewPredictRequest builds the /predict body from the run inputs.
func NewPredictRequest(ac domain.AnalysisContext) PredictRequest {
	return PredictRequest{
		InvestmentAmount:  ac.Amount,
		RiskTolerance:     ac.RiskTolerance,
		InvestmentHorizon: ac.HorizonMonths,
	}
}

// NewExplainRequest builds the /explain body from the run inputs.
func NewExplainRequest(ac domain.AnalysisContext) ExplainRequest {
	return ExplainRequest{
		InvestmentAmount:  ac.Amount,
		RiskTolerance:     ac.RiskTolerance,
		InvestmentHorizon: ac.HorizonMonths,
		Method:            ac.ExplanationMode,
	}
}

// MarketQuote is one entry of the market status board.
type MarketQuote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	LastUpdated   string  `json:"last_updated"`
}

// MarketStatus is the response of /market-status.
type MarketStatus struct {
	MarketData  []MarketQuote `json:"market_data"`
	LastUpdated string        `json:"last_updated"`
}
