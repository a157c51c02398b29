package domain

import "strings"

// CashSymbol is the placeholder the scoring service uses for the cash position.
const CashSymbol = "현금"

// IsCash reports whether symbol denotes the cash position rather than a ticker.
func IsCash(symbol string) bool {
	s := strings.TrimSpace(symbol)
	return s == CashSymbol || strings.EqualFold(s, "CASH")
}

// AllocationItem is one weighted position produced by the allocation task.
// Weights need not sum to exactly 1.
type AllocationItem struct {
	Symbol string  `json:"symbol" mapstructure:"symbol"`
	Weight float64 `json:"weight" mapstructure:"weight"`
}

// Holding is an allocation item resolved against the invested amount.
type Holding struct {
	Symbol     string  `json:"symbol"`
	Weight     float64 `json:"weight"`
	Percentage float64 `json:"percentage"`
	Amount     float64 `json:"amount"`
}

// MetricRow is one formatted line of the performance metrics table.
type MetricRow struct {
	Label      string `json:"label"`
	Portfolio  string `json:"portfolio"`
	Benchmark1 string `json:"benchmark1"`
	Benchmark2 string `json:"benchmark2"`
}

// QuickMetrics are the headline figures shown next to the allocation.
type QuickMetrics struct {
	AnnualReturn string `json:"annual_return"`
	SharpeRatio  string `json:"sharpe_ratio"`
	MaxDrawdown  string `json:"max_drawdown"`
	Volatility   string `json:"volatility"`
}

// Portfolio is the normalized result of the allocation category.
type Portfolio struct {
	Holdings []Holding    `json:"holdings"`
	Metrics  []MetricRow  `json:"metrics"`
	Quick    QuickMetrics `json:"quick"`
	Cash     *float64     `json:"cash,omitempty"`
}

// Allocation returns the raw weights behind the holdings.
func (p Portfolio) Allocation() []AllocationItem {
	items := make([]AllocationItem, 0, len(p.Holdings))
	for _, h := range p.Holdings {
		items = append(items, AllocationItem{Symbol: h.Symbol, Weight: h.Weight})
	}
	return items
}

// FeatureImportance attributes part of a decision to an input feature.
type FeatureImportance struct {
	AssetName       string  `json:"asset_name" mapstructure:"asset_name"`
	FeatureName     string  `json:"feature_name" mapstructure:"feature_name"`
	ImportanceScore float64 `json:"importance_score" mapstructure:"importance_score"`
}

// AttentionWeight links two assets in the model's attention map.
type AttentionWeight struct {
	FromAsset string  `json:"from_asset" mapstructure:"from_asset"`
	ToAsset   string  `json:"to_asset" mapstructure:"to_asset"`
	Weight    float64 `json:"weight" mapstructure:"weight"`
}

// Explanation is the normalized result of the explanation category.
type Explanation struct {
	FeatureImportance []FeatureImportance `json:"feature_importance"`
	AttentionWeights  []AttentionWeight   `json:"attention_weights"`
	Text              string              `json:"explanation_text"`
}

// PerformancePoint is one day of backtested history.
type PerformancePoint struct {
	Date       string  `json:"date" mapstructure:"date"`
	Portfolio  float64 `json:"portfolio" mapstructure:"portfolio"`
	Benchmark1 float64 `json:"benchmark1" mapstructure:"benchmark1"`
	Benchmark2 float64 `json:"benchmark2" mapstructure:"benchmark2"`
}

// CorrelationPair is the pairwise correlation of two tickers.
type CorrelationPair struct {
	Stock1      string  `json:"stock1" mapstructure:"stock1"`
	Stock2      string  `json:"stock2" mapstructure:"stock2"`
	Correlation float64 `json:"correlation" mapstructure:"correlation"`
}

// RiskReturnPoint places one holding on the risk/return plane (values in percent).
type RiskReturnPoint struct {
	Symbol     string  `json:"symbol" mapstructure:"symbol"`
	Risk       float64 `json:"risk" mapstructure:"risk"`
	ReturnRate float64 `json:"return_rate" mapstructure:"return_rate"`
	Allocation float64 `json:"allocation" mapstructure:"allocation"`
}
