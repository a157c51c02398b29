package runtime

import (
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Aggregator turns raw service answers into payloads. Shape problems never
// fail: missing or malformed fields fall back to empty values.
type Aggregator struct {
	// Cash decides which symbols count toward Portfolio.Cash.
	Cash func(symbol string) bool
}

// NewAggregator returns an aggregator using domain.IsCash.
func NewAggregator() *Aggregator {
	return &Aggregator{Cash: domain.IsCash}
}

// Normalize converts the raw response of category c.
func (a *Aggregator) Normalize(c domain.Category, raw any, ac domain.AnalysisContext) any {
	obj, _ := raw.(map[string]any)
	switch c {
	case domain.CategoryAllocation:
		return a.portfolio(obj, ac)
	case domain.CategoryExplanation:
		return explanation(obj)
	case domain.CategoryPerformance:
		return decodeList[domain.PerformancePoint](obj, "performance_history")
	case domain.CategoryCorrelation:
		return decodeList[domain.CorrelationPair](obj, "correlation_data")
	case domain.CategoryRiskReturn:
		return decodeList[domain.RiskReturnPoint](obj, "risk_return_data")
	}
	return nil
}

// Normalize uses a default Aggregator.
func Normalize(c domain.Category, raw any, ac domain.AnalysisContext) any {
	return NewAggregator().Normalize(c, raw, ac)
}

type rawMetrics struct {
	TotalReturn  float64 `mapstructure:"total_return"`
	AnnualReturn float64 `mapstructure:"annual_return"`
	SharpeRatio  float64 `mapstructure:"sharpe_ratio"`
	SortinoRatio float64 `mapstructure:"sortino_ratio"`
	MaxDrawdown  float64 `mapstructure:"max_drawdown"`
	Volatility   float64 `mapstructure:"volatility"`
}

func (a *Aggregator) portfolio(obj map[string]any, ac domain.AnalysisContext) domain.Portfolio {
	items := decodeList[domain.AllocationItem](obj, "allocation")

	holdings := make([]domain.Holding, 0, len(items))
	var cash float64
	hasCash := false
	for _, it := range items {
		sym := it.Symbol
		if sym == "" {
			sym = "Unknown"
		}
		h := domain.Holding{
			Symbol:     sym,
			Weight:     it.Weight,
			Percentage: it.Weight * 100,
			Amount:     ac.Amount * it.Weight,
		}
		if a.Cash != nil && a.Cash(sym) {
			cash += h.Amount
			hasCash = true
		}
		holdings = append(holdings, h)
	}

	var m rawMetrics
	if mm, ok := obj["metrics"].(map[string]any); ok {
		weakDecode(mm, &m)
	}

	p := domain.Portfolio{
		Holdings: holdings,
		Metrics:  metricRows(m),
		Quick: domain.QuickMetrics{
			AnnualReturn: FormatReturn(m.AnnualReturn),
			SharpeRatio:  FormatRatio(m.SharpeRatio),
			MaxDrawdown:  FormatDrawdown(m.MaxDrawdown),
			Volatility:   FormatPercent(m.Volatility),
		},
	}
	if hasCash {
		p.Cash = &cash
	}
	return p
}

func metricRows(m rawMetrics) []domain.MetricRow {
	row := func(label string, v float64, format func(float64) string) domain.MetricRow {
		return domain.MetricRow{
			Label:      label,
			Portfolio:  format(v),
			Benchmark1: format(0),
			Benchmark2: format(0),
		}
	}
	return []domain.MetricRow{
		row(LabelTotalReturn, m.TotalReturn, FormatReturn),
		row(LabelAnnualReturn, m.AnnualReturn, FormatReturn),
		row(LabelSharpe, m.SharpeRatio, FormatRatio),
		row(LabelSortino, m.SortinoRatio, FormatRatio),
		row(LabelMaxDrawdown, m.MaxDrawdown, FormatDrawdown),
		row(LabelVolatility, m.Volatility, FormatPercent),
	}
}

func explanation(obj map[string]any) domain.Explanation {
	e := domain.Explanation{
		FeatureImportance: decodeList[domain.FeatureImportance](obj, "feature_importance"),
		AttentionWeights:  decodeList[domain.AttentionWeight](obj, "attention_weights"),
	}
	if s, ok := obj["explanation_text"].(string); ok {
		e.Text = s
	}
	return e
}

// decodeList decodes obj[key] element by element. A missing or non-array
// field yields an empty, non-nil slice; elements that are not objects are
// skipped.
func decodeList[T any](obj map[string]any, key string) []T {
	arr, ok := obj[key].([]any)
	if !ok {
		return []T{}
	}
	out := make([]T, 0, len(arr))
	for _, el := range arr {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		var v T
		weakDecode(m, &v)
		out = append(out, v)
	}
	return out
}

// weakDecode is best effort: fields that cannot be converted keep their zero
// value and the rest are still filled in.
func weakDecode(in map[string]any, out any) {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return
	}
	_ = dec.Decode(in)
}
