package schema

import (
	"fmt"

	"github.com/aretw0/advisor/pkg/domain"
)

var contracts = map[domain.Category]Schema{
	domain.CategoryAllocation: {
		"allocation": Slice(Object(Schema{
			"symbol": String(),
			"weight": Number(),
		})),
		"metrics": Object(Schema{
			"total_return":  Number(),
			"annual_return": Number(),
			"sharpe_ratio":  Number(),
			"sortino_ratio": Number(),
			"max_drawdown":  Number(),
			"volatility":    Number(),
		}),
	},
	domain.CategoryExplanation: {
		"feature_importance": Slice(Object(Schema{
			"asset_name":       String(),
			"feature_name":     String(),
			"importance_score": Number(),
		})),
		"attention_weights": Optional(Slice(Object(Schema{
			"from_asset": String(),
			"to_asset":   String(),
			"weight":     Number(),
		}))),
		"explanation_text": String(),
	},
	domain.CategoryPerformance: {
		"performance_history": Slice(Object(Schema{
			"date":       String(),
			"portfolio":  Number(),
			"benchmark1": Number(),
			"benchmark2": Number(),
		})),
	},
	domain.CategoryCorrelation: {
		"correlation_data": Slice(Object(Schema{
			"stock1":      String(),
			"stock2":      String(),
			"correlation": Number(),
		})),
	},
	domain.CategoryRiskReturn: {
		"risk_return_data": Slice(Object(Schema{
			"symbol":      String(),
			"risk":        Number(),
			"return_rate": Number(),
			"allocation":  Number(),
		})),
	},
}

// Contract returns the documented response shape of category c, or nil for
// an unknown category.
func Contract(c domain.Category) Schema {
	return contracts[c]
}

// Check validates the raw answer of category c against its Contract.
func Check(c domain.Category, raw any) error {
	s := Contract(c)
	if s == nil {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("expected a JSON object, got %T", raw)
	}
	return Validate(s, obj)
}
