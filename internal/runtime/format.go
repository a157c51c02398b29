package runtime

import (
	"math"
	"strconv"
)

// Metric labels, in table order.
const (
	LabelTotalReturn  = "Total Return"
	LabelAnnualReturn = "Annual Return"
	LabelSharpe       = "Sharpe Ratio"
	LabelSortino      = "Sortino Ratio"
	LabelMaxDrawdown  = "Max Drawdown"
	LabelVolatility   = "Volatility"
)

// round drops -0 so that tiny negatives never print as "-0.00".
func round(v float64, prec int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow10(prec)
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

// FormatPercent renders v with two decimals and a % sign.
func FormatPercent(v float64) string {
	return strconv.FormatFloat(round(v, 2), 'f', 2, 64) + "%"
}

// FormatReturn renders a return with an explicit sign: "+12.34%".
func FormatReturn(v float64) string {
	r := round(v, 2)
	if r >= 0 {
		return "+" + FormatPercent(r)
	}
	return FormatPercent(r)
}

// FormatDrawdown renders a drawdown as a loss regardless of the sign the
// service used: "-8.20%".
func FormatDrawdown(v float64) string {
	return "-" + FormatPercent(math.Abs(v))
}

// FormatRatio renders a ratio with four decimals.
func FormatRatio(v float64) string {
	return strconv.FormatFloat(round(v, 4), 'f', 4, 64)
}
