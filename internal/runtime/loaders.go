package runtime

import (
	"errors"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/aretw0/advisor/pkg/gateway"
)

// ErrMissingAllocation is returned when a dependent category is requested
// before the allocation of the generation succeeded.
var ErrMissingAllocation = errors.New("allocation not available")

// ErrSuperseded is returned for the writes of a request that was dispatched
// again within the same generation, by a retry or a mode change.
var ErrSuperseded = errors.New("superseded by a newer request")

// DefaultPeriod is the look-back window sent with dependent requests.
const DefaultPeriod = "1y"

// checkpoint is the progress shown when a request is sent and when its
// answer arrives. A zero received value skips the second checkpoint.
type checkpoint struct {
	dispatched int
	received   int
}

var checkpoints = map[domain.Category]checkpoint{
	domain.CategoryAllocation:  {dispatched: 20, received: 80},
	domain.CategoryExplanation: {dispatched: 30, received: 90},
	domain.CategoryPerformance: {dispatched: 40},
	domain.CategoryCorrelation: {dispatched: 50},
	domain.CategoryRiskReturn:  {dispatched: 60},
}

// request is what a category sends, or the result it settles with locally.
type request struct {
	endpoint string
	payload  any
	// local, when set, completes the task without a network call.
	local any
}

// buildRequest prepares the call for c. It reports false when c depends on
// an allocation that is not available.
func buildRequest(c domain.Category, ac domain.AnalysisContext, alloc []domain.AllocationItem, period string) (request, bool) {
	r := request{endpoint: gateway.EndpointFor(c)}
	switch c {
	case domain.CategoryAllocation:
		r.payload = gateway.NewPredictRequest(ac)
	case domain.CategoryExplanation:
		r.payload = gateway.NewExplainRequest(ac)
	case domain.CategoryCorrelation:
		if len(alloc) == 0 {
			return r, false
		}
		tickers := CorrelationTickers(alloc)
		if len(tickers) < 2 {
			r.local = []domain.CorrelationPair{}
			return r, true
		}
		r.payload = gateway.CorrelationRequest{Tickers: tickers, Period: period}
	case domain.CategoryPerformance, domain.CategoryRiskReturn:
		if len(alloc) == 0 {
			return r, false
		}
		r.payload = gateway.AllocationRequest{PortfolioAllocation: alloc, Period: period}
	default:
		return r, false
	}
	return r, true
}
