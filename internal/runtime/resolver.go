package runtime

import (
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/advisor/pkg/domain"
)

// Resolver decides when the allocation-dependent categories must be
// (re)dispatched. It fires at most once per distinct allocation within a
// generation.
type Resolver struct {
	mu   sync.Mutex
	gen  uint64
	seen map[string]bool
}

// NewResolver creates a resolver with no history.
func NewResolver() *Resolver {
	return &Resolver{seen: make(map[string]bool)}
}

// Observe inspects an allocation task of generation gen. It returns the
// allocation to dispatch with and true when the dependents should run.
func (r *Resolver) Observe(gen uint64, t domain.Task) ([]domain.AllocationItem, bool) {
	if t.Category != domain.CategoryAllocation || t.Status != domain.StatusSuccess {
		return nil, false
	}
	p, ok := t.Result.(domain.Portfolio)
	if !ok {
		return nil, false
	}
	alloc := p.Allocation()
	if len(alloc) == 0 {
		return nil, false
	}

	sig := Signature(alloc)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen < r.gen {
		return nil, false
	}
	if gen > r.gen {
		r.gen = gen
		r.seen = make(map[string]bool)
	}
	if r.seen[sig] {
		return nil, false
	}
	r.seen[sig] = true
	return alloc, true
}

// Signature identifies an allocation by its length and content.
func Signature(alloc []domain.AllocationItem) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(alloc)))
	for _, it := range alloc {
		b.WriteByte('|')
		b.WriteString(it.Symbol)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(it.Weight, 'f', 6, 64))
	}
	return b.String()
}

// CorrelationTickers returns the distinct non-cash symbols of alloc, in order.
func CorrelationTickers(alloc []domain.AllocationItem) []string {
	tickers := make([]string, 0, len(alloc))
	seen := make(map[string]bool, len(alloc))
	for _, it := range alloc {
		s := strings.TrimSpace(it.Symbol)
		if s == "" || domain.IsCash(s) || seen[s] {
			continue
		}
		seen[s] = true
		tickers = append(tickers, s)
	}
	return tickers
}
