package runtime_test

import (
	"testing"

	"github.com/aretw0/advisor/internal/runtime"
	"github.com/aretw0/advisor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func allocationTask(items ...domain.Holding) domain.Task {
	t := domain.NewTask(domain.CategoryAllocation)
	return domain.Merge(t, domain.Succeeded(domain.Portfolio{Holdings: items}))
}

func TestResolver_FiresOncePerAllocation(t *testing.T) {
	r := runtime.NewResolver()
	task := allocationTask(domain.Holding{Symbol: "AAPL", Weight: 0.5}, domain.Holding{Symbol: "MSFT", Weight: 0.5})

	alloc, ok := r.Observe(1, task)
	assert.True(t, ok)
	assert.Len(t, alloc, 2)

	_, ok = r.Observe(1, task)
	assert.False(t, ok, "unchanged allocation must not re-dispatch")

	changed := allocationTask(domain.Holding{Symbol: "AAPL", Weight: 1})
	_, ok = r.Observe(1, changed)
	assert.True(t, ok, "a different allocation dispatches again")

	_, ok = r.Observe(2, task)
	assert.True(t, ok, "a new generation starts from scratch")

	_, ok = r.Observe(1, changed)
	assert.False(t, ok, "superseded generations are ignored")
}

func TestResolver_IgnoresUnusableTasks(t *testing.T) {
	r := runtime.NewResolver()

	tests := []struct {
		name string
		task domain.Task
	}{
		{"pending", domain.NewTask(domain.CategoryAllocation)},
		{"failed", domain.Merge(domain.NewTask(domain.CategoryAllocation), domain.Failed(nil))},
		{"empty allocation", allocationTask()},
		{"other category", domain.Merge(domain.NewTask(domain.CategoryPerformance), domain.Succeeded(domain.Portfolio{
			Holdings: []domain.Holding{{Symbol: "AAPL", Weight: 1}},
		}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := r.Observe(1, tt.task)
			assert.False(t, ok)
		})
	}
}

func TestCorrelationTickers(t *testing.T) {
	alloc := []domain.AllocationItem{
		{Symbol: "AAPL", Weight: 0.4},
		{Symbol: domain.CashSymbol, Weight: 0.2},
		{Symbol: "CASH", Weight: 0.1},
		{Symbol: "", Weight: 0.1},
		{Symbol: "MSFT", Weight: 0.1},
		{Symbol: "AAPL", Weight: 0.1},
	}
	assert.Equal(t, []string{"AAPL", "MSFT"}, runtime.CorrelationTickers(alloc))
	assert.Empty(t, runtime.CorrelationTickers([]domain.AllocationItem{{Symbol: domain.CashSymbol, Weight: 1}}))
}

func TestSignature(t *testing.T) {
	a := []domain.AllocationItem{{Symbol: "AAPL", Weight: 0.5}}
	b := []domain.AllocationItem{{Symbol: "AAPL", Weight: 0.5000001}}
	c := []domain.AllocationItem{{Symbol: "AAPL", Weight: 0.6}}
	assert.Equal(t, runtime.Signature(a), runtime.Signature(b))
	assert.NotEqual(t, runtime.Signature(a), runtime.Signature(c))
}
