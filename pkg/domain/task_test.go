package domain_test

import (
	"errors"
	"testing"

	"github.com/aretw0/advisor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_ShallowKeepsUntouchedFields(t *testing.T) {
	prev := domain.Task{
		Category: domain.CategoryAllocation,
		Status:   domain.StatusLoading,
		Progress: 20,
		Result:   "keep-me",
	}

	next := domain.Merge(prev, domain.Progressed(80))

	assert.Equal(t, domain.StatusLoading, next.Status)
	assert.Equal(t, 80, next.Progress)
	assert.Equal(t, "keep-me", next.Result)
	// prev is a value; the merge must not leak into it.
	assert.Equal(t, 20, prev.Progress)
}

func TestMerge_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		prev  domain.Task
		patch domain.TaskPatch
		want  domain.Task
	}{
		{
			name:  "Loading clears previous error",
			prev:  domain.Task{Category: domain.CategoryCorrelation, Status: domain.StatusError, Error: "boom"},
			patch: domain.Loading(50),
			want:  domain.Task{Category: domain.CategoryCorrelation, Status: domain.StatusLoading, Progress: 50},
		},
		{
			name:  "Succeeded stores result at full progress",
			prev:  domain.Task{Category: domain.CategoryPerformance, Status: domain.StatusLoading, Progress: 40},
			patch: domain.Succeeded([]domain.PerformancePoint{}),
			want: domain.Task{
				Category: domain.CategoryPerformance,
				Status:   domain.StatusSuccess,
				Progress: 100,
				Result:   []domain.PerformancePoint{},
			},
		},
		{
			name:  "Failed resets progress",
			prev:  domain.Task{Category: domain.CategoryRiskReturn, Status: domain.StatusLoading, Progress: 60},
			patch: domain.Failed(errors.New("timeout")),
			want:  domain.Task{Category: domain.CategoryRiskReturn, Status: domain.StatusError, Error: "timeout"},
		},
		{
			name:  "Progress is clamped",
			prev:  domain.Task{Category: domain.CategoryExplanation},
			patch: domain.Progressed(140),
			want:  domain.Task{Category: domain.CategoryExplanation, Progress: 100},
		},
		{
			name:  "ClearResult drops payload",
			prev:  domain.Task{Category: domain.CategoryAllocation, Status: domain.StatusSuccess, Result: 1},
			patch: domain.TaskPatch{ClearResult: true},
			want:  domain.Task{Category: domain.CategoryAllocation, Status: domain.StatusSuccess},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Merge(tt.prev, tt.patch))
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := domain.ParseCategory("xai")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryExplanation, c)

	c, err = domain.ParseCategory("riskReturn")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryRiskReturn, c)

	_, err = domain.ParseCategory("sentiment")
	assert.ErrorIs(t, err, domain.ErrUnknownCategory)
}

func TestDependsOnAllocation(t *testing.T) {
	for _, c := range domain.Categories() {
		want := c != domain.CategoryAllocation && c != domain.CategoryExplanation
		assert.Equal(t, want, c.DependsOnAllocation(), string(c))
	}
	assert.Len(t, domain.DependentCategories(), 3)
}
