package domain

import "fmt"

// Category identifies one of the independent analytics domains.
type Category string

const (
	CategoryAllocation  Category = "allocation"
	CategoryExplanation Category = "explanation"
	CategoryPerformance Category = "performance"
	CategoryCorrelation Category = "correlation"
	CategoryRiskReturn  Category = "riskReturn"
)

// Categories returns every category in dispatch order.
func Categories() []Category {
	return []Category{
		CategoryAllocation,
		CategoryExplanation,
		CategoryPerformance,
		CategoryCorrelation,
		CategoryRiskReturn,
	}
}

// DependentCategories are the categories whose requests need an allocation.
func DependentCategories() []Category {
	return []Category{CategoryPerformance, CategoryCorrelation, CategoryRiskReturn}
}

// DependsOnAllocation reports whether requests for c carry the allocation.
func (c Category) DependsOnAllocation() bool {
	switch c {
	case CategoryPerformance, CategoryCorrelation, CategoryRiskReturn:
		return true
	}
	return false
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories() {
		if k == c {
			return true
		}
	}
	return false
}

// ParseCategory validates a category name. "xai" and "portfolio" are accepted as aliases.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "xai":
		return CategoryExplanation, nil
	case "portfolio":
		return CategoryAllocation, nil
	case "risk-return", "risk_return":
		return CategoryRiskReturn, nil
	}
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Status is the lifecycle position of a Task.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether the status ends a task lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Task is the tracked state of one category within a generation.
type Task struct {
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Progress int      `json:"progress"`
	Error    string   `json:"error,omitempty"`
	Result   any      `json:"result,omitempty"`
}

// NewTask returns a pending task with no progress.
func NewTask(c Category) Task {
	return Task{Category: c, Status: StatusPending}
}

// TaskPatch is a partial update. Nil fields are left untouched by Merge.
type TaskPatch struct {
	Status   *Status
	Progress *int
	Error    *string
	Result   any
	// ClearResult drops a previous payload; Result == nil alone means "keep".
	ClearResult bool
}

// Merge is the pure shallow-merge used by the task store.
func Merge(prev Task, p TaskPatch) Task {
	next := prev
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Progress != nil {
		next.Progress = clampProgress(*p.Progress)
	}
	if p.Error != nil {
		next.Error = *p.Error
	}
	if p.ClearResult {
		next.Result = nil
	}
	if p.Result != nil {
		next.Result = p.Result
	}
	return next
}

func clampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Loading marks a task as dispatched at the given progress and clears a previous error.
func Loading(progress int) TaskPatch {
	return TaskPatch{Status: ptr(StatusLoading), Progress: ptr(progress), Error: ptr("")}
}

// Progressed only moves the progress marker.
func Progressed(progress int) TaskPatch {
	return TaskPatch{Progress: ptr(progress)}
}

// Succeeded stores the normalized result.
func Succeeded(result any) TaskPatch {
	return TaskPatch{Status: ptr(StatusSuccess), Progress: ptr(100), Error: ptr(""), Result: result}
}

// Failed records a terminal error and resets progress.
func Failed(err error) TaskPatch {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return TaskPatch{Status: ptr(StatusError), Progress: ptr(0), Error: ptr(msg)}
}

func ptr[T any](v T) *T {
	return &v
}
