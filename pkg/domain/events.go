package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTaskUpdate EventType = "task_update"
	EventAttempt    EventType = "attempt"
	EventStepEnter  EventType = "step_enter"
	EventStepLeave  EventType = "step_leave"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation"`
}

// TaskEvent is emitted for every merge accepted by the task store.
type TaskEvent struct {
	EventBase
	Task Task `json:"task"`
}

// AttemptEvent is emitted after each gateway attempt.
type AttemptEvent struct {
	EventBase
	Endpoint string        `json:"endpoint"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// StepEvent represents entry or exit from a guided step.
type StepEvent struct {
	EventBase
	StepID    string        `json:"step_id"`
	StepIndex int           `json:"step_index"`
	Progress  int           `json:"progress"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	Degraded  bool          `json:"degraded,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTaskUpdate func(context.Context, *TaskEvent)
	OnAttempt    func(context.Context, *AttemptEvent)
	OnStepEnter  func(context.Context, *StepEvent)
	OnStepLeave  func(context.Context, *StepEvent)
}

// Chain returns hooks that call h first and then other.
func (h LifecycleHooks) Chain(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTaskUpdate: chain(h.OnTaskUpdate, other.OnTaskUpdate),
		OnAttempt:    chain(h.OnAttempt, other.OnAttempt),
		OnStepEnter:  chain(h.OnStepEnter, other.OnStepEnter),
		OnStepLeave:  chain(h.OnStepLeave, other.OnStepLeave),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
