package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultSet is the read model handed to presentation layers.
// Categories may be in different lifecycle states at the same time.
type ResultSet struct {
	// SessionID identifies the analysis when several are served at once.
	SessionID string `json:"session_id,omitempty"`

	// Generation is the run the tasks belong to.
	Generation uint64 `json:"generation"`

	Context AnalysisContext `json:"context"`

	Tasks map[Category]Task `json:"tasks"`

	UpdatedAt time.Time `json:"updated_at"`

	// Sealed carries an encrypted copy of the whole set when it was persisted
	// through an encrypting store; Context and Tasks are then left empty.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewResultSet creates a set with every category pending.
func NewResultSet(sessionID string, gen uint64, ac AnalysisContext) *ResultSet {
	rs := &ResultSet{
		SessionID:  sessionID,
		Generation: gen,
		Context:    ac,
		Tasks:      make(map[Category]Task, len(Categories())),
	}
	for _, c := range Categories() {
		rs.Tasks[c] = NewTask(c)
	}
	return rs
}

// Clone returns a copy whose task map can be modified independently.
// Result payloads are shared; they are never mutated once stored.
func (r *ResultSet) Clone() *ResultSet {
	if r == nil {
		return nil
	}
	c := *r
	c.Tasks = make(map[Category]Task, len(r.Tasks))
	for k, v := range r.Tasks {
		c.Tasks[k] = v
	}
	return &c
}

// Task returns the task of a category, or a pending one if it is unknown.
func (r *ResultSet) Task(c Category) Task {
	if r == nil {
		return NewTask(c)
	}
	if t, ok := r.Tasks[c]; ok {
		return t
	}
	return NewTask(c)
}

// Settled reports whether every category reached a terminal status.
func (r *ResultSet) Settled() bool {
	for _, c := range Categories() {
		if !r.Task(c).Status.Terminal() {
			return false
		}
	}
	return true
}

// Portfolio returns the allocation payload if the category succeeded.
func (r *ResultSet) Portfolio() (Portfolio, bool) {
	p, ok := r.Task(CategoryAllocation).Result.(Portfolio)
	return p, ok
}

// Allocation returns the raw allocation weights, or nil.
func (r *ResultSet) Allocation() []AllocationItem {
	if p, ok := r.Portfolio(); ok {
		return p.Allocation()
	}
	return nil
}

// Explanation returns the explanation payload if present.
func (r *ResultSet) Explanation() (Explanation, bool) {
	e, ok := r.Task(CategoryExplanation).Result.(Explanation)
	return e, ok
}

// Performance returns the backtest history.
func (r *ResultSet) Performance() []PerformancePoint {
	v, _ := r.Task(CategoryPerformance).Result.([]PerformancePoint)
	return v
}

// Correlations returns the pairwise correlations.
func (r *ResultSet) Correlations() []CorrelationPair {
	v, _ := r.Task(CategoryCorrelation).Result.([]CorrelationPair)
	return v
}

// RiskReturn returns the risk/return points.
func (r *ResultSet) RiskReturn() []RiskReturnPoint {
	v, _ := r.Task(CategoryRiskReturn).Result.([]RiskReturnPoint)
	return v
}

type taskEnvelope struct {
	Category Category        `json:"category"`
	Status   Status          `json:"status"`
	Progress int             `json:"progress"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// UnmarshalJSON restores typed payloads, so persisted snapshots read back the same
// way live ones do.
func (r *ResultSet) UnmarshalJSON(data []byte) error {
	type plain ResultSet
	var aux struct {
		plain
		Tasks map[Category]taskEnvelope `json:"tasks"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ResultSet(aux.plain)
	r.Tasks = make(map[Category]Task, len(aux.Tasks))
	for c, env := range aux.Tasks {
		t := Task{Category: env.Category, Status: env.Status, Progress: env.Progress, Error: env.Error}
		if len(env.Result) > 0 && string(env.Result) != "null" {
			payload, err := decodePayload(c, env.Result)
			if err != nil {
				return fmt.Errorf("task %s: %w", c, err)
			}
			t.Result = payload
		}
		r.Tasks[c] = t
	}
	return nil
}

func decodePayload(c Category, raw json.RawMessage) (any, error) {
	switch c {
	case CategoryAllocation:
		var v Portfolio
		err := json.Unmarshal(raw, &v)
		return v, err
	case CategoryExplanation:
		var v Explanation
		err := json.Unmarshal(raw, &v)
		return v, err
	case CategoryPerformance:
		var v []PerformancePoint
		err := json.Unmarshal(raw, &v)
		return v, err
	case CategoryCorrelation:
		var v []CorrelationPair
		err := json.Unmarshal(raw, &v)
		return v, err
	case CategoryRiskReturn:
		var v []RiskReturnPoint
		err := json.Unmarshal(raw, &v)
		return v, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
}
