package domain

import (
	"reflect"
)

// SnapshotDiff represents the changes between two result sets.
// It is designed to be serialized to JSON for partial updates on the client.
type SnapshotDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Generation uint64 `json:"generation"`

	// Reset is set when the generation changed; clients should drop local state.
	Reset bool `json:"reset,omitempty"`

	// Tasks contains only the categories whose record changed.
	Tasks map[Category]Task `json:"tasks,omitempty"`
}

// Diff calculates the difference between oldSet and newSet.
// If oldSet is nil, it returns a diff representing the entire newSet (initial load).
// A nil result means nothing changed.
func Diff(oldSet, newSet *ResultSet) *SnapshotDiff {
	if newSet == nil {
		return nil
	}

	diff := &SnapshotDiff{
		SessionID:  newSet.SessionID,
		Generation: newSet.Generation,
	}

	if oldSet == nil || oldSet.Generation != newSet.Generation {
		diff.Reset = oldSet != nil
		diff.Tasks = make(map[Category]Task, len(newSet.Tasks))
		for k, v := range newSet.Tasks {
			diff.Tasks[k] = v
		}
		return diff
	}

	for k, newTask := range newSet.Tasks {
		oldTask, exists := oldSet.Tasks[k]
		if !exists || !reflect.DeepEqual(oldTask, newTask) {
			if diff.Tasks == nil {
				diff.Tasks = make(map[Category]Task)
			}
			diff.Tasks[k] = newTask
		}
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return !d.Reset && len(d.Tasks) == 0
}
