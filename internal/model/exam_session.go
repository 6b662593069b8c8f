package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// AttemptState is the mutable in-progress state of one attempt.
type AttemptState struct {
	SelectedOptions  map[int]OptionKey `json:"selected_options"`
	MarkedForReview  map[int]bool      `json:"-"`
	CurrentIndex     int               `json:"current_index"`
	SecondsRemaining int               `json:"seconds_remaining"`
}

// NewAttemptState returns an empty attempt with the full duration on the clock.
func NewAttemptState(durationSeconds int) *AttemptState {
	return &AttemptState{
		SelectedOptions:  make(map[int]OptionKey),
		MarkedForReview:  make(map[int]bool),
		SecondsRemaining: durationSeconds,
	}
}

// Clone returns a deep copy of the attempt.
func (a *AttemptState) Clone() *AttemptState {
	c := &AttemptState{
		SelectedOptions:  make(map[int]OptionKey, len(a.SelectedOptions)),
		MarkedForReview:  make(map[int]bool, len(a.MarkedForReview)),
		CurrentIndex:     a.CurrentIndex,
		SecondsRemaining: a.SecondsRemaining,
	}
	for k, v := range a.SelectedOptions {
		c.SelectedOptions[k] = v
	}
	for k := range a.MarkedForReview {
		c.MarkedForReview[k] = true
	}
	return c
}

// MarkedIndices returns the review-marked indices in ascending order.
func (a *AttemptState) MarkedIndices() []int {
	out := make([]int, 0, len(a.MarkedForReview))
	for idx := range a.MarkedForReview {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON renders the review set as a sorted index list.
func (a AttemptState) MarshalJSON() ([]byte, error) {
	type alias AttemptState
	return json.Marshal(struct {
		alias
		MarkedForReview []int `json:"marked_for_review"`
	}{alias: alias(a), MarkedForReview: a.MarkedIndices()})
}

// Snapshot is the persisted recovery hint for an in-progress attempt.
type Snapshot struct {
	SelectedOptions    map[int]OptionKey
	MarkedForReview    []int
	CurrentIndex       int
	SecondsRemaining   int
	SavedAtEpochMillis int64
}

// snapshotWire is the stored JSON shape; map keys are decimal question indices.
type snapshotWire struct {
	SelectedOptions    map[string]OptionKey `json:"selectedOptions"`
	MarkedForReview    []int                `json:"markedForReview"`
	CurrentIndex       int                  `json:"currentIndex"`
	SecondsRemaining   int                  `json:"secondsRemaining"`
	SavedAtEpochMillis int64                `json:"savedAtEpochMillis"`
}

// SnapshotOf captures the attempt at the given wall-clock time.
func SnapshotOf(a *AttemptState, at time.Time) Snapshot {
	selected := make(map[int]OptionKey, len(a.SelectedOptions))
	for k, v := range a.SelectedOptions {
		selected[k] = v
	}
	return Snapshot{
		SelectedOptions:    selected,
		MarkedForReview:    a.MarkedIndices(),
		CurrentIndex:       a.CurrentIndex,
		SecondsRemaining:   a.SecondsRemaining,
		SavedAtEpochMillis: at.UnixMilli(),
	}
}

// SavedAt returns the snapshot's timestamp.
func (s Snapshot) SavedAt() time.Time {
	return time.UnixMilli(s.SavedAtEpochMillis)
}

// MarshalJSON encodes the snapshot in its stored wire format.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotWire{
		SelectedOptions:    make(map[string]OptionKey, len(s.SelectedOptions)),
		MarkedForReview:    s.MarkedForReview,
		CurrentIndex:       s.CurrentIndex,
		SecondsRemaining:   s.SecondsRemaining,
		SavedAtEpochMillis: s.SavedAtEpochMillis,
	}
	if w.MarkedForReview == nil {
		w.MarkedForReview = []int{}
	}
	for k, v := range s.SelectedOptions {
		w.SelectedOptions[strconv.Itoa(k)] = v
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the stored wire format.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	selected := make(map[int]OptionKey, len(w.SelectedOptions))
	for k, v := range w.SelectedOptions {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("snapshot selection key %q: %w", k, err)
		}
		selected[idx] = v
	}
	*s = Snapshot{
		SelectedOptions:    selected,
		MarkedForReview:    w.MarkedForReview,
		CurrentIndex:       w.CurrentIndex,
		SecondsRemaining:   w.SecondsRemaining,
		SavedAtEpochMillis: w.SavedAtEpochMillis,
	}
	return nil
}
