package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/mansoorceksport/ironlog/internal/domain"
)

// JSONHistoryCursor iterates an exported history: a JSON array of workouts.
// Elements are decoded one by one so a malformed workout is reported on its
// own instead of failing the whole export.
type JSONHistoryCursor struct {
	entries []jsonHistoryEntry
	pos     int
	err     error
}

type jsonHistoryEntry struct {
	workout *domain.HistoryWorkout
	err     error
}

// NewJSONHistoryCursor reads the whole export. Decodable workouts are put in
// ascending date order; undecodable ones keep their place at the front so
// they are reported before any replay starts.
func NewJSONHistoryCursor(r io.Reader) *JSONHistoryCursor {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return &JSONHistoryCursor{err: fmt.Errorf("failed to decode history export: %w", err)}
	}

	var bad, good []jsonHistoryEntry
	for i, msg := range raw {
		var w domain.HistoryWorkout
		if err := json.Unmarshal(msg, &w); err != nil {
			bad = append(bad, jsonHistoryEntry{err: fmt.Errorf("%w: element %d: %w", domain.ErrInvalidHistoryEntry, i, err)})
			continue
		}
		good = append(good, jsonHistoryEntry{workout: &w})
	}
	sort.SliceStable(good, func(i, j int) bool {
		return good[i].workout.Date.Before(good[j].workout.Date)
	})

	return &JSONHistoryCursor{entries: append(bad, good...), pos: -1}
}

// NewSliceHistoryCursor iterates workouts already in memory, in the given order
func NewSliceHistoryCursor(workouts []*domain.HistoryWorkout) *JSONHistoryCursor {
	entries := make([]jsonHistoryEntry, len(workouts))
	for i, w := range workouts {
		entries[i] = jsonHistoryEntry{workout: w}
	}
	return &JSONHistoryCursor{entries: entries, pos: -1}
}

func (c *JSONHistoryCursor) Next(ctx context.Context) bool {
	if c.err != nil || ctx.Err() != nil {
		return false
	}
	c.pos++
	return c.pos < len(c.entries)
}

func (c *JSONHistoryCursor) Decode() (*domain.HistoryWorkout, error) {
	if c.pos < 0 || c.pos >= len(c.entries) {
		return nil, domain.ErrInvalidHistoryEntry
	}
	e := c.entries[c.pos]
	return e.workout, e.err
}

func (c *JSONHistoryCursor) Err() error {
	return c.err
}

func (c *JSONHistoryCursor) Close(context.Context) error {
	return nil
}
