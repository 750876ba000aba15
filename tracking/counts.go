package tracking

import (
	"fmt"
	"strings"
)

// CountMode selects how repeated entries by the same track are reported
type CountMode int

const (
	// CountModeUnique reports set sizes: a track counts once for inflow and once
	// for outflow, and a track that exits and re-enters is not inside again.
	CountModeUnique CountMode = iota
	// CountModeEveryEntry reports every entry and exit edge.
	CountModeEveryEntry
)

func (m CountMode) String() string {
	if m == CountModeEveryEntry {
		return "every-entry"
	}
	return "unique"
}

// ParseCountMode parses a configuration value
func ParseCountMode(s string) (CountMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unique":
		return CountModeUnique, nil
	case "every-entry", "every_entry":
		return CountModeEveryEntry, nil
	}
	return CountModeUnique, fmt.Errorf("unknown count mode %q", s)
}

// CountState is the single source of truth for reported statistics
type CountState struct {
	mode    CountMode
	inflow  map[int64]struct{}
	outflow map[int64]struct{}

	entries int
	exits   int
	inside  map[int64]struct{}
}

// NewCountState creates an empty aggregator
func NewCountState(mode CountMode) *CountState {
	return &CountState{
		mode:    mode,
		inflow:  make(map[int64]struct{}),
		outflow: make(map[int64]struct{}),
		inside:  make(map[int64]struct{}),
	}
}

// OnEvent folds a crossing edge into the counts. Set inserts are idempotent.
func (c *CountState) OnEvent(trackID int64, ev CrossingEvent) {
	switch ev {
	case EventEntered:
		c.inflow[trackID] = struct{}{}
		c.inside[trackID] = struct{}{}
		c.entries++
	case EventExited:
		c.outflow[trackID] = struct{}{}
		delete(c.inside, trackID)
		c.exits++
	}
}

// Snapshot computes the counts from the current sets
func (c *CountState) Snapshot() Snapshot {
	if c.mode == CountModeEveryEntry {
		return Snapshot{In: c.entries, Out: c.exits, Inside: len(c.inside)}
	}

	inside := 0
	for id := range c.inflow {
		if _, out := c.outflow[id]; !out {
			inside++
		}
	}
	return Snapshot{In: len(c.inflow), Out: len(c.outflow), Inside: inside}
}

// Inflow reports whether the track has ever entered
func (c *CountState) Inflow(trackID int64) bool {
	_, ok := c.inflow[trackID]
	return ok
}

// Outflow reports whether the track has ever exited
func (c *CountState) Outflow(trackID int64) bool {
	_, ok := c.outflow[trackID]
	return ok
}
