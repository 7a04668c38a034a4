package ingest

import (
	"fmt"
	"strings"
)

// State is the queue run state.
type State int

const (
	Idle State = iota
	Running
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a copy of the transient queue state.
type Status struct {
	State       State          `json:"state"`
	Adding      bool           `json:"isAddingTickers"`
	Current     string         `json:"currentAddingTicker,omitempty"`
	Pending     []string       `json:"pendingTickers"`
	Failed      []string       `json:"failedTickers"`
	Attempts    map[string]int `json:"tickerAttempts"`
	MaxAttempts int            `json:"maxAttempts"`
}

// Display renders the live ticker lists for the search box hint, or ""
// when no run is active.
func (s Status) Display() string {
	if !s.Adding {
		return ""
	}
	parts := make([]string, 0, 3)
	if s.Current != "" {
		current := "Adding " + s.Current
		if n := s.Attempts[s.Current]; n > 1 {
			current += fmt.Sprintf(" (attempt %d/%d)", n, s.MaxAttempts)
		}
		parts = append(parts, current)
	}
	if len(s.Pending) > 0 {
		parts = append(parts, "Queued: "+strings.Join(s.Pending, ", "))
	}
	if len(s.Failed) > 0 {
		parts = append(parts, "Retrying: "+strings.Join(s.Failed, ", "))
	}
	if len(parts) == 0 {
		return "Adding tickers…"
	}
	return strings.Join(parts, " | ")
}
