package coinset

import (
	"fmt"
	"strings"
)

// FailedPrefix marks archive ids made up for tickers that never resolved.
const FailedPrefix = "failed-"

// ArchiveEntry is one archived coin as persisted under cgArchivedCoins.
type ArchiveEntry struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Synthetic reports whether the entry carries a made-up failed- id.
func (e ArchiveEntry) Synthetic() bool {
	return IsSynthetic(e.ID)
}

// IsSynthetic reports whether id is a failed- placeholder.
func IsSynthetic(id string) bool {
	return strings.HasPrefix(id, FailedPrefix)
}

// FailedID is the synthetic archive id for ticker.
func FailedID(ticker string) string {
	return FailedPrefix + strings.ToLower(strings.TrimSpace(ticker))
}

// FailedEntry is the fallback archive entry for a ticker nobody could name.
func FailedEntry(ticker string) ArchiveEntry {
	ticker = strings.TrimSpace(ticker)
	return ArchiveEntry{
		ID:     FailedID(ticker),
		Symbol: strings.ToUpper(ticker),
		Name:   ticker,
	}
}

// Direction is a reorder command for the selected list.
type Direction string

const (
	MoveStart Direction = "start"
	MoveUp    Direction = "up"
	MoveDown  Direction = "down"
	MoveEnd   Direction = "end"
)

// ParseDirection validates a user supplied direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case MoveStart, MoveUp, MoveDown, MoveEnd:
		return d, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownDirection, s)
	}
}
