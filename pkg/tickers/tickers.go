// Package tickers splits free-form user input into ticker tokens and decides
// whether the input is a bulk-add list or an ordinary search query.
package tickers

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// separators matches any run of characters that are not ASCII letters.
// Digits fall into this class too, so purely numeric tokens never survive.
var separators = regexp.MustCompile(`[^A-Za-z]+`)

// Parse returns the uppercase, deduplicated tickers found in input, in the
// order they first appear.
func Parse(input string) []string {
	parts := separators.Split(input, -1)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		ticker := strings.ToUpper(part)
		if _, ok := seen[ticker]; ok {
			continue
		}
		seen[ticker] = struct{}{}
		out = append(out, ticker)
	}
	return out
}

// IsBulkMode reports whether input should be routed to the ingestion queue.
// It requires at least two characters (runes, not bytes) and at least one non-letter; a single
// bare word is always a search.
func IsBulkMode(input string) bool {
	if utf8.RuneCountInString(input) < 2 {
		return false
	}
	return separators.MatchString(input)
}

// Join renders tickers as a comma separated list, the normalized form that
// Parse accepts back unchanged.
func Join(tickers []string) string {
	return strings.Join(tickers, ",")
}

// Filter drops tickers for which skip returns true, preserving order.
func Filter(tickers []string, skip func(string) bool) []string {
	if skip == nil {
		return tickers
	}
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if skip(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
