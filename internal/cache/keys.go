package cache

import "strings"

// Namespace is the Redis key prefix for the coinboard application.
const Namespace = "coinboard"

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// StateKey scopes a dashboard storage key (cgCoins, cgSelectedCoins, ...)
// to one board instance so several dashboards can share a Redis.
func StateKey(instance, key string) string {
	return formatKey("state", instance, key)
}
