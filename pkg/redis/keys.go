package redis

import "strings"

// DefaultKeyspace prefixes every key this service writes.
const DefaultKeyspace Keyspace = "stockroom"

// Keyspace namespaces keys so several environments can share one Redis.
type Keyspace string

// Join builds "<keyspace>:<part>:<part>", dropping blank parts.
func (k Keyspace) Join(parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
