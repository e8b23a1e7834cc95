package redis

import "strings"

// Keyspace prefixes every key the client writes.
type Keyspace string

const DefaultKeyspace Keyspace = "dormship"

// Claim keys hold webhook and request dedup markers.
func (k Keyspace) Claim(scope, id string) string {
	return k.join("claim", scope, id)
}

// Window keys hold fixed-window hit counters.
func (k Keyspace) Window(scope string) string {
	return k.join("window", scope)
}

// Lease keys hold the owner token of a singleton worker.
func (k Keyspace) Lease(name string) string {
	return k.join("lease", name)
}

func (k Keyspace) join(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	b.WriteByte(':')
	b.WriteString(kind)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}
