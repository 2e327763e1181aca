package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Separator splits a cache key into its namespace and the rest.
const Separator = ":"

// DefaultTTL is the TTL applied to keys that match no configured namespace.
const DefaultTTL = 5 * time.Minute

// DefaultMaxSize bounds the live entry count of an unconfigured namespace.
const DefaultMaxSize = 100

// Policy describes how entries in one namespace are expired, bounded and
// persisted.
type Policy struct {
	// Prefix matches keys of the form "<Prefix>:<rest>". The longest
	// configured prefix wins when several could apply.
	Prefix string
	// TTL is how long an entry is served before it is treated as absent.
	TTL time.Duration
	// MaxSize bounds the count of live entries in the namespace. Writes
	// that would exceed it evict the least recently used entries first.
	MaxSize int
	// Durable entries are written through to the blob store on every
	// mutation and reloaded at startup.
	Durable bool
	// Invalidates lists namespaces whose entries are removed after a
	// confirmed mutation in this namespace (e.g. updating a record
	// invalidates its parent listing).
	Invalidates []string
}

// Table resolves cache keys to their governing Policy. It is immutable after
// construction; Resolve is safe for concurrent use.
type Table struct {
	// ordered longest-prefix-first so the first startsWith match wins
	policies []Policy
	fallback Policy
}

// NewTable validates the given policies and builds a lookup table. A negative
// TTL or MaxSize, an empty prefix, or a duplicate prefix is a configuration
// error and fails construction.
func NewTable(policies ...Policy) (*Table, error) {
	seen := make(map[string]bool, len(policies))
	for _, p := range policies {
		if err := validate(p); err != nil {
			return nil, err
		}
		if seen[p.Prefix] {
			return nil, fmt.Errorf("policy: duplicate namespace prefix %q", p.Prefix)
		}
		seen[p.Prefix] = true
	}
	ordered := make([]Policy, len(policies))
	copy(ordered, policies)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Prefix) > len(ordered[j].Prefix)
	})
	return &Table{
		policies: ordered,
		fallback: Policy{TTL: DefaultTTL, MaxSize: DefaultMaxSize},
	}, nil
}

func validate(p Policy) error {
	if p.Prefix == "" {
		return fmt.Errorf("policy: empty namespace prefix")
	}
	if strings.Contains(p.Prefix, Separator) {
		// multi-segment prefixes are allowed, but a trailing separator
		// would double up in the startsWith match
		if strings.HasSuffix(p.Prefix, Separator) {
			return fmt.Errorf("policy: prefix %q must not end with %q", p.Prefix, Separator)
		}
	}
	if p.TTL < 0 {
		return fmt.Errorf("policy: namespace %q has negative ttl %s", p.Prefix, p.TTL)
	}
	if p.MaxSize < 0 {
		return fmt.Errorf("policy: namespace %q has negative max size %d", p.Prefix, p.MaxSize)
	}
	return nil
}

// Resolve returns the Policy governing key and the namespace the key belongs
// to. Keys matching a configured prefix take that prefix as their namespace;
// unmatched keys fall back to the built-in default policy, namespaced by the
// segment before the first separator (or the whole key if it has none).
func (t *Table) Resolve(key string) (Policy, string) {
	for _, p := range t.policies {
		if strings.HasPrefix(key, p.Prefix+Separator) {
			pol := p
			if pol.TTL == 0 {
				pol.TTL = DefaultTTL
			}
			if pol.MaxSize == 0 {
				pol.MaxSize = DefaultMaxSize
			}
			return pol, p.Prefix
		}
	}
	return t.fallback, NamespaceOf(key)
}

// NamespaceOf returns the key's default namespace, the segment before the
// first separator (or the whole key if it has none). Resolve prefers a
// configured prefix over this when one matches.
func NamespaceOf(key string) string {
	if i := strings.Index(key, Separator); i >= 0 {
		return key[:i]
	}
	return key
}
