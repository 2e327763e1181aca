package coalesce

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Signature builds the call identity used for coalescing: the operation name
// plus an order-independent digest of its parameters. Two logically
// identical calls whose parameters arrive in different order produce the
// same signature.
func Signature(name string, params map[string]any) string {
	if len(params) == 0 {
		return name
	}
	var b strings.Builder
	writeCanonical(&b, params)
	return name + "#" + strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// writeCanonical encodes a value deterministically: map keys are emitted in
// sorted order at every nesting level.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case string:
		b.WriteString(strconv.Quote(val))
	default:
		fmt.Fprintf(b, "%v", val)
	}
}
