package syncache

// cloneValue copies a value deeply enough that callers cannot reach
// cache-internal storage through it. Maps, slices and byte slices (the
// shapes the cache stores by default and persistence decodes to) are copied
// recursively. Scalars need no copy, and struct values boxed in an
// interface cannot be mutated without asserting to a pointer, so both pass
// through. Pointer values are the one shape the cache cannot detach;
// callers storing pointers keep ownership of what they point at.
func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	default:
		return val
	}
}
