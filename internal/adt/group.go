package adt

// GroupSame splits items into runs of consecutive elements with the same key.
// Non-adjacent elements sharing a key land in different runs.
func GroupSame[T any, K comparable](items []T, key func(T) K) [][]T {
	var out [][]T
	for i, it := range items {
		if i > 0 && key(items[i-1]) == key(it) {
			last := len(out) - 1
			out[last] = append(out[last], it)
			continue
		}
		out = append(out, []T{it})
	}
	return out
}
