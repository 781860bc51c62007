package visibility

// Optional returns *p as a record value, or nil when p is nil.
func Optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Items copies items into a record list value. A nil slice becomes an empty
// list so redacted and unredacted lists serialize the same way.
func Items[T any](items []T) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

// Keys returns the key set of settings, for comparing against a Table.
func (s Settings) Keys() []string {
	return sortedKeys(s)
}
