package catalog

// Diff returns the triggers of next that are absent from prev or map to a
// different clip there, in next's source order. Removed triggers are not
// reported. A nil prev yields every key of next.
func Diff(prev, next *Catalog) []string {
	var out []string
	for _, k := range next.Keys(Ascending) {
		clip, _ := next.Clip(k)
		if old, ok := prev.Clip(k); ok && old == clip {
			continue
		}
		out = append(out, k)
	}
	return out
}
