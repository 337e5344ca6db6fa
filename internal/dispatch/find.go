package dispatch

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/currybot/internal/catalog"
)

// similarityThreshold is the minimum Jaro-Winkler score for a fuzzy hit.
const similarityThreshold = 0.85

// Find returns the keys of c that contain term or are spelled similarly,
// oldest first.
func Find(c *catalog.Catalog, term string) []string {
	term = catalog.Normalize(term)
	if term == "" {
		return nil
	}
	var out []string
	for _, k := range c.Keys(catalog.Ascending) {
		if strings.Contains(k, term) || matchr.JaroWinkler(k, term, false) >= similarityThreshold {
			out = append(out, k)
		}
	}
	return out
}
