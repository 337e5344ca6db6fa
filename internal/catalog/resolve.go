package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Match is the outcome of a successful resolution.
type Match struct {
	// Key is the matched trigger.
	Key string

	// Exact is true when the whole message equals the trigger, false for a
	// substring match.
	Exact bool
}

// Normalize lower-cases text with Unicode case folding rules and trims
// surrounding whitespace.
func Normalize(text string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return strings.TrimSpace(cases.Lower(language.Und).String(text))
}

// Resolve maps free text to a trigger key. See [Catalog.Match].
func Resolve(text string, c *Catalog) (string, bool) {
	m, ok := c.Match(text)
	return m.Key, ok
}

// Match resolves text against the catalog. An exact key match wins.
// Otherwise the first key, in source order, that occurs anywhere in the
// normalized text is returned. An empty catalog never matches.
func (c *Catalog) Match(text string) (Match, bool) {
	if c.Len() == 0 {
		return Match{}, false
	}
	norm := Normalize(text)
	if _, ok := c.clips[norm]; ok {
		return Match{Key: norm, Exact: true}, true
	}
	for _, k := range c.keys {
		if strings.Contains(norm, k) {
			return Match{Key: k}, true
		}
	}
	return Match{}, false
}
