package classifier

import (
	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/hotdog-curator/internal/hashing"
)

// TermMatcher finds dictionary terms in text with a single Aho-Corasick pass.
// Terms and text go through the same normalization, so punctuation and case never matter.
type TermMatcher struct {
	matcher *ahocorasick.Matcher
	terms   []string
}

// NewTermMatcher builds a matcher over the given terms; blank terms are dropped
func NewTermMatcher(terms []string) *TermMatcher {
	normalized := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		n := hashing.NormalizeText(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}

	tm := &TermMatcher{terms: normalized}
	if len(normalized) > 0 {
		tm.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return tm
}

// Empty is true when there is nothing to match
func (m *TermMatcher) Empty() bool {
	return m == nil || m.matcher == nil
}

// Find returns the distinct terms present in text, in dictionary order
func (m *TermMatcher) Find(text string) []string {
	if m.Empty() {
		return nil
	}

	normalized := hashing.NormalizeText(text)
	if normalized == "" {
		return nil
	}

	hits := m.matcher.MatchThreadSafe([]byte(normalized))
	if len(hits) == 0 {
		return nil
	}

	found := make([]bool, len(m.terms))
	for _, idx := range hits {
		if idx >= 0 && idx < len(found) {
			found[idx] = true
		}
	}

	out := make([]string, 0, len(hits))
	for i, ok := range found {
		if ok {
			out = append(out, m.terms[i])
		}
	}
	return out
}

// Contains reports whether any term appears in text
func (m *TermMatcher) Contains(text string) bool {
	return len(m.Find(text)) > 0
}
