package models

import "time"

// DefaultRepostWindow applies to sources without an explicit policy
const DefaultRepostWindow = 7 * 24 * time.Hour

// RepostPolicy maps a source to the minimum time before the same content may reappear
type RepostPolicy struct {
	Default time.Duration
	Sources map[string]time.Duration
}

// NewRepostPolicy builds a policy from per-source day counts
func NewRepostPolicy(days map[string]int) RepostPolicy {
	p := RepostPolicy{
		Default: DefaultRepostWindow,
		Sources: make(map[string]time.Duration, len(days)),
	}
	for source, d := range days {
		if d > 0 {
			p.Sources[source] = time.Duration(d) * 24 * time.Hour
		}
	}
	return p
}

// Window returns the repost window for a source
func (p RepostPolicy) Window(source string) time.Duration {
	if w, ok := p.Sources[source]; ok && w > 0 {
		return w
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultRepostWindow
}
