package models

import "time"

// CandidateItem is a piece of content pulled from a source before any curation decision
type CandidateItem struct {
	Source     string
	Text       string
	Media      Media
	SourceURL  string
	Author     string
	CapturedAt time.Time
	Metadata   map[string]string
}

// HasContent is true when the candidate carries text or media
func (c *CandidateItem) HasContent() bool {
	return c.Text != "" || !c.Media.IsEmpty()
}

// Fingerprints are the deterministic hashes derived from a candidate
type Fingerprints struct {
	ExactHash      string
	FuzzyHash      string
	URLHash        string
	ImageHash      string
	VideoHash      string
	NormalizedText string
}
