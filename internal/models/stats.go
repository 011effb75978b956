package models

import "time"

// Bucket is a count and its share of the queue (0-100)
type Bucket struct {
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// QueueStats summarizes approved, unposted entries. Computed on demand.
type QueueStats struct {
	Total         int                    `json:"total" yaml:"total"`
	DaysOfContent float64                `json:"days_of_content" yaml:"days_of_content"`
	BySource      map[string]Bucket      `json:"by_source" yaml:"by_source"`
	ByContentType map[ContentType]Bucket `json:"by_content_type" yaml:"by_content_type"`
	ComputedAt    time.Time              `json:"computed_at" yaml:"computed_at"`
}

// SourceShare returns a source's share of the queue as a fraction (0-1)
func (s *QueueStats) SourceShare(source string) float64 {
	return s.BySource[source].Percentage / 100
}

// TypeShare returns a content type's share of the queue as a fraction (0-1)
func (s *QueueStats) TypeShare(t ContentType) float64 {
	return s.ByContentType[t].Percentage / 100
}

// ScanPriority orders scan recommendations
type ScanPriority string

const (
	PriorityHigh   ScanPriority = "high"
	PriorityMedium ScanPriority = "medium"
	PriorityLow    ScanPriority = "low"
	PrioritySkip   ScanPriority = "skip"
)

// Rank returns the sort order of a priority, lower first
func (p ScanPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// ScanRecommendation is the queue manager's advice for one source
type ScanRecommendation struct {
	Source     string       `json:"source" yaml:"source"`
	Priority   ScanPriority `json:"priority" yaml:"priority"`
	Reason     string       `json:"reason" yaml:"reason"`
	TargetType ContentType  `json:"target_type" yaml:"target_type"`
}

// ShouldScan reports whether the recommendation is actionable
func (r ScanRecommendation) ShouldScan() bool {
	return r.Priority != PrioritySkip
}
