package models

import (
	"time"
)

// EntryStatus represents the curation state of a queue entry
type EntryStatus string

const (
	EntryStatusDiscovered EntryStatus = "discovered"
	EntryStatusApproved   EntryStatus = "approved"
	EntryStatusFlagged    EntryStatus = "flagged"
	EntryStatusRejected   EntryStatus = "rejected"
	EntryStatusDuplicate  EntryStatus = "duplicate"
)

// IsTerminal returns true once a curation decision has been made
func (s EntryStatus) IsTerminal() bool {
	return s != EntryStatusDiscovered && s != ""
}

// QueueEntry is the durable record of a candidate that entered the pipeline
type QueueEntry struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	Text           string      `gorm:"type:text" json:"text"`
	NormalizedText string      `gorm:"type:text" json:"normalized_text"`
	ImageURL       string      `gorm:"size:2048" json:"image_url,omitempty"`
	VideoURL       string      `gorm:"size:2048" json:"video_url,omitempty"`
	ContentType    ContentType `gorm:"size:20;index" json:"content_type"`
	Source         string      `gorm:"size:100;index;not null" json:"source"`
	SourceURL      string      `gorm:"size:2048" json:"source_url"`
	Author         string      `gorm:"size:255" json:"author"`
	ContentHash    string      `gorm:"size:64;uniqueIndex;not null" json:"content_hash"`
	FuzzyHash      string      `gorm:"size:64;index" json:"fuzzy_hash"`
	URLHash        string      `gorm:"size:64;index" json:"url_hash"`
	ImageHash      string      `gorm:"size:64;index" json:"image_hash"`
	VideoHash      string      `gorm:"size:64;index" json:"video_hash"`
	Status         EntryStatus `gorm:"size:20;index;default:'discovered'" json:"status"`
	Approved       bool        `gorm:"index;default:false" json:"approved"`
	Posted         bool        `gorm:"index;default:false" json:"posted"`
	PostedAt       *time.Time  `json:"posted_at,omitempty"`
	CapturedAt     time.Time   `json:"captured_at"`
	CreatedAt      time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewQueueEntry builds a discovered entry from a candidate and its fingerprints
func NewQueueEntry(c *CandidateItem, fp Fingerprints) *QueueEntry {
	captured := c.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}

	return &QueueEntry{
		Text:           c.Text,
		NormalizedText: fp.NormalizedText,
		ImageURL:       c.Media.ImageURL(),
		VideoURL:       c.Media.VideoURL(),
		ContentType:    c.Media.Kind(),
		Source:         c.Source,
		SourceURL:      c.SourceURL,
		Author:         c.Author,
		ContentHash:    fp.ExactHash,
		FuzzyHash:      fp.FuzzyHash,
		URLHash:        fp.URLHash,
		ImageHash:      fp.ImageHash,
		VideoHash:      fp.VideoHash,
		Status:         EntryStatusDiscovered,
		CapturedAt:     captured,
	}
}

// SetStatus records a terminal decision; Approved mirrors the approved status
func (e *QueueEntry) SetStatus(status EntryStatus) {
	e.Status = status
	e.Approved = status == EntryStatusApproved
}

// IsQueued reports whether the entry is waiting to be published
func (e *QueueEntry) IsQueued() bool {
	return e.Approved && !e.Posted
}

// ContentAnalysis holds the classification outcome for exactly one queue entry
type ContentAnalysis struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	EntryID            uint        `gorm:"uniqueIndex;not null" json:"entry_id"`
	IsSpam             bool        `json:"is_spam"`
	IsInappropriate    bool        `json:"is_inappropriate"`
	IsUnrelated        bool        `json:"is_unrelated"`
	IsValidHotdog      bool        `json:"is_valid_hotdog"`
	Confidence         float64     `json:"confidence"`
	FlaggedPatterns    StringSlice `gorm:"type:text" json:"flagged_patterns"`
	DuplicateOfID      *uint       `gorm:"index" json:"duplicate_of_id,omitempty"`
	DuplicateMatchType string      `gorm:"size:20" json:"duplicate_match_type,omitempty"`
	ProcessingNotes    string      `gorm:"type:text" json:"processing_notes"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}
