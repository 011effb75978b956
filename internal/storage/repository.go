package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hotdog-curator/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches nothing
	ErrNotFound = errors.New("not found")

	// ErrContentExists is returned by SaveProcessed when an entry with the same content hash
	// was created inside the repost window
	ErrContentExists = errors.New("content already queued")
)

// HashField names an indexed fingerprint column
type HashField string

const (
	HashContent HashField = "content_hash"
	HashFuzzy   HashField = "fuzzy_hash"
	HashURL     HashField = "url_hash"
	HashImage   HashField = "image_hash"
	HashVideo   HashField = "video_hash"
)

// Valid reports whether f is a known fingerprint column
func (f HashField) Valid() bool {
	switch f {
	case HashContent, HashFuzzy, HashURL, HashImage, HashVideo:
		return true
	}
	return false
}

// Repository defines the interface for data persistence
type Repository interface {
	// Curation writes
	SaveProcessed(ctx context.Context, entry *models.QueueEntry, analysis *models.ContentAnalysis, notBefore time.Time) (*models.QueueEntry, error)
	TouchEntry(ctx context.Context, id uint) error
	MarkPosted(ctx context.Context, id uint, at time.Time) error

	// Lookups
	GetEntryByID(ctx context.Context, id uint) (*models.QueueEntry, error)
	GetAnalysis(ctx context.Context, entryID uint) (*models.ContentAnalysis, error)
	FindByHash(ctx context.Context, field HashField, hash string, since time.Time) ([]*models.QueueEntry, error)
	ListSince(ctx context.Context, since time.Time, offset, limit int) ([]*models.QueueEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]*models.QueueEntry, error)

	// Queue aggregates
	CountQueue(ctx context.Context) ([]QueueCount, error)

	// Maintenance
	Close() error
	Migrate() error
}

// QueueCount is the number of approved, unposted entries for one source and content type
type QueueCount struct {
	Source      string
	ContentType models.ContentType
	Count       int
}

// EntryFilter defines filtering options for queue entries
type EntryFilter struct {
	Status      *models.EntryStatus
	Source      *string
	ContentType *models.ContentType
	Approved    *bool
	Posted      *bool
	Limit       int
	Offset      int
	OrderBy     string // "created_at", "updated_at"
	OrderDesc   bool
}

// DefaultEntryFilter returns a filter with sensible defaults
func DefaultEntryFilter() EntryFilter {
	return EntryFilter{
		Limit:     50,
		OrderBy:   "created_at",
		OrderDesc: true,
	}
}

// QueuedFilter selects approved entries not yet posted, oldest first
func QueuedFilter() EntryFilter {
	approved, posted := true, false
	return EntryFilter{
		Approved: &approved,
		Posted:   &posted,
		Limit:    100,
		OrderBy:  "created_at",
	}
}
