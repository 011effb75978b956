package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/storage"
)

// Repository implements storage.Repository with gorm over SQLite or Postgres
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	repo, err := open(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection also keeps :memory: databases intact
	sqlDB, err := repo.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return repo, nil
}

// Open picks the dialector for the configured driver
func Open(driver, dsn string) (*Repository, error) {
	switch driver {
	case "", "sqlite":
		return New(dsn)
	case "postgres":
		return open(postgres.Open(dsn))
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func open(dialector gorm.Dialector) (*Repository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.QueueEntry{},
		&models.ContentAnalysis{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Curation writes

// SaveProcessed stores an entry and its analysis in one transaction.
//
// Entries are unique by content hash. When the hash already exists and the existing row was
// created at or after notBefore, its updated_at is bumped and ErrContentExists is returned
// together with the existing row. An older row is re-queued in place, its status fields and
// analysis overwritten with the new decision, unless the new decision is a duplicate or the
// existing row is still queued for posting. Those cases are treated like a conflict inside the
// window: the existing row is only touched.
func (r *Repository) SaveProcessed(
	ctx context.Context,
	entry *models.QueueEntry,
	analysis *models.ContentAnalysis,
	notBefore time.Time,
) (*models.QueueEntry, error) {
	var saved *models.QueueEntry

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.QueueEntry
		err := tx.Where("content_hash = ?", entry.ContentHash).First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(entry).Error; err != nil {
				if isDuplicateKey(err) {
					return storage.ErrContentExists
				}
				return fmt.Errorf("failed to create entry: %w", err)
			}
			saved = entry

		case err != nil:
			return fmt.Errorf("failed to look up content hash: %w", err)

		case !existing.CreatedAt.Before(notBefore),
			entry.Status == models.EntryStatusDuplicate,
			existing.IsQueued():
			saved = &existing
			return storage.ErrContentExists

		default:
			entry.ID = existing.ID
			entry.CreatedAt = time.Now()
			entry.Posted = false
			entry.PostedAt = nil
			if err := tx.Save(entry).Error; err != nil {
				return fmt.Errorf("failed to re-queue entry: %w", err)
			}
			saved = entry
		}

		analysis.EntryID = saved.ID
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "entry_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_spam", "is_inappropriate", "is_unrelated", "is_valid_hotdog",
				"confidence", "flagged_patterns", "duplicate_of_id", "duplicate_match_type",
				"processing_notes", "updated_at",
			}),
		}).Create(analysis).Error
	})

	if errors.Is(err, storage.ErrContentExists) {
		if saved == nil {
			// Lost an insert race; report the winner.
			var winner models.QueueEntry
			if lookupErr := r.db.WithContext(ctx).Where("content_hash = ?", entry.ContentHash).First(&winner).Error; lookupErr != nil {
				return nil, fmt.Errorf("failed to load conflicting entry: %w", lookupErr)
			}
			saved = &winner
		}
		if touchErr := r.TouchEntry(ctx, saved.ID); touchErr != nil {
			return nil, fmt.Errorf("failed to touch entry: %w", touchErr)
		}
		return saved, storage.ErrContentExists
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (r *Repository) TouchEntry(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.QueueEntry{}).Where("id = ?", id).Update("updated_at", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkPosted(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"posted": true, "posted_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Lookups

func (r *Repository) GetEntryByID(ctx context.Context, id uint) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *Repository) GetAnalysis(ctx context.Context, entryID uint) (*models.ContentAnalysis, error) {
	var analysis models.ContentAnalysis
	if err := r.db.WithContext(ctx).Where("entry_id = ?", entryID).First(&analysis).Error; err != nil {
		return nil, translate(err)
	}
	return &analysis, nil
}

func (r *Repository) FindByHash(ctx context.Context, field storage.HashField, hash string, since time.Time) ([]*models.QueueEntry, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unknown hash field: %s", field)
	}
	if hash == "" {
		return nil, nil
	}

	var entries []*models.QueueEntry
	err := r.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: string(field)}, Value: hash}).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) ListSince(ctx context.Context, since time.Time, offset, limit int) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	query := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Where("normalized_text <> ''").
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

var orderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"id":         true,
}

func (r *Repository) ListEntries(ctx context.Context, filter storage.EntryFilter) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	query := r.db.WithContext(ctx).Model(&models.QueueEntry{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Source != nil {
		query = query.Where("source = ?", *filter.Source)
	}
	if filter.ContentType != nil {
		query = query.Where("content_type = ?", *filter.ContentType)
	}
	if filter.Approved != nil {
		query = query.Where("approved = ?", *filter.Approved)
	}
	if filter.Posted != nil {
		query = query.Where("posted = ?", *filter.Posted)
	}

	// Ordering
	orderCol := "created_at"
	if orderColumns[filter.OrderBy] {
		orderCol = filter.OrderBy
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: orderCol}, Desc: filter.OrderDesc})

	// Pagination
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Queue aggregates

func (r *Repository) CountQueue(ctx context.Context) ([]storage.QueueCount, error) {
	var rows []struct {
		Source      string
		ContentType string
		Count       int
	}

	err := r.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Select("source, content_type, COUNT(*) AS count").
		Where("approved = ? AND posted = ?", true, false).
		Group("source, content_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}

	counts := make([]storage.QueueCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, storage.QueueCount{
			Source:      row.Source,
			ContentType: models.ContentType(row.ContentType),
			Count:       row.Count,
		})
	}
	return counts, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
