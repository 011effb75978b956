// Package tracker exports flagged queue entries to a Google Sheet for manual review.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/hotdog-curator/internal/config"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/storage"
	"github.com/hotdog-curator/pkg/logger"
)

const (
	defaultSheetName = "Review"
	previewLength    = 200
	// machine-owned columns; the reviewer columns after them are never overwritten
	machineColumns = "B%d:K%d"
)

// ReviewColumns are the header row of the review sheet
var ReviewColumns = []string{
	"ID",
	"Source",
	"Type",
	"Status",
	"Confidence",
	"Flags",
	"Notes",
	"Preview",
	"Source URL",
	"Media URL",
	"Created At",
	"Decision",
	"Reviewer Notes",
}

// ReviewItem is one entry awaiting a human decision
type ReviewItem struct {
	Entry    *models.QueueEntry
	Analysis *models.ContentAnalysis
}

// Store is the read side needed to collect review items
type Store interface {
	ListEntries(ctx context.Context, filter storage.EntryFilter) ([]*models.QueueEntry, error)
	GetAnalysis(ctx context.Context, entryID uint) (*models.ContentAnalysis, error)
}

// SheetsTracker writes review items to a spreadsheet
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *logger.Logger
}

// NewSheetsTracker connects to the Sheets API. Credentials come from the config; extra client
// options are appended after them.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger, opts ...option.ClientOption) (*SheetsTracker, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("tracker spreadsheet_id is required")
	}

	var clientOpts []option.ClientOption
	switch {
	case cfg.ServiceAccountJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	case len(opts) == 0:
		return nil, errors.New("no Google credentials provided: set credentials_file or service_account_json")
	}
	clientOpts = append(clientOpts, opts...)

	srv, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = defaultSheetName
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		log:           log.WithComponent("sheets-tracker"),
	}, nil
}

// CollectFlagged loads up to limit flagged entries with their analyses, oldest first
func CollectFlagged(ctx context.Context, store Store, limit int) ([]ReviewItem, error) {
	status := models.EntryStatusFlagged
	entries, err := store.ListEntries(ctx, storage.EntryFilter{
		Status:  &status,
		Limit:   limit,
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged entries: %w", err)
	}

	items := make([]ReviewItem, 0, len(entries))
	for _, e := range entries {
		analysis, err := store.GetAnalysis(ctx, e.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load analysis for entry %d: %w", e.ID, err)
		}
		items = append(items, ReviewItem{Entry: e, Analysis: analysis})
	}
	return items, nil
}

// SyncFlagged appends new items and refreshes the machine columns of items already in the
// sheet. Reviewer columns are left alone.
func (t *SheetsTracker) SyncFlagged(ctx context.Context, items []ReviewItem) (added, updated int, err error) {
	if err := t.InitializeSheet(ctx); err != nil {
		return 0, 0, err
	}

	existing, err := t.existingRows(ctx)
	if err != nil {
		return 0, 0, err
	}

	var (
		newRows [][]interface{}
		updates []*sheets.ValueRange
	)
	for _, item := range items {
		if item.Entry == nil {
			continue
		}
		row := BuildRow(item)
		if rowNum, ok := existing[item.Entry.ID]; ok {
			updates = append(updates, &sheets.ValueRange{
				Range:  fmt.Sprintf("%s!"+machineColumns, t.sheetName, rowNum, rowNum),
				Values: [][]interface{}{row[1:11]},
			})
			continue
		}
		newRows = append(newRows, row)
	}

	if len(newRows) > 0 {
		appendRange := fmt.Sprintf("%s!A:M", t.sheetName)
		_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, appendRange, &sheets.ValueRange{Values: newRows}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to append review rows: %w", err)
		}
		added = len(newRows)
	}

	if len(updates) > 0 {
		req := &sheets.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             updates,
		}
		if _, err := t.service.Spreadsheets.Values.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return added, 0, fmt.Errorf("failed to update review rows: %w", err)
		}
		updated = len(updates)
	}

	t.log.Info().Int("added", added).Int("updated", updated).Msg("Flagged entries synced to sheet")
	return added, updated, nil
}

// InitializeSheet creates the sheet and its header row if missing
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:M1", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	header := make([]interface{}, 0, len(ReviewColumns))
	for _, col := range ReviewColumns {
		header = append(header, col)
	}
	_, err = t.service.Spreadsheets.Values.Update(t.spreadsheetID, fmt.Sprintf("%s!A1", t.sheetName), &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Review sheet headers initialized")
	return nil
}

func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.sheetName {
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating review sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: t.sheetName}}},
		},
	}
	if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

// existingRows maps entry IDs already in the sheet to their 1-indexed row numbers
func (t *SheetsTracker) existingRows(ctx context.Context) (map[uint]int, error) {
	readRange := fmt.Sprintf("%s!A:A", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry IDs: %w", err)
	}

	rows := make(map[uint]int, len(resp.Values))
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue // header
		}
		id, err := strconv.ParseUint(fmt.Sprintf("%v", row[0]), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		rows[uint(id)] = i + 1
	}
	return rows, nil
}

// BuildRow renders a review item in ReviewColumns order. Reviewer columns are left blank.
func BuildRow(item ReviewItem) []interface{} {
	e := item.Entry

	var (
		confidence string
		flags      string
		notes      string
	)
	if a := item.Analysis; a != nil {
		confidence = strconv.FormatFloat(a.Confidence, 'f', 2, 64)
		flags = strings.Join(a.FlaggedPatterns, ", ")
		notes = a.ProcessingNotes
	}

	media := e.VideoURL
	if media == "" {
		media = e.ImageURL
	}

	return []interface{}{
		e.ID,
		e.Source,
		string(e.ContentType),
		string(e.Status),
		confidence,
		flags,
		notes,
		preview(e.Text),
		e.SourceURL,
		media,
		e.CreatedAt.UTC().Format(time.RFC3339),
		"", // Decision
		"", // Reviewer Notes
	}
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
