package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hotdog-curator/internal/agent/scanner"
	"github.com/hotdog-curator/internal/app"
	"github.com/hotdog-curator/internal/config"
	"github.com/hotdog-curator/internal/models"
	"github.com/hotdog-curator/internal/queue"
	"github.com/hotdog-curator/internal/storage"
	"github.com/hotdog-curator/internal/tracker"
	"github.com/hotdog-curator/pkg/logger"
)

var (
	cfgFile      string
	outputFormat string
	cfg          *config.Config
	log          *logger.Logger
	curator      *app.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hotdog-curator",
		Short: "Curates hotdog content into a balanced posting queue",
		Long: `Scans configured sources for hotdog content, filters out duplicates,
spam and off-topic posts, and keeps the posting queue balanced across
sources and content types.`,
		PersistentPreRunE:  initializeApp,
		PersistentPostRunE: closeApp,
		SilenceUsage:       true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", formatTable, "output format: table, json or yaml")

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(entriesCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(reviewCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stdout carries command output
	logOutput := cfg.Logging.Output
	if logOutput == "" || logOutput == "stdout" {
		logOutput = "stderr"
	}
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})

	curator, err = app.New(cmd.Context(), cfg, log)
	return err
}

func closeApp(cmd *cobra.Command, args []string) error {
	if curator == nil {
		return nil
	}
	return curator.Close()
}

// ============ SCAN COMMANDS ============

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Source scanning commands",
	}

	cmd.AddCommand(scanRunCmd())
	cmd.AddCommand(scanForceCmd())
	cmd.AddCommand(scanForecastCmd())
	return cmd
}

func scanRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daily scan, skipping sources the queue does not need",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := curator.Scanner.RunDailyScan(cmd.Context())
			if err != nil {
				return err
			}
			return render(outputFormat, summary, func(w io.Writer) { printSummary(w, summary) })
		},
	}
}

func scanForceCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "force [source...]",
		Short: "Scan sources regardless of queue balance (all sources when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := curator.Scanner.ForceScan(cmd.Context(), args, reason)
			if err != nil {
				return err
			}
			return render(outputFormat, summary, func(w io.Writer) { printSummary(w, summary) })
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the scan")
	return cmd
}

func scanForecastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forecast",
		Short: "Project the queue over the next seven days",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := curator.Scanner.WeeklyForecast(cmd.Context())
			if err != nil {
				return err
			}

			return render(outputFormat, f, func(w io.Writer) {
				fmt.Fprintf(w, "\n=== Weekly Forecast ===\n")
				fmt.Fprintf(w, "Current: %d items, %d posts/day, minimum %d\n\n", f.Current, f.PostsPerDay, f.MinSize)

				t := newTable(w, table.Row{"Day", "Date", "Projected", "Days Left", "Status"})
				for _, d := range f.Days {
					status := "ok"
					if d.BelowMinimum {
						status = "BELOW MINIMUM"
					}
					t.AppendRow(table.Row{d.Day, d.Date.Format("Mon Jan 2"), d.Projected, fmt.Sprintf("%.1f", d.DaysOfContent), status})
				}
				t.Render()

				if f.ShortfallDay > 0 {
					fmt.Fprintf(w, "\nQueue drops below minimum on day %d\n", f.ShortfallDay)
				}
			})
		},
	}
}

func printSummary(w io.Writer, s *scanner.Summary) {
	fmt.Fprintf(w, "\n=== Scan Results (%s) ===\n", s.Reason)
	fmt.Fprintf(w, "Run ID:          %s\n", s.RunID)
	fmt.Fprintf(w, "Sources Scanned: %d (%d successful)\n", s.TotalScans, s.SuccessfulScans)
	fmt.Fprintf(w, "Items Found:     %d\n", s.TotalFound)
	fmt.Fprintf(w, "Items Approved:  %d\n", s.TotalApproved)
	if s.BeforeStats != nil && s.AfterStats != nil {
		fmt.Fprintf(w, "Queue:           %d -> %d (%.1f days)\n", s.BeforeStats.Total, s.AfterStats.Total, s.AfterStats.DaysOfContent)
	}
	fmt.Fprintf(w, "API Calls Saved: %d\n", s.APICallsSaved)
	if s.Retried > 0 || s.PermanentlyFailed > 0 {
		fmt.Fprintf(w, "Retries:         %d recovered, %d failed\n", s.Retried, s.PermanentlyFailed)
	}
	fmt.Fprintf(w, "Duration:        %s\n\n", s.Duration.Round(time.Millisecond))

	if len(s.Results) > 0 {
		t := newTable(w, table.Row{"Source", "Priority", "Found", "Approved", "Flagged", "Rejected", "Dupes", "Status"})
		for _, r := range s.Results {
			status := "ok"
			if !r.Success {
				status = "failed"
				if len(r.Errors) > 0 {
					status = truncateStr(r.Errors[0], 40)
				}
			}
			t.AppendRow(table.Row{r.Source, r.Priority, r.Found, r.Approved, r.Flagged, r.Rejected, r.Duplicates, status})
		}
		t.Render()
	}

	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped:\n")
		for _, rec := range s.Skipped {
			fmt.Fprintf(w, "  - %s: %s\n", rec.Source, rec.Reason)
		}
	}
}

// ============ QUEUE COMMANDS ============

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue balance commands",
	}

	cmd.AddCommand(queueStatsCmd())
	cmd.AddCommand(queueRecommendationsCmd())
	cmd.AddCommand(queueHealthCmd())
	return cmd
}

func queueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue size and composition",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := curator.Scanner.GetQueueStats(cmd.Context())
			if err != nil {
				return err
			}
			return render(outputFormat, stats, func(w io.Writer) { printStats(w, stats) })
		},
	}
}

func printStats(w io.Writer, stats *models.QueueStats) {
	fmt.Fprintf(w, "\n=== Queue (%d items, %.1f days) ===\n\n", stats.Total, stats.DaysOfContent)

	t := newTable(w, table.Row{"Content Type", "Count", "Share"})
	for _, ct := range models.ContentTypes {
		b := stats.ByContentType[ct]
		t.AppendRow(table.Row{ct, b.Count, fmt.Sprintf("%.1f%%", b.Percentage)})
	}
	t.Render()

	fmt.Fprintln(w)
	t = newTable(w, table.Row{"Source", "Count", "Share"})
	for name, b := range stats.BySource {
		t.AppendRow(table.Row{name, b.Count, fmt.Sprintf("%.1f%%", b.Percentage)})
	}
	t.SortBy([]table.SortBy{{Name: "Count", Mode: table.DscNumeric}})
	t.Render()
}

func queueRecommendationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommendations",
		Short: "Show which sources the next scan would visit",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := curator.Scanner.GetScanRecommendations(cmd.Context())
			if err != nil {
				return err
			}

			return render(outputFormat, recs, func(w io.Writer) {
				t := newTable(w, table.Row{"Source", "Priority", "Target Type", "Reason"})
				for _, r := range recs {
					t.AppendRow(table.Row{r.Source, r.Priority, r.TargetType, r.Reason})
				}
				t.Render()
			})
		},
	}
}

func queueHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue against its balance targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := curator.Queue.HealthCheck(cmd.Context())
			if err != nil {
				return err
			}

			return render(outputFormat, report, func(w io.Writer) { printHealth(w, report) })
		},
	}
}

func printHealth(w io.Writer, report *queue.HealthReport) {
	if report.Healthy {
		fmt.Fprintf(w, "Queue healthy: %d items, %.1f days of content\n", report.Stats.Total, report.Stats.DaysOfContent)
		return
	}
	fmt.Fprintf(w, "Queue needs attention:\n")
	for _, issue := range report.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

// ============ ENTRIES COMMANDS ============

func entriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Curated entry commands",
	}

	cmd.AddCommand(entriesListCmd())
	cmd.AddCommand(entriesShowCmd())
	cmd.AddCommand(entriesMarkPostedCmd())
	return cmd
}

func entriesListCmd() *cobra.Command {
	var status, source, contentType string
	var queued bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List curated entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.DefaultEntryFilter()
			if queued {
				filter = storage.QueuedFilter()
			}
			filter.Limit = limit

			if status != "" {
				s := models.EntryStatus(status)
				filter.Status = &s
			}
			if source != "" {
				filter.Source = &source
			}
			if contentType != "" {
				ct := models.ContentType(contentType)
				if !ct.Valid() {
					return fmt.Errorf("unknown content type %q", contentType)
				}
				filter.ContentType = &ct
			}

			entries, err := curator.Repo.ListEntries(cmd.Context(), filter)
			if err != nil {
				return err
			}

			return render(outputFormat, entries, func(w io.Writer) {
				fmt.Fprintf(w, "\n=== Entries (%d) ===\n\n", len(entries))
				t := newTable(w, table.Row{"ID", "Source", "Type", "Status", "Posted", "Created", "Text"})
				for _, e := range entries {
					t.AppendRow(table.Row{e.ID, e.Source, e.ContentType, e.Status, e.Posted, e.CreatedAt.Format("2006-01-02 15:04"), truncateStr(e.Text, 50)})
				}
				t.Render()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (approved, flagged, rejected, duplicate)")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source name")
	cmd.Flags().StringVar(&contentType, "type", "", "Filter by content type (text, image, gif, video, mixed)")
	cmd.Flags().BoolVar(&queued, "queued", false, "Only approved entries waiting to be posted, oldest first")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	return cmd
}

type entryDetail struct {
	Entry    *models.QueueEntry      `json:"entry" yaml:"entry"`
	Analysis *models.ContentAnalysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

func entriesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an entry and its analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			entry, err := curator.Repo.GetEntryByID(ctx, id)
			if err != nil {
				return err
			}
			detail := entryDetail{Entry: entry}
			if analysis, err := curator.Repo.GetAnalysis(ctx, id); err == nil {
				detail.Analysis = analysis
			}

			return render(outputFormat, detail, func(w io.Writer) {
				fmt.Fprintf(w, "\n=== Entry %d ===\n", entry.ID)
				fmt.Fprintf(w, "Source:   %s\n", entry.Source)
				fmt.Fprintf(w, "Type:     %s\n", entry.ContentType)
				fmt.Fprintf(w, "Status:   %s\n", entry.Status)
				fmt.Fprintf(w, "URL:      %s\n", entry.SourceURL)
				if entry.ImageURL != "" {
					fmt.Fprintf(w, "Image:    %s\n", entry.ImageURL)
				}
				if entry.VideoURL != "" {
					fmt.Fprintf(w, "Video:    %s\n", entry.VideoURL)
				}
				fmt.Fprintf(w, "Created:  %s\n", entry.CreatedAt.Format(time.RFC3339))
				if entry.PostedAt != nil {
					fmt.Fprintf(w, "Posted:   %s\n", entry.PostedAt.Format(time.RFC3339))
				}
				fmt.Fprintf(w, "\n%s\n", entry.Text)

				if a := detail.Analysis; a != nil {
					fmt.Fprintf(w, "\nConfidence: %.2f\n", a.Confidence)
					if len(a.FlaggedPatterns) > 0 {
						fmt.Fprintf(w, "Flags:      %v\n", []string(a.FlaggedPatterns))
					}
					if a.DuplicateOfID != nil {
						fmt.Fprintf(w, "Duplicate:  of %d (%s)\n", *a.DuplicateOfID, a.DuplicateMatchType)
					}
					if a.ProcessingNotes != "" {
						fmt.Fprintf(w, "Notes:      %s\n", a.ProcessingNotes)
					}
				}
			})
		},
	}
}

func entriesMarkPostedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-posted <id>",
		Short: "Mark an approved entry as published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := curator.Repo.MarkPosted(cmd.Context(), id, time.Now()); err != nil {
				return err
			}

			fmt.Fprintf(out, "Entry %d marked as posted\n", id)
			return nil
		},
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid entry ID %q", s)
	}
	return uint(id), nil
}

// ============ SOURCES COMMANDS ============

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Source connector commands",
	}

	cmd.AddCommand(sourcesListCmd())
	cmd.AddCommand(sourcesTestCmd())
	return cmd
}

func sourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured source profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles := cfg.Profiles()

			return render(outputFormat, profiles, func(w io.Writer) {
				t := newTable(w, table.Row{"Name", "Primary Type", "Target Share", "Repost Days", "Query"})
				for _, p := range profiles {
					t.AppendRow(table.Row{p.Name, p.PrimaryType, percent(p.TargetShare), p.RepostDays, p.Query})
				}
				t.Render()
			})
		},
	}
}

func sourcesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check connectivity of every configured connector",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			statuses := curator.Connectors.TestAll(ctx)

			return render(outputFormat, statuses, func(w io.Writer) {
				t := newTable(w, table.Row{"Source", "OK", "Message"})
				for _, s := range statuses {
					t.AppendRow(table.Row{s.Source, s.Success, truncateStr(s.Message, 60)})
				}
				t.Render()
			})
		},
	}
}

// ============ REVIEW COMMANDS ============

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manual review commands",
	}

	cmd.AddCommand(reviewSyncCmd())
	return cmd
}

func reviewSyncCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Export flagged entries to the review sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sheet, err := curator.Tracker(ctx)
			if err != nil {
				return err
			}

			items, err := tracker.CollectFlagged(ctx, curator.Repo, limit)
			if err != nil {
				return err
			}

			added, updated, err := sheet.SyncFlagged(ctx, items)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Review sheet synced: %d added, %d updated\n", added, updated)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum flagged entries to export")
	return cmd
}
