package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openpv/pvharvest/internal/downloader"
)

var (
	downloadFrom         string
	downloadTo           string
	downloadPerDay       bool
	downloadAvailability float64
	downloadAllStored    bool
)

var downloadCmd = &cobra.Command{
	Use:   "download [system_id...]",
	Short: "Download readings for one or more systems",
	Long: `Downloads timeseries readings for the given system IDs over a date range.
Dates already stored or recorded as having no data are skipped.  With a
data service URL configured, whole years are fetched per request; otherwise
one request is made per day.

With --all-stored and no arguments, every system already in the database
is refreshed.`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadFrom, "from", "", "start date (YYYY-MM-DD or Nd for N days ago)")
	downloadCmd.Flags().StringVar(&downloadTo, "to", "", "end date (YYYY-MM-DD, default: yesterday)")
	downloadCmd.Flags().BoolVar(&downloadPerDay, "per-day", false, "force one request per date even with a data service configured")
	downloadCmd.Flags().Float64Var(&downloadAvailability, "min-availability", 0, "skip systems reporting on fewer than this fraction of their lifetime days")
	downloadCmd.Flags().BoolVar(&downloadAllStored, "all-stored", false, "download for every system already in the database")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Download started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	systemIDs, err := resolveSystemIDs(args, st, downloadAllStored)
	if err != nil {
		return err
	}
	if len(systemIDs) == 0 {
		return fmt.Errorf("no systems to download; pass system IDs or use --all-stored")
	}

	start, end, err := resolveDateRange(downloadFrom, downloadTo)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Downloading %d system(s), %s to %s...\n",
		len(systemIDs), start.Format("2006-01-02"), end.Format("2006-01-02"))
	if client.HasDataService() && !downloadPerDay {
		fmt.Println("Using data service (yearly batches)")
	}

	dl := downloader.New(client, st, downloader.Options{
		PerDay:              downloadPerDay,
		MinDataAvailability: downloadAvailability,
	}, logger)

	report, err := dl.Download(cmd.Context(), systemIDs, start, end)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}

	for _, sr := range report.Systems {
		switch {
		case sr.Err != nil:
			fmt.Printf("⚠ System %d failed: %v\n", sr.SystemID, sr.Err)
		case sr.Skipped:
			fmt.Printf("- System %d skipped: %s\n", sr.SystemID, sr.SkipReason)
		default:
			fmt.Printf("✓ System %d: %d rows imported, %d missing range(s) recorded, %d duplicate(s) removed\n",
				sr.SystemID, sr.RowsImported, sr.MissingRecorded, sr.RowsDeduped)
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d systems failed", len(failed), len(report.Systems))
	}
	return nil
}

// resolveSystemIDs turns command arguments into system IDs, falling
// back to the database contents when --all-stored is set.
func resolveSystemIDs(args []string, st interface{ SystemIDs() ([]int, error) }, allStored bool) ([]int, error) {
	if len(args) > 0 {
		ids := make([]int, 0, len(args))
		for _, arg := range args {
			id, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid system id %q", arg)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	if allStored {
		return st.SystemIDs()
	}
	return nil, nil
}

// resolveDateRange applies the flag defaults: the last 30 days through
// yesterday (today's readings are still accumulating).
func resolveDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)

	end := yesterday
	if toStr != "" {
		var err error
		end, err = parseDate(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --to date: %w", err)
		}
	}

	start := end.AddDate(0, 0, -30)
	if fromStr != "" {
		var err error
		start, err = parseDate(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --from date: %w", err)
		}
	}

	return start, end, nil
}

func parseDate(dateStr string) (time.Time, error) {
	// Try absolute date format first
	t, err := time.Parse("2006-01-02", dateStr)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		daysStr := dateStr[:len(dateStr)-1]
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err == nil {
			return time.Now().UTC().AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}
