package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the database contents",
	Long:  `Shows per-system row counts, date coverage and recorded gaps for everything in the database.`,
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	ids, err := st.SystemIDs()
	if err != nil {
		return fmt.Errorf("listing systems: %w", err)
	}
	if len(ids) == 0 {
		fmt.Printf("Database %s is empty\n", getDBPath(cfg))
		return nil
	}

	fmt.Printf("\nDatabase %s:\n", getDBPath(cfg))
	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%-10s  %12s  %-12s  %-12s  %8s  %8s\n",
		"System", "Rows", "First", "Last", "Days", "Gaps")
	fmt.Println("----------------------------------------------------------------------")

	var totalRows int
	for _, id := range ids {
		count, err := st.ObservationCount(id)
		if err != nil {
			return fmt.Errorf("counting rows for system %d: %w", id, err)
		}
		totalRows += count

		covered, err := st.CoveredDates(id)
		if err != nil {
			return fmt.Errorf("reading coverage for system %d: %w", id, err)
		}
		var first, last string
		if len(covered) > 0 {
			days := make([]string, 0, len(covered))
			for d := range covered {
				days = append(days, d.Format("2006-01-02"))
			}
			first, last = days[0], days[0]
			for _, d := range days {
				if d < first {
					first = d
				}
				if d > last {
					last = d
				}
			}
		}

		missing, err := st.MissingRanges(id)
		if err != nil {
			return fmt.Errorf("reading missing ranges for system %d: %w", id, err)
		}

		fmt.Printf("%-10d  %12s  %-12s  %-12s  %8d  %8d\n",
			id, humanize.Comma(int64(count)), first, last, len(covered), len(missing))
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%d system(s), %s rows\n", len(ids), humanize.Comma(int64(totalRows)))
	return nil
}
