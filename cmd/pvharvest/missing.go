package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var missingCmd = &cobra.Command{
	Use:   "missing [system_id]",
	Short: "List date ranges recorded as having no data",
	Long: `Displays the date ranges the API reported no data for.  These are
skipped by later downloads; delete rows from the missing_dates table to
force a re-check.`,
	Args: cobra.ExactArgs(1),
	RunE: runMissing,
}

func init() {
	rootCmd.AddCommand(missingCmd)
}

func runMissing(cmd *cobra.Command, args []string) error {
	systemID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid system id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	ranges, err := st.MissingRanges(systemID)
	if err != nil {
		return fmt.Errorf("listing missing ranges: %w", err)
	}
	if len(ranges) == 0 {
		fmt.Printf("No missing ranges recorded for system %d\n", systemID)
		return nil
	}

	fmt.Printf("\nSystem %d missing data:\n", systemID)
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%-12s  %-12s  %s\n", "From", "To", "Recorded")
	fmt.Println("--------------------------------------------------")
	totalDays := 0
	for _, r := range ranges {
		days := int(r.EndDate.Sub(r.StartDate).Hours()/24) + 1
		totalDays += days
		fmt.Printf("%-12s  %-12s  %s\n",
			r.StartDate.Format("2006-01-02"),
			r.EndDate.Format("2006-01-02"),
			r.RequestedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println("--------------------------------------------------")
	fmt.Printf("%d range(s), %d day(s) total\n", len(ranges), totalDays)
	return nil
}
