package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var insolationDate string

var insolationCmd = &cobra.Command{
	Use:   "insolation [system_id]",
	Short: "Fetch predicted clear-sky output for a system",
	Long:  `Fetches the predicted clear-sky power curve for a system on one date. Requires a donation-mode API key.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInsolation,
}

func init() {
	insolationCmd.Flags().StringVar(&insolationDate, "date", "1d", "date to fetch (YYYY-MM-DD or Nd for N days ago)")
	rootCmd.AddCommand(insolationCmd)
}

func runInsolation(cmd *cobra.Command, args []string) error {
	systemID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid system id %q", args[0])
	}

	date, err := parseDate(insolationDate)
	if err != nil {
		return fmt.Errorf("parsing --date: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	preds, err := client.GetInsolation(cmd.Context(), systemID, date)
	if err != nil {
		return fmt.Errorf("fetching insolation: %w", err)
	}
	if len(preds) == 0 {
		fmt.Printf("No insolation data for system %d on %s\n", systemID, date.Format("2006-01-02"))
		return nil
	}

	fmt.Printf("\nPredicted clear-sky output for system %d on %s:\n", systemID, date.Format("2006-01-02"))
	fmt.Println("------------------------------------------")
	fmt.Printf("%-8s  %12s  %14s\n", "Time", "Power W", "Cumulative Wh")
	fmt.Println("------------------------------------------")
	for _, p := range preds {
		fmt.Printf("%-8s  %12.1f  %14.1f\n",
			p.Timestamp.Format("15:04"), p.PredictedPowerGenW, p.PredictedCumulativeEnergyGenWh)
	}
	return nil
}
