package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statusDate string

var statusCmd = &cobra.Command{
	Use:   "status [system_id]",
	Short: "Fetch one day of readings without storing them",
	Long:  `Fetches a single day's readings for a system and prints them. Nothing is written to the database.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDate, "date", "1d", "date to fetch (YYYY-MM-DD or Nd for N days ago)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	systemID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid system id %q", args[0])
	}

	date, err := parseDate(statusDate)
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

	obs, err := client.GetStatus(cmd.Context(), systemID, date)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}
	if len(obs) == 0 {
		fmt.Printf("No data for system %d on %s\n", systemID, date.Format("2006-01-02"))
		return nil
	}

	fmt.Printf("\nSystem %d on %s:\n", systemID, date.Format("2006-01-02"))
	fmt.Println("--------------------------------------------------------")
	fmt.Printf("%-18s  %10s  %12s  %8s\n", "Time", "Power W", "Energy Wh", "Temp °C")
	fmt.Println("--------------------------------------------------------")
	for _, o := range obs {
		fmt.Printf("%-18s  %10s  %12s  %8s\n",
			o.Timestamp.Format("15:04"),
			formatMetric(o.InstantaneousPowerGenW),
			formatMetric(o.CumulativeEnergyGenWh),
			formatMetric(o.TemperatureC))
	}
	fmt.Println("--------------------------------------------------------")
	fmt.Printf("%d readings\n", len(obs))

	rl := client.RateLimit()
	fmt.Printf("Rate limit: %d of %d requests remaining\n", rl.Remaining, rl.Limit)
	return nil
}

func formatMetric(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
