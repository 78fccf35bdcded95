package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var systemStats bool

var systemCmd = &cobra.Command{
	Use:   "system [system_id]",
	Short: "Show a system's directory entry",
	Long:  `Fetches a system's metadata from the directory, and with --stats its lifetime summary statistics.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSystem,
}

func init() {
	systemCmd.Flags().BoolVar(&systemStats, "stats", false, "also fetch summary statistics")
	rootCmd.AddCommand(systemCmd)
}

func runSystem(cmd *cobra.Command, args []string) error {
	systemID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid system id %q", args[0])
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

	meta, err := client.GetMetadata(cmd.Context(), systemID)
	if err != nil {
		return fmt.Errorf("fetching metadata: %w", err)
	}

	fmt.Printf("\nSystem %d: %s\n", meta.SystemID, meta.Name)
	fmt.Println("----------------------------------------")
	fmt.Printf("Capacity:       %.0f W\n", meta.SystemDCCapacityW)
	fmt.Printf("Panels:         %d x %.0f W %s\n", meta.NumPanels, meta.PanelCapacityWEach, meta.PanelBrand)
	fmt.Printf("Inverter:       %s (%.0f W)\n", meta.InverterBrand, meta.InverterCapacityW)
	fmt.Printf("Orientation:    %s, tilt %.1f°\n", meta.Orientation, meta.ArrayTiltDegrees)
	fmt.Printf("Location:       %s (%.4f, %.4f)\n", meta.Address, meta.Latitude, meta.Longitude)
	if !meta.InstallDate.IsZero() {
		fmt.Printf("Installed:      %s\n", meta.InstallDate.Format("2006-01-02"))
	}
	if meta.StatusIntervalMinutes > 0 {
		fmt.Printf("Interval:       %d minutes\n", meta.StatusIntervalMinutes)
	}

	if !systemStats {
		return nil
	}

	stat, err := client.GetStatistic(cmd.Context(), systemID, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("fetching statistics: %w", err)
	}
	if stat == nil {
		fmt.Println("\nNo statistics: system has never reported data")
		return nil
	}

	lifetimeDays := int(stat.ActualDateTo.Sub(stat.ActualDateFrom).Hours()/24) + 1
	fmt.Println("\nLifetime statistics:")
	fmt.Println("----------------------------------------")
	fmt.Printf("Reporting:      %s to %s (%d of %d days)\n",
		stat.ActualDateFrom.Format("2006-01-02"), stat.ActualDateTo.Format("2006-01-02"),
		stat.NumOutputs, lifetimeDays)
	fmt.Printf("Total energy:   %.1f kWh\n", stat.TotalEnergyGenWh/1e3)
	fmt.Printf("Daily average:  %.1f kWh\n", stat.AverageDailyEnergyGenWh/1e3)
	fmt.Printf("Efficiency:     %.2f kWh/kW avg, %.2f kWh/kW record (%s)\n",
		stat.AverageEfficiencyKWhPerKW, stat.RecordEfficiencyKWhPerKW,
		stat.RecordEfficiencyDate.Format("2006-01-02"))
	return nil
}
