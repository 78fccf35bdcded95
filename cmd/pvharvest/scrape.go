package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openpv/pvharvest/internal/mapscraper"
)

var scrapeMinDays int

var scrapeCmd = &cobra.Command{
	Use:   "scrape-map [country_code]",
	Short: "Scrape system listings from the public map",
	Long: `Walks the public map pages for a PVOutput country code (1-257) and
prints every listed system.  Useful for finding system IDs to download:
the search API caps at 30 results, the map does not.`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeMinDays, "min-days", 0, "only show systems reporting for at least this many days")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	countryCode, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid country code %q", args[0])
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

	fmt.Printf("Scraping map pages for country %d...\n", countryCode)
	scraper := mapscraper.New(logger)
	systems, err := scraper.SystemsForCountry(cmd.Context(), countryCode)
	if err != nil {
		return fmt.Errorf("scraping map: %w", err)
	}

	shown := 0
	fmt.Printf("%-10s  %-30s  %10s  %8s  %12s\n", "System ID", "Name", "Capacity W", "Days", "Total kWh")
	for _, sys := range systems {
		if sys.TimeseriesDays < scrapeMinDays {
			continue
		}
		shown++
		fmt.Printf("%-10d  %-30s  %10.0f  %8d  %12.1f\n",
			sys.SystemID, sys.Name, sys.SystemDCCapacityW, sys.TimeseriesDays, sys.TotalEnergyGenWh/1e3)
	}
	fmt.Printf("\n%d of %d system(s) shown\n", shown, len(systems))
	return nil
}
