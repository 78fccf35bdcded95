package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openpv/pvharvest/internal/pvoutput"
)

var (
	searchLat float64
	searchLon float64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the PVOutput systems directory",
	Long: `Searches the systems directory by name, postcode, size or distance.
Distance queries like "5km" need --lat and --lon.  The API caps results at 30.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Float64Var(&searchLat, "lat", 0, "latitude for distance queries")
	searchCmd.Flags().Float64Var(&searchLon, "lon", 0, "longitude for distance queries")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	opts := &pvoutput.SearchOptions{IncludeCountry: true}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
		opts.HasLocation = true
		opts.Lat = searchLat
		opts.Lon = searchLon
	}

	results, err := client.Search(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No systems found")
		return nil
	}

	fmt.Printf("%-10s  %-30s  %10s  %8s  %s\n", "System ID", "Name", "Capacity W", "Outputs", "Address")
	for _, r := range results {
		fmt.Printf("%-10d  %-30s  %10.0f  %8d  %s\n",
			r.SystemID, r.Name, r.SystemDCCapacityW, r.NumOutputs, r.Address)
	}
	fmt.Printf("\n%d system(s) found\n", len(results))
	return nil
}
