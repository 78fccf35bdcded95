package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openpv/pvharvest/internal/daterange"
	"github.com/openpv/pvharvest/internal/publisher"
)

var (
	publishSince string
	publishLimit int
)

var publishCmd = &cobra.Command{
	Use:   "publish [system_id]",
	Short: "Publish stored readings to MQTT",
	Long:  `Reads stored readings from the database and publishes them to the configured MQTT broker, oldest first.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishSince, "since", "", "only publish readings since this date (YYYY-MM-DD or Nd)")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "limit number of readings to publish (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	systemID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid system id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.MQTT.Enabled {
		return fmt.Errorf("MQTT is not enabled in config")
	}

	pub, err := publisher.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	var r daterange.DateRange
	if publishSince != "" {
		since, err := parseDate(publishSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		if r, err = daterange.New(since, time.Now().UTC()); err != nil {
			return err
		}
	}

	obs, err := st.ListObservations(systemID, r)
	if err != nil {
		return fmt.Errorf("listing observations: %w", err)
	}
	if publishLimit > 0 && len(obs) > publishLimit {
		obs = obs[len(obs)-publishLimit:]
	}
	if len(obs) == 0 {
		fmt.Println("No readings to publish")
		return nil
	}

	fmt.Printf("Publishing %d reading(s) for system %d...\n", len(obs), systemID)
	if err := pub.PublishAll(obs); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}

	fmt.Printf("✓ Published %d reading(s)\n", len(obs))
	return nil
}
