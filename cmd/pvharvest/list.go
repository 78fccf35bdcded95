package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openpv/pvharvest/internal/daterange"
)

var (
	listFrom string
	listTo   string
)

var listCmd = &cobra.Command{
	Use:   "list [system_id]",
	Short: "List stored readings for a system",
	Long:  `Displays stored readings for a system from the database, one line per day.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listFrom, "from", "", "start date (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listTo, "to", "", "end date (YYYY-MM-DD)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
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

	var r daterange.DateRange
	if listFrom != "" || listTo != "" {
		start, end, err := resolveDateRange(listFrom, listTo)
		if err != nil {
			return err
		}
		if r, err = daterange.New(start, end); err != nil {
			return err
		}
	}

	obs, err := st.ListObservations(systemID, r)
	if err != nil {
		return fmt.Errorf("listing observations: %w", err)
	}
	if len(obs) == 0 {
		fmt.Printf("No data found for system %d\n", systemID)
		return nil
	}

	// One summary line per day: readings, peak power, final energy.
	fmt.Printf("\nSystem %d readings:\n", systemID)
	fmt.Println("------------------------------------------------------")
	fmt.Printf("%-12s  %8s  %12s  %12s\n", "Date", "Readings", "Peak W", "Energy Wh")
	fmt.Println("------------------------------------------------------")

	var (
		curDay   time.Time
		count    int
		peak     float64
		energy   float64
		printDay = func() {
			if count == 0 {
				return
			}
			fmt.Printf("%-12s  %8d  %12.1f  %12.1f\n",
				curDay.Format("2006-01-02"), count, peak, energy)
		}
	)
	for _, o := range obs {
		day := daterange.Day(o.Timestamp)
		if !day.Equal(curDay) {
			printDay()
			curDay, count, peak, energy = day, 0, 0, 0
		}
		count++
		if o.InstantaneousPowerGenW != nil && *o.InstantaneousPowerGenW > peak {
			peak = *o.InstantaneousPowerGenW
		}
		if o.CumulativeEnergyGenWh != nil {
			energy = *o.CumulativeEnergyGenWh
		}
	}
	printDay()

	fmt.Println("------------------------------------------------------")
	fmt.Printf("%d readings total\n", len(obs))
	return nil
}
