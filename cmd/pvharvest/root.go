package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openpv/pvharvest/internal/config"
	"github.com/openpv/pvharvest/internal/logging"
	"github.com/openpv/pvharvest/internal/pvoutput"
	"github.com/openpv/pvharvest/internal/store"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "pvharvest",
	Short: "Download solar PV readings from PVOutput.org",
	Long: `PVHarvest collects timeseries readings from PVOutput.org and stores
them in a local SQLite database.  Downloads are incremental: dates already
stored or known to have no data are skipped, so an interrupted run picks up
where it left off.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default from config, falling back to ./pvharvest.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// getDBPath returns the database file path
func getDBPath(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.GetDBPath()
}

// openStore opens the database connection
func openStore(cfg *config.Config) (*store.Store, error) {
	path := getDBPath(cfg)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return store.Open(path)
}

// newLogger builds the logger shared by the library packages
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := logLevel
	if level == "" {
		level = cfg.GetLogLevel()
	}
	return logging.New(level, "console")
}

// newClient builds the PVOutput API client from config
func newClient(cfg *config.Config, logger *zap.Logger) (*pvoutput.Client, error) {
	if cfg.APIKey == "" || cfg.SystemID == "" {
		return nil, fmt.Errorf("api_key and system_id must be set in %s or via PVOUTPUT_APIKEY / PVOUTPUT_SYSTEMID", getConfigPath())
	}

	return pvoutput.NewClient(pvoutput.ClientConfig{
		APIKey:         cfg.APIKey,
		SystemID:       cfg.SystemID,
		DataServiceURL: cfg.DataServiceURL,
		Timezone:       cfg.Timezone,
		Logger:         logger,
	})
}
