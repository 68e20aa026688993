package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jogardn/orderdesk/internal/config"
)

var (
	// configFile is set by the --config flag.
	configFile string
	logLevel   string

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "orderdesk",
	Short: "Orderdesk manages customer orders",
	Long: `Orderdesk creates, lists, updates and deletes customer orders stored in
a hosted table, a local sqlite file, PostgreSQL or MySQL.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ordersCmd)
	rootCmd.AddCommand(copyCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l, err := newLogger(loaded.Log)
	if err != nil {
		return err
	}
	cfg, logger = loaded, l
	return nil
}
