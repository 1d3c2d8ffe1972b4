package main

import (
	"github.com/spf13/cobra"

	"futuresbot/internal/config"
	"futuresbot/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "futuresbot",
	Short: "Risk-managed futures trading bot",
	Long: `futuresbot runs the risk engine and position ledger of a leveraged
futures bot and exposes them over an operator API.

Configuration comes from environment variables (see internal/config)
and an optional YAML file set by RISK_CONFIG_FILE.`,
	SilenceUsage: true,
}

// loadConfig загружает конфигурацию и инициализирует глобальный логгер
func loadConfig() (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return cfg, log, nil
}
