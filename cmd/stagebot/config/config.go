// Package config builds engine configurations from CLI flags and viper
// settings.
package config

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/sigayyury-ai/crmtowfirma-sub006/internal/reconciler"
	"github.com/sigayyury-ai/crmtowfirma-sub006/pkg/logger"
)

// CreateEngineConfig builds the engine configuration, applying any
// overrides from the config file or environment. The empirical
// constants keep their defaults unless explicitly overridden.
func CreateEngineConfig() (*reconciler.Config, error) {
	cfg := reconciler.DefaultConfig()

	if viper.IsSet("deposit_tolerance") {
		cfg.Evaluator.DepositTolerance = decimal.NewFromFloat(viper.GetFloat64("deposit_tolerance"))
	}
	if viper.IsSet("fully_paid_threshold") {
		cfg.Evaluator.FullyPaidThreshold = decimal.NewFromFloat(viper.GetFloat64("fully_paid_threshold"))
	}
	if viper.IsSet("split_inference_days") {
		cfg.Schedule.SplitInferenceDays = viper.GetInt("split_inference_days")
	}
	if viper.IsSet("dedup_window") {
		cfg.Dedup.Window = viper.GetDuration("dedup_window")
	}
	if viper.IsSet("notification_message") {
		cfg.NotificationMessage = viper.GetString("notification_message")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateLogger builds the process logger from the verbose flag and
// viper settings.
func CreateLogger(verbose bool) (logger.Logger, error) {
	cfg := logger.DefaultConfig()
	if verbose {
		cfg.Level = logger.DebugLevel
	} else if viper.IsSet("log_level") {
		cfg.Level = logger.ParseLevel(viper.GetString("log_level"))
	}
	if viper.GetString("log_format") == "json" {
		cfg.Format = logger.JSONFormat
	}
	return logger.New(cfg)
}
