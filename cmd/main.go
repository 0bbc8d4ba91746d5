package main

import (
	"fmt"
	"os"

	"homelink/internal/config"

	// Integrations register themselves from init().
	_ "homelink/internal/integrations/homeconnect"
	_ "homelink/internal/integrations/lupusec"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "homelink",
	Short: "Home automation host for vendor integrations",
	Long: `homelink runs vendor integrations (Home Connect appliances, Lupusec alarm
panels) behind one host: config entries, device and entity registries,
service calls over HTTP and MQTT.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Configuration file (env: HOMELINK_CONFIG, default: configuration.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the config file)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from flag or environment.
func resolveConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if v := os.Getenv("HOMELINK_CONFIG"); v != "" {
		return v
	}
	return "configuration.yaml"
}

// bootstrap loads .env and the configuration file and returns a logger at
// the configured level.
func bootstrap() (*zap.Logger, *config.Loader, error) {
	// .env is optional; the environment may already be set.
	envErr := godotenv.Load()

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	loader := config.NewLoader(resolveConfigPath(), logger.Named("config"))
	if err := loader.Load(); err != nil {
		return logger, nil, err
	}

	name := loader.Core().LogLevel
	if flagLogLevel != "" {
		name = flagLogLevel
	}
	parsed, err := zapcore.ParseLevel(name)
	if err != nil {
		return logger, nil, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(parsed)

	return logger, loader, nil
}
