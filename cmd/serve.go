package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"homelink/internal/api"
	"homelink/internal/hass"
	"homelink/internal/mqtt"
	"homelink/internal/store"
	"homelink/pkg/plugin"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the host with every compiled-in integration",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, loader, err := bootstrap()
	if logger != nil {
		defer logger.Sync()
	}
	if err != nil {
		return err
	}
	core := loader.Core()

	st, err := store.NewBoltStore(loader.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	h, err := hass.New(hass.Options{
		Config:  loader,
		Store:   st,
		Logger:  logger.Named("hass"),
		Workers: core.Workers,
	})
	if err != nil {
		return err
	}

	integrations, err := plugin.CreateAll(plugin.NewContext(h, logger, nil))
	if err != nil {
		return err
	}
	for _, integration := range integrations {
		h.AddIntegration(integration)
	}
	logger.Info("Starting homelink",
		zap.String("version", version),
		zap.String("config", loader.Path()),
		zap.Strings("integrations", h.Domains()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx); err != nil {
		logger.Error("Some integrations failed to set up", zap.Error(err))
	}

	server := api.NewServer(h, logger.Named("api"), core.API.Port)
	if err := server.Start(); err != nil {
		return err
	}

	if core.MQTT.Broker != "" {
		bridge, err := mqtt.NewBridge(h, mqtt.Config{
			Broker:   core.MQTT.Broker,
			Username: core.MQTT.Username,
			Password: core.MQTT.Password,
			Prefix:   core.MQTT.Prefix,
		}, logger)
		if err != nil {
			logger.Error("MQTT bridge disabled", zap.Error(err))
		} else {
			bridge.Start()
			defer bridge.Stop()
		}
	}

	go h.Run(ctx)

	logger.Info("homelink running. Press Ctrl+C to exit.")
	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.Stop(shutdownCtx)
}
