package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/edad/internal/groutine"
	"github.com/srg/edad/internal/peripheral"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Advertise the EDA service and publish levels",
	Long: `Register the EDA service on the local BLE adapter, advertise it and
publish levels from the configured sensor source until interrupted.

Peers that subscribe to the EDA level characteristic receive a notification
on every change. A peer that returns after missing an update gets the current
level replayed when it re-enables notifications.`,
	RunE: runServe,
}

var serveName string

func init() {
	serveCmd.Flags().StringVarP(&serveName, "name", "n", "", "Advertised device name (overrides device_name)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return err
	}
	if serveName != "" {
		cfg.DeviceName = serveName
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	disp := peripheral.NewDispatcher(logger, 0)
	host := peripheral.NewBLEHost(disp, logger)
	st, err := buildStack(cfg, disp, host, logger)
	if err != nil {
		return err
	}
	disp.Start(ctx)

	src, closeSrc, err := openSource(ctx, cfg.Sensor, cmd.InOrStdin(), logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	published := groutine.Go(ctx, "publisher", func(ctx context.Context) {
		if err := st.pub.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Level publishing stopped")
		}
	})

	err = host.Serve(ctx, cfg.DeviceName)
	stop()
	<-published

	stats := st.pub.Stats()
	produced, skipped, overwritten := src.Stats()
	logger.WithFields(logrus.Fields{
		"published":   stats.Published,
		"failed":      stats.Failed,
		"replayed":    stats.Replayed,
		"samples":     produced,
		"bad_samples": skipped,
		"overwritten": overwritten,
	}).Info("EDA peripheral stopped")

	return err
}
