package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/edad/internal/eda"
	"github.com/srg/edad/internal/gatt"
	"github.com/srg/edad/internal/gatt/attdb"
	"github.com/srg/edad/internal/peripheral"
	"github.com/srg/edad/internal/publisher"
	"github.com/srg/edad/internal/sensor"
	"github.com/srg/edad/pkg/config"
)

// host is what both the BLE and the simulated peripheral provide.
type host interface {
	gatt.Registry
	gatt.NotificationTransport
	Conns() *attdb.ConnTable
}

// stack is an EDA service wired to a host, a dispatcher and a publisher.
type stack struct {
	disp *peripheral.Dispatcher
	svc  *eda.Service
	pub  *publisher.Publisher
}

func buildStack(cfg *config.Config, disp *peripheral.Dispatcher, h host, logger *logrus.Logger) (*stack, error) {
	pub := publisher.New(disp, h.Conns(), publisher.Options{
		ReplayOnReconnect: cfg.ReplayOnReconnect,
		Logger:            logger,
	})

	edaCfg, err := cfg.EDAConfig(pub.HandleServiceEvent)
	if err != nil {
		return nil, err
	}
	svc, err := eda.New(&edaCfg, eda.Stack{
		Registry:  h,
		Conns:     h.Conns(),
		Transport: pub.Transport(h),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize EDA service: %w", err)
	}
	pub.Bind(svc)

	disp.Observe(svc)
	disp.Observe(pub)
	return &stack{disp: disp, svc: svc, pub: pub}, nil
}

// loadConfig reads --config, or returns the defaults when it is not set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// openSource builds the configured level source behind a ring buffer. The
// returned cleanup releases the source once its pump is no longer needed.
func openSource(ctx context.Context, cfg config.SensorConfig, stdin io.Reader, logger *logrus.Logger) (*sensor.Buffered, func(), error) {
	var (
		src     sensor.Source
		closers []io.Closer
	)

	switch cfg.Kind {
	case config.SensorSimulated:
		sim := sensor.NewSimulated(cfg.Interval, cfg.Seed)
		src, closers = sim, append(closers, sim)
	case config.SensorFile:
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open level file: %w", err)
		}
		lr := sensor.NewLineReader(f, cfg.Interval)
		src, closers = lr, append(closers, lr, f)
	case config.SensorStdin:
		lr := sensor.NewLineReader(stdin, cfg.Interval)
		src, closers = lr, append(closers, lr)
	default:
		return nil, nil, fmt.Errorf("unknown sensor kind %q", cfg.Kind)
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.WithError(err).Debug("Failed to close level source")
			}
		}
	}

	buffered, err := sensor.NewBuffered(ctx, src, cfg.BufferSize, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.WithFields(logrus.Fields{
		"kind":     cfg.Kind,
		"interval": cfg.Interval,
	}).Info("Level source opened")
	return buffered, cleanup, nil
}
