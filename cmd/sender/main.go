package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ihong9059/raspberry-weather-monitor/internal/config"
	"github.com/ihong9059/raspberry-weather-monitor/internal/logging"
	"github.com/ihong9059/raspberry-weather-monitor/internal/sender"
)

const appName = "weather-sender"

var version = "dev"

func main() {
	configPath := flag.String("config", "sender.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "send the first reading and exit")
	flag.Parse()

	cfg, err := sender.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)

	logger := logging.New(config.Config{AppEnv: "prod", LogLevel: level}, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("sender failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg sender.Config, once bool, logger *slog.Logger) error {
	src, err := sender.OpenSource(cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	// A blocked read on a serial port only returns once the port is closed.
	go func() {
		<-ctx.Done()
		_ = src.Close()
	}()

	var transport sender.Transport
	switch cfg.Transport {
	case sender.TransportMQTT:
		t := sender.NewMQTTTransport(cfg.MQTT, logger)
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := t.Connect(connectCtx)
		cancel()
		if err != nil {
			_ = t.Close()
			return fmt.Errorf("mqtt: %w", err)
		}
		transport = t
	default:
		transport = sender.NewHTTPTransport(cfg, logger)
	}
	defer transport.Close()

	logger.Info("sender started",
		"source", cfg.Source,
		"baud_rate", cfg.BaudRate,
		"transport", cfg.Transport,
		"sensor_id", cfg.SensorID,
		"once", once,
	)

	n, err := sender.Run(ctx, src, transport, sender.Options{
		SensorID: cfg.SensorID,
		Once:     once,
		Logger:   logger,
	})
	logger.Info("sender stopped", "sent", n)
	return err
}
