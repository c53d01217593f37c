package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/armtune/tuner-core/internal/experiment"
	"github.com/armtune/tuner-core/internal/optimizer"
	"github.com/armtune/tuner-core/internal/session"
	"github.com/armtune/tuner-core/internal/transport"
	"github.com/armtune/tuner-core/pkg/config"
	"github.com/armtune/tuner-core/pkg/logger"
	"github.com/armtune/tuner-core/pkg/utils"
)

func main() {
	var configPath string
	var logLevel string
	var port string

	flag.StringVar(&configPath, "config", "configurations.yaml", "path to configuration file")
	flag.StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flag.StringVar(&port, "port", "", "serial port override (e.g. /dev/ttyACM0)")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if port != "" {
		cfg.Arduino.Port = port
	}

	logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newRunner := func() (optimizer.ExperimentRunner, error) {
		serial, err := transport.OpenSerial(transport.Config{
			Port:           cfg.Arduino.Port,
			BaudRate:       cfg.Arduino.BaudRate,
			ReadTimeout:    cfg.Arduino.ReadTimeout(),
			SettleInterval: cfg.Arduino.SettleInterval(),
		})
		if err != nil {
			return nil, err
		}
		backoff := utils.BackoffFromConfig(cfg.Handshake.Backoff, cfg.Handshake.BaseMs, cfg.Handshake.MaxMs)
		return experiment.NewRunner(serial, cfg.Handshake.MaxAttempts, backoff), nil
	}

	controller := session.NewController(cfg, newRunner)

	logger.Info("starting tuning session",
		"port", cfg.Arduino.Port,
		"optimizer", cfg.Optimizer.Name,
		"iterations", cfg.Optimizer.Iterations,
		"set_point", cfg.Experiment.SetPoint)

	result, err := controller.Run(ctx)
	if err != nil {
		logger.Error("session failed", "error", err)
		if result == nil {
			os.Exit(1)
		}
		// A partial result was persisted; report it before exiting.
	}
	if result != nil {
		logger.Info("best gains",
			"gains", result.BestGains.String(),
			"settling_ms", result.BestSettlingTimeMs,
			"terminal_state", result.TerminalState)
	}
	if err != nil {
		os.Exit(1)
	}
}
