// Package main implements the HSP node daemon. It loads configuration,
// assembles the node, and runs until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/catcatai/hsp/config"
	"github.com/catcatai/hsp/service"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "hspd"
)

type cliConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	Validate        bool
	ShowVersion     bool
}

func parseFlags() cliConfig {
	var cfg cliConfig
	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&cfg.ConfigPath, "c", "", "Path to YAML configuration file (shorthand)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.Parse()
	return cfg
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("node failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	logger := newLogger(cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(cli.ConfigPath).Load()
	if err != nil {
		return err
	}
	if cli.Validate {
		logger.Info("configuration is valid")
		return nil
	}

	node, err := service.NewNode(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}
	logger.Info("hspd running", "version", Version, "ai_id", cfg.AIID)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return node.Stop(cli.ShutdownTimeout)
}
