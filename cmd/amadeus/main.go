// Package main is the entry point for the Amadeus bus host.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitaelegy/amadeus-bus/internal/adminapi"
	"github.com/vitaelegy/amadeus-bus/internal/buildinfo"
	"github.com/vitaelegy/amadeus-bus/internal/bus"
	"github.com/vitaelegy/amadeus-bus/internal/config"
	"github.com/vitaelegy/amadeus-bus/internal/ipcbridge"
	"github.com/vitaelegy/amadeus-bus/internal/memoplugin"
	"github.com/vitaelegy/amadeus-bus/internal/pluginhost"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath)
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("Amadeus - in-process plugin host and message bus")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the bus, plugin registry, and admin API")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func runServe(logger *slog.Logger, configPath string) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Warn("no config file found, using defaults", "error", err)
	}

	var cfg *config.Config
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			logger.Error("failed to load config", "path", cfgPath, "error", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("starting amadeus", "data_dir", cfg.DataDir, "listen_port", cfg.Listen.Port)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	dc := bus.NewDistributionCenter(logger)
	mgr := bus.NewMessageManager(dc, logger)
	registry := pluginhost.NewRegistry(logger)

	if cfg.Memo.Enabled {
		registry.Register(memoplugin.New(cfg.Memo.DBPath, logger))
	}

	if cfg.Bridge.Configured() {
		var pubKey *rsa.PublicKey
		if cfg.Bridge.ExternalPublicKeyFile != "" {
			pemBytes, err := os.ReadFile(cfg.Bridge.ExternalPublicKeyFile)
			if err != nil {
				logger.Error("failed to read bridge public key", "path", cfg.Bridge.ExternalPublicKeyFile, "error", err)
				os.Exit(1)
			}
			pubKey, err = ipcbridge.ParsePublicKey(pemBytes)
			if err != nil {
				logger.Error("failed to parse bridge public key", "error", err)
				os.Exit(1)
			}
		}
		transport := ipcbridge.NewMQTTTransport(cfg.Bridge.Broker, cfg.Bridge.NodeName, cfg.Bridge.ServiceName, logger)
		registry.Register(ipcbridge.NewBridgePlugin(cfg.Bridge.NodeName, cfg.Bridge.ServiceName, transport, pubKey, logger))
	}

	if err := registry.InitAll(); err != nil {
		logger.Error("plugin init failed", "error", err)
		os.Exit(1)
	}

	mgr.StartMessageLoop()

	if err := registry.SetupMessagingAll(dc, mgr.MessageSender()); err != nil {
		logger.Error("plugin messaging setup failed", "error", err)
		os.Exit(1)
	}

	if err := registry.StartAll(); err != nil {
		logger.Error("plugin start failed", "error", err)
		os.Exit(1)
	}

	admin := adminapi.NewServer(cfg.Listen.Address, cfg.Listen.Port, dc, registry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		_ = admin.Shutdown(context.Background())
		registry.StopAll()
		mgr.StopMessageLoop()
	}()

	if err := admin.Start(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Error("admin server failed", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("amadeus stopped")
}
