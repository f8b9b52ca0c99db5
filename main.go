// ABOUTME: Entry point for the beatgate tempo relay gateway
// ABOUTME: Loads configuration, applies CLI overrides and runs the gateway until signalled
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/beatgate/internal/analysis"
	"github.com/Resonate-Protocol/beatgate/internal/config"
	"github.com/Resonate-Protocol/beatgate/internal/gateway"
	"github.com/Resonate-Protocol/beatgate/internal/logging"
	"github.com/Resonate-Protocol/beatgate/internal/version"
	"go.uber.org/zap"
)

var (
	configFile  = flag.String("config", "", "YAML configuration file (defaults are used when empty)")
	listen      = flag.String("listen", "", "Client listen address (overrides config)")
	upstream    = flag.String("upstream", "", "Upstream WebSocket URL (overrides config)")
	name        = flag.String("name", "", "Gateway friendly name (default: hostname-beatgate)")
	useTUI      = flag.Bool("tui", false, "Show the status TUI; logs go to -log-file")
	logFile     = flag.String("log-file", "beatgate.log", "Log file path used with -tui")
	enableMDNS  = flag.Bool("mdns", false, "Advertise the gateway via mDNS")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	if *upstream != "" {
		cfg.Upstream.URL = *upstream
	}
	if *enableMDNS {
		cfg.Server.EnableMDNS = true
	}
	if *useTUI {
		cfg.Server.UseTUI = true
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if cfg.Server.UseTUI && cfg.Logging.File == "" {
		// The TUI owns the terminal
		cfg.Logging.File = *logFile
	}

	cfg.Server.Name = gatewayName(*name, cfg.Server.Name)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	srv := gateway.New(cfg, analysis.NewTempoEstimator(), logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("gateway error", zap.Error(err))
	}

	logger.Info("gateway stopped")
}

// gatewayName prefers the flag, then a configured non-default name, then the hostname
func gatewayName(flagName, configured string) string {
	if flagName != "" {
		return flagName
	}
	if configured != "" && configured != config.Default().Server.Name {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-beatgate", hostname)
}
