package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hivedhq/hived/internal/config"
	"github.com/hivedhq/hived/internal/eventbus"
	"github.com/hivedhq/hived/internal/executor"
	"github.com/hivedhq/hived/internal/hive"
	"github.com/hivedhq/hived/internal/memory"
	"github.com/hivedhq/hived/internal/metrics"
	"github.com/hivedhq/hived/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("hived %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: hived <command>

Commands:
  gateway    Start the hive daemon
  backup     Export the memory bank to an archive
  restore    Load the memory bank from an archive
  version    Print version
`)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting hived gateway", "version", version, "hive", cfg.Hive.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Memory bank
	bank, err := memory.New(cfg.Memory)
	if err != nil {
		return fmt.Errorf("init memory bank: %w", err)
	}
	defer bank.Close()
	slog.Info("memory bank initialized", "path", cfg.Memory.Path)

	// Embedded NATS
	bus, err := eventbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	client, err := eventbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer client.Close()

	// Executor: bus dispatches to external workers over request/reply,
	// loopback acknowledges tasks locally for development setups.
	var exec executor.Executor
	switch cfg.Executor.Mode {
	case "loopback":
		exec = executor.Loopback{}
	default:
		exec = executor.NewBusExecutor(client, cfg.Executor.Timeout)
	}

	collector := metrics.NewCollector()

	// Orchestrator
	orch, err := hive.New(cfg, bank, client, exec, collector)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	if err := orch.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize hive: %w", err)
	}
	orch.StartBackground(ctx)

	// Web API
	if cfg.Web.Enabled {
		srv := web.NewServer(orch, bank, bus, collector, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	orch.Shutdown()
	return nil
}
