package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coregate/coregate/internal/config"
	"github.com/coregate/coregate/internal/connmgr"
	"github.com/coregate/coregate/internal/grace"
	"github.com/coregate/coregate/internal/logger"
	"github.com/coregate/coregate/internal/metrics"
	"github.com/coregate/coregate/internal/wiring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the connection lifecycle and grace coordination core",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: "stdout"}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := wiring.OpenGraceStore(cfg.Grace)
	if err != nil {
		return fmt.Errorf("failed to open grace store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("failed to close grace store", "error", err)
		}
	}()

	coordinator := grace.NewCoordinator(store, cfg.Grace.ObjectName)
	if err := coordinator.Create(ctx); err != nil {
		return fmt.Errorf("failed to ensure grace object exists: %w", err)
	}
	logger.Info("grace coordinator ready", "object", cfg.Grace.ObjectName, "backend", cfg.Grace.Backend)

	reg := metrics.New(cfg.Metrics.Namespace)
	cmMetrics := metrics.NewConnectionManagerMetrics(reg)

	manager := connmgr.NewManager(connmgr.Options{
		Enabled:             cfg.ConnectionMgr.Enable,
		Timeout:             cfg.ConnectionMgr.Timeout(),
		LeaseLifetime:       cfg.ConnectionMgr.LeaseLifetime(),
		DrainGraceExtension: cfg.ConnectionMgr.DrainGraceExtension(),
		Metrics:             cmMetrics,
	})
	manager.SetCallback(connmgr.Callback{Drain: stubDrainPeers})

	var exposer *metrics.Exposer
	if cfg.Metrics.Enabled {
		exposer = metrics.NewExposer(reg)
		if err := exposer.Start(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("failed to start metrics exposer: %w", err)
		}
		logger.Info("metrics exposer listening", "addr", cfg.Metrics.Listen)
		defer exposer.Stop()
	}

	ln, err := net.Listen("tcp", cfg.ConnectionMgr.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", cfg.ConnectionMgr.ListenAddr, err)
	}
	defer ln.Close()
	logger.Info("transport registry accepting connections", "addr", cfg.ConnectionMgr.ListenAddr)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		acceptLoop(ctx, ln, manager)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()
	ln.Close()
	<-acceptDone
	logger.Info("coregate stopped")
	return nil
}

// acceptLoop runs the Transport Registry's Accept operation: each socket
// is wrapped in a Transport, submitted to ConnectionStarted, and either
// admitted (kept open until the peer closes it) or dropped immediately.
// This core implements no application protocol of its own; the admitted
// connection is simply held open to demonstrate the lifecycle until EOF.
func acceptLoop(ctx context.Context, ln net.Listener, manager *connmgr.Manager) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept failed", "error", err)
				return
			}
		}
		go handleConnection(ctx, conn, manager)
	}
}

func handleConnection(ctx context.Context, conn net.Conn, manager *connmgr.Manager) {
	transport := manager.ConnectionInit(conn, conn.RemoteAddr())
	result := manager.ConnectionStarted(ctx, transport)
	if result == connmgr.Drop {
		logger.Info("connection dropped by connection manager", "peer", conn.RemoteAddr())
		conn.Close()
		manager.ConnectionFinished(transport)
		return
	}

	logger.Info("connection admitted", "peer", conn.RemoteAddr())
	buf := make([]byte, 4096)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
	conn.Close()
	manager.ConnectionFinished(transport)
}

// stubDrainPeers stands in for the cluster peer protocol spec.md §6
// leaves external to this core: a real deployment wires DrainFunc to an
// RPC call fanning out to every other replica. Until that transport is
// wired in, activation assumes there is only one replica and that no
// peer needs draining.
func stubDrainPeers(_ context.Context, _ any, _ net.Addr, addrStr string, _ time.Time) connmgr.DrainResult {
	logger.Warn("no cluster peer transport configured, assuming single-replica deployment", "client", addrStr)
	return connmgr.DrainSuccessNoConnections
}
