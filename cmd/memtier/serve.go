package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aschepis/backscratcher/memtier/client"
	memlogger "github.com/aschepis/backscratcher/memtier/logger"
	"github.com/aschepis/backscratcher/memtier/runtime"
	"github.com/aschepis/backscratcher/memtier/server"
)

var (
	serveSocket string
	serveTCP    string
	serveLog    string
	servePretty bool
	servePoll   time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the memtier daemon",
		Long: `Run the memtier daemon: a gRPC memory service with standard health checks,
plus scheduled tier optimization and relationship decay.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveSocket, "socket", client.DefaultSocketPath, "Unix socket path for gRPC server")
	serveCmd.Flags().StringVar(&serveTCP, "tcp", "", "TCP address to listen on (e.g., localhost:50052). If set, disables Unix socket")
	serveCmd.Flags().StringVar(&serveLog, "logfile", "", "Path to log file. If not set, logs to stdout")
	serveCmd.Flags().BoolVar(&servePretty, "pretty", false, "Use pretty console output (only valid when logfile is not set)")
	serveCmd.Flags().DurationVar(&servePoll, "health-interval", 15*time.Second, "how often engine health is polled")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveLog != "" && servePretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logFile, pretty := cfg.Log.File, cfg.Log.Pretty
	if cmd.Flags().Changed("logfile") || cmd.Flags().Changed("pretty") {
		logFile, pretty = serveLog, servePretty
	}
	logger, err := memlogger.InitWithOptions(logFile, pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		a.close(shutdownCtx)
	}()

	scheduler := runtime.NewScheduler(logger)
	if err := scheduler.Add("optimize", cfg.Tiering.Schedule, func(ctx context.Context) error {
		result, err := a.engine.OptimizeMemoryTiers(ctx)
		if err != nil {
			return err
		}
		logger.Info().
			Int("processed", result.Processed).
			Int("transitions", len(result.Transitions)).
			Int("errors", len(result.Errors)).
			Msg("Tier optimization finished")
		return nil
	}); err != nil {
		return fmt.Errorf("invalid tiering schedule: %w", err)
	}
	if err := scheduler.Add("decay", cfg.Graph.DecaySchedule, func(ctx context.Context) error {
		result, err := a.engine.RunRelationshipDecay(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("updated", result.Updated).Int("pruned", result.Pruned).Msg("Relationship decay finished")
		return nil
	}); err != nil {
		return fmt.Errorf("invalid decay schedule: %w", err)
	}
	go scheduler.Start(ctx)

	srv := server.New(server.Config{PollInterval: servePoll, Logger: logger}, a.engine, a.tools)
	go srv.WatchHealth(ctx)

	tcpAddr := serveTCP
	if tcpAddr == "" {
		tcpAddr = cfg.Server.TCP
	}
	sockPath := serveSocket
	if !cmd.Flags().Changed("socket") && cfg.Server.Socket != "" {
		sockPath = cfg.Server.Socket
	}

	serverErr := make(chan error, 1)
	go func() {
		if tcpAddr != "" {
			logger.Info().Str("address", tcpAddr).Msg("Starting gRPC server on TCP")
			serverErr <- srv.ServeTCP(tcpAddr)
			return
		}
		// Remove existing socket file if it exists
		if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("socket", sockPath).Msg("Failed to remove existing socket file")
		}
		logger.Info().Str("socket", sockPath).Msg("Starting gRPC server on Unix socket")
		serverErr <- srv.ServeUnix(sockPath)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
		srv.GracefulStop()
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	if tcpAddr == "" {
		if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("socket", sockPath).Msg("Failed to remove socket file on shutdown")
		}
	}

	logger.Info().Msg("memtier shutdown complete")
	return nil
}
