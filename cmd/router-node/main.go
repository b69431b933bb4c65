package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/routerd/routerd/internal/config"
	routerdhttp "github.com/routerd/routerd/internal/http"
	"github.com/routerd/routerd/internal/metrics"
	"github.com/routerd/routerd/internal/router"
	"github.com/routerd/routerd/internal/topology"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: router-node <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve   Start the router node")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting router-node",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("router_area", cfg.Service.RouterArea),
		zap.String("router_id", cfg.Service.RouterID),
		zap.String("mode", cfg.Service.Mode),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := router.New(router.Config{
		Area:          cfg.Service.RouterArea,
		ID:            cfg.Service.RouterID,
		Mode:          router.Mode(cfg.Service.Mode),
		MaskBitWidth:  cfg.Router.MaskBitWidth,
		InitialCredit: cfg.Router.InitialCredit,
	}, logger.Named("router"))

	for name, meta := range cfg.Addresses {
		sem := router.DefaultSemantics
		sem.BypassValidOrigins = meta.BypassValidOrigins
		core.RegisterAddress(name, nil, nil, sem)
	}

	tlsCfg, err := cfg.Topology.BuildTLSConfig()
	if err != nil {
		logger.Fatal("failed to build TLS config", zap.Error(err))
	}
	saslMech := cfg.Topology.BuildSASLMechanism()

	topologyConsumer, err := topology.NewConsumer(
		cfg.Topology.Brokers, cfg.Topology.GroupID, cfg.Topology.Topics,
		cfg.Topology.ClientID, cfg.Topology.FetchMaxBytes, tlsCfg, saslMech, logger.Named("topology"),
	)
	if err != nil {
		logger.Fatal("failed to create topology consumer", zap.Error(err))
	}
	defer topologyConsumer.Close()

	core.SetNotifier(noopNotifier{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); topologyConsumer.Run(ctx, core) }()

	logger.Info("topology consumer started",
		zap.Strings("topics", cfg.Topology.Topics),
		zap.String("group_id", cfg.Topology.GroupID),
	)

	tickInterval := time.Duration(cfg.Router.TickIntervalMs) * time.Millisecond
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				core.Tick()
			}
		}
	}()

	httpServer := routerdhttp.NewServer(cfg.Service.HTTPListen, topologyConsumer, true, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("router node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("router node stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, some goroutines may not have finished")
	}

	logger.Info("router-node stopped")
}

// noopNotifier is used until an external protocol/management-agent layer
// (out of scope here) wires up real mobile-address propagation to peers.
type noopNotifier struct{}

func (noopNotifier) MobileAdded(string)   {}
func (noopNotifier) MobileRemoved(string) {}
