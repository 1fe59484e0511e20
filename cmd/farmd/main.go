package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"xfarm/config"
	"xfarm/core"
	"xfarm/core/events"
	"xfarm/core/genesis"
	"xfarm/explorer"
	"xfarm/gateway/middleware"
	"xfarm/observability"
	"xfarm/observability/logging"
	telemetry "xfarm/observability/otel"
	"xfarm/rpc"
	"xfarm/storage"
)

const serviceName = "farmd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to farmd configuration")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "farmd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv("XFARM_ENV")); override != "" {
		env = override
	}
	logger := logging.Setup(serviceName, env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.ResolvePath(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.FromSettings(serviceName, env, cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	spec, err := genesis.LoadGenesisSpec(cfg.ResolvePath(cfg.GenesisFile))
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	feed := events.NewFeed()
	defer feed.Close()
	emitter := events.Multi{observability.Events(), feed}
	var index *explorer.Index
	if cfg.Explorer.Driver != "" {
		dsn := cfg.Explorer.DSN
		if cfg.Explorer.Driver == "sqlite" {
			dsn = cfg.ResolvePath(dsn)
		}
		index, err = explorer.Open(cfg.Explorer.Driver, dsn)
		if err != nil {
			db.Close()
			return err
		}
		defer index.Close()
		index.SetLogger(logger)
		emitter = append(emitter, index)
	}

	node, err := core.NewNode(db, spec, cfg.Farm, emitter, logger)
	if err != nil {
		db.Close()
		return err
	}
	defer node.Close()

	server := newServer(cfg, node, index, feed, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server, serviceName),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("farmd: serving", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	blockCtx, cancelBlocks := context.WithCancel(ctx)
	defer cancelBlocks()
	go func() {
		errCh <- node.Run(blockCtx, time.Duration(cfg.BlockIntervalMs)*time.Millisecond)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			logger.Error("farmd: stopped", "error", err)
		}
	}
	cancelBlocks()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("farmd: http shutdown", "error", shutdownErr)
	}
	logger.Info("farmd: stopped", "height", node.Height())
	return err
}

func newServer(cfg *config.Config, node *core.Node, index *explorer.Index, feed *events.Feed, logger *slog.Logger) *rpc.Server {
	serverCfg := rpc.ServerConfig{
		RateLimitKey: "farm",
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"farm": {
				RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
				Burst:             cfg.RateLimit.Burst,
			},
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: serviceName,
			Enabled:     true,
			LogRequests: logging.ParseLevel(cfg.Log.Level) <= slog.LevelDebug,
		}, logger),
		MetricsPath: cfg.Telemetry.MetricsPath,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.Auth.Enabled,
			MaxAgeSecs:       cfg.CORS.MaxAgeSecs,
		},
	}
	if index != nil {
		serverCfg.Events = index
	}
	if feed != nil {
		serverCfg.Stream = feed
	}
	if cfg.Auth.Enabled {
		serverCfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.Auth.HMACSecretValue(os.Getenv),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSecs) * time.Second,
		}, logger)
		serverCfg.AuthenticateReads = !cfg.Auth.AllowAnonymousReads
	}
	return rpc.NewServer(node, serverCfg, logger)
}
