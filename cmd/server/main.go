package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/hearthbeat/hearthbeat/internal/auth"
	"github.com/hearthbeat/hearthbeat/internal/authz"
	"github.com/hearthbeat/hearthbeat/internal/config"
	"github.com/hearthbeat/hearthbeat/internal/household"
	"github.com/hearthbeat/hearthbeat/internal/location"
	"github.com/hearthbeat/hearthbeat/internal/metrics"
	"github.com/hearthbeat/hearthbeat/internal/pubsub"
	"github.com/hearthbeat/hearthbeat/internal/server"
	"github.com/hearthbeat/hearthbeat/internal/ws"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

func setupLogger(verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	if logCfg != nil && logCfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logCfg.Level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	return zapConfig.Build()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hearthbeat",
		Short: "Household live-location gateway",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				var err error
				logger, err = setupLogger(verbose, nil)
				return err
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger, err = setupLogger(verbose, &cfg.Logging)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("HEARTHBEAT_CONFIG"), "config file path (or set HEARTHBEAT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	logger.Info("configuration loaded",
		zap.String("addr", cfg.Server.Addr),
		zap.Duration("membershipTimeout", cfg.Authz.MembershipTimeout),
		zap.Bool("postgres", cfg.Store.PostgresURL != ""),
		zap.Bool("redisBridge", cfg.Redis.URL != ""),
	)
	if cfg.Authz.MembershipTimeout == 0 {
		logger.Warn("membership lookups are unbounded; set authz.membership_timeout to bound them")
	}

	var store household.Store
	if cfg.Store.PostgresURL != "" {
		pool, err := household.Connect(ctx, cfg.Store.PostgresURL)
		if err != nil {
			logger.Error("failed to connect postgres", zap.Error(err))
			return err
		}
		defer pool.Close()
		store = household.NewPostgres(pool)
	} else {
		logger.Warn("no postgres URL configured, using in-memory store")
		store = household.NewMemoryStore()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	resolver := auth.NewResolver(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	authorizer := authz.New(store, cfg.Authz.MembershipTimeout, m, logger)

	wsCfg := ws.Config{
		SendBuffer:     cfg.WS.SendBuffer,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		PublishRate:    cfg.WS.PublishRate,
		PublishBurst:   cfg.WS.PublishBurst,
	}

	// The router's publisher points at the hub while the hub's inbound
	// handler points at the router's ingest, so the ingest is bound late
	// through a small adapter.
	var (
		ingest    *location.Ingest
		publisher pubsub.Publisher
		bridge    *pubsub.RedisBridge
	)
	hub := ws.NewHub(wsCfg, resolver, authorizer, inboundFunc(func(ctx context.Context, data []byte) {
		ingest.HandleRaw(ctx, data)
	}), m, logger)

	if cfg.Redis.URL != "" {
		var err error
		bridge, err = pubsub.NewRedisBridge(ctx, cfg.Redis.URL, cfg.Redis.ChannelPrefix, hub, logger)
		if err != nil {
			logger.Error("failed to connect redis", zap.Error(err))
			return err
		}
		defer bridge.Close()
		publisher = bridge
	} else {
		publisher = pubsub.NewHubPublisher(hub)
	}

	router := location.NewRouter(store, publisher, m, logger)
	ingest = location.NewIngest(router, m, logger)

	srv := server.NewServer(hub, router, store, logger)
	handler := server.NewRouter(srv, resolver, registry, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		hub.Run(groupCtx)
		return nil
	})

	if bridge != nil {
		group.Go(func() error {
			return bridge.Run(groupCtx)
		})
	}

	group.Go(func() error {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// inboundFunc adapts a function to the ws.InboundHandler interface.
type inboundFunc func(ctx context.Context, data []byte)

func (f inboundFunc) HandleRaw(ctx context.Context, data []byte) { f(ctx, data) }
