// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/lifedeck/aigw"
	"github.com/lifedeck/aigw/internal/api"
	"github.com/lifedeck/aigw/internal/cache"
	"github.com/lifedeck/aigw/internal/catalog"
	"github.com/lifedeck/aigw/internal/crypto"
	"github.com/lifedeck/aigw/internal/gateway"
	"github.com/lifedeck/aigw/internal/monitoring"
	"github.com/lifedeck/aigw/internal/postgres"
	"github.com/lifedeck/aigw/internal/registry"
	"github.com/lifedeck/aigw/internal/resolver"
	"github.com/lifedeck/aigw/internal/services"
)

func main() {
	cmd := &cli.Command{
		Name:    "aigw",
		Usage:   "AI request routing server",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Value:   "localhost:8080",
				Usage:   "Address to listen on",
				Sources: cli.EnvVars("AIGW_LISTEN"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "PostgreSQL database connection URL",
				Sources:  cli.EnvVars("DATABASE_URL"),
				Required: true,
			},
			&cli.StringFlag{
				Name:     "credential-secret",
				Usage:    "Secret used to derive the credential encryption key",
				Sources:  cli.EnvVars("AIGW_CREDENTIAL_SECRET"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "admin-token",
				Usage:   "Bearer token granting admin access",
				Sources: cli.EnvVars("AIGW_ADMIN_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "default-provider",
				Usage:   "Server-wide default provider (openai, gemini or mock)",
				Sources: cli.EnvVars("AIGW_DEFAULT_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "default-model",
				Usage:   "Server-wide default model for the default provider",
				Sources: cli.EnvVars("AIGW_DEFAULT_MODEL"),
			},
			&cli.StringFlag{
				Name:    "openai-api-key",
				Usage:   "Server-wide OpenAI API key",
				Sources: cli.EnvVars("AIGW_OPENAI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "gemini-api-key",
				Usage:   "Server-wide Gemini API key",
				Sources: cli.EnvVars("AIGW_GEMINI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "otlp-endpoint",
				Usage:   "OTLP gRPC endpoint for metrics export",
				Sources: cli.EnvVars("AIGW_OTLP_ENDPOINT"),
			},
			&cli.StringSliceFlag{
				Name:    "cors-origin",
				Usage:   "Allowed CORS origins",
				Value:   []string{"http://localhost:3000"},
				Sources: cli.EnvVars("AIGW_CORS_ORIGINS"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("AIGW_DEBUG"),
			},
		},
		Action: runServer,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Failed to run command", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, c *cli.Command) error {
	logLevel := slog.LevelInfo
	if c.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	serverCfg := &aigw.ServerConfig{
		DefaultProvider: c.String("default-provider"),
		DefaultModel:    c.String("default-model"),
		OpenAIAPIKey:    c.String("openai-api-key"),
		GeminiAPIKey:    c.String("gemini-api-key"),
	}
	if err := serverCfg.Validate(); err != nil {
		return err
	}

	keyring, err := crypto.NewKeyring(c.String("credential-secret"))
	if err != nil {
		return err
	}

	dbURL := c.String("database-url")
	dbPool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if err := postgres.RunMigrations(logger, dbURL); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	credRepo, err := postgres.NewCredentialRepository(
		postgres.WithCredentialRepositoryLogger(logger),
		postgres.WithCredentialRepositoryDb(dbPool),
	)
	if err != nil {
		return fmt.Errorf("failed to create credential repository: %w", err)
	}

	configRepo, err := postgres.NewProviderConfigRepository(
		postgres.WithProviderConfigRepositoryLogger(logger),
		postgres.WithProviderConfigRepositoryDb(dbPool),
	)
	if err != nil {
		return fmt.Errorf("failed to create provider config repository: %w", err)
	}

	nodeRepo, err := postgres.NewNodeRepository(
		postgres.WithNodeRepositoryLogger(logger),
		postgres.WithNodeRepositoryDb(dbPool),
	)
	if err != nil {
		return fmt.Errorf("failed to create node repository: %w", err)
	}

	listings := cache.NewListingCache(cache.DefaultListingTTL)

	credentialStore, err := services.NewCredentialStore(
		services.WithCredentialStoreLogger(logger),
		services.WithCredentialStoreRepository(credRepo),
		services.WithCredentialStoreKeyring(keyring),
		services.WithCredentialStoreListings(listings),
	)
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}

	nodeRegistry, err := registry.NewRegistry(
		registry.WithRegistryLogger(logger),
		registry.WithRegistryRepository(nodeRepo),
	)
	if err != nil {
		return fmt.Errorf("failed to create node registry: %w", err)
	}

	modelResolver, err := resolver.NewResolver(
		resolver.WithResolverLogger(logger),
		resolver.WithResolverCredentials(credRepo),
		resolver.WithResolverConfigs(configRepo),
		resolver.WithResolverNodes(nodeRepo),
		resolver.WithResolverServerConfig(serverCfg),
	)
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	gatewayOpts := []gateway.GatewayOption{
		gateway.WithGatewayLogger(logger),
		gateway.WithGatewayCredentials(credentialStore),
		gateway.WithGatewayServerConfig(serverCfg),
	}

	var telemetry *monitoring.TelemetryManager
	if endpoint := c.String("otlp-endpoint"); endpoint != "" {
		telemetry, err = monitoring.NewTelemetryManager(monitoring.TelemetryConfig{
			ServiceName:    "aigw",
			ServiceVersion: c.Version,
			OTLPEndpoint:   endpoint,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create telemetry manager: %w", err)
		}
		metrics, err := monitoring.NewGatewayMetrics(telemetry.GetMeter("aigw/gateway"))
		if err != nil {
			return fmt.Errorf("failed to create gateway metrics: %w", err)
		}
		gatewayOpts = append(gatewayOpts, gateway.WithGatewayRecorder(metrics))
	}

	gw, err := gateway.NewGateway(gatewayOpts...)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	modelCatalog, err := catalog.NewCatalog(
		catalog.WithCatalogLogger(logger),
		catalog.WithCatalogCredentials(credRepo),
		catalog.WithCatalogNodes(nodeRepo),
		catalog.WithCatalogGateway(gw),
		catalog.WithCatalogResolver(modelResolver),
		catalog.WithCatalogListingCache(listings),
		catalog.WithCatalogServerConfig(serverCfg),
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}

	authenticator := api.NewStaticTokenAuthenticator()
	if adminToken := c.String("admin-token"); adminToken != "" {
		authenticator.AddToken(adminToken, &aigw.User{ID: "admin", Name: "Administrator", Admin: true})
	}

	server, err := api.NewServer(
		api.WithServerLogger(logger),
		api.WithServerAuthenticator(authenticator),
		api.WithServerCredentialStore(credentialStore),
		api.WithServerProviderConfigs(configRepo),
		api.WithServerRegistry(nodeRegistry),
		api.WithServerCatalog(modelCatalog),
		api.WithServerResolver(modelResolver),
		api.WithServerGateway(gw),
		api.WithServerCORSOrigins(c.StringSlice("cors-origin")),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	addr := c.String("listen")
	logger.Info("Starting server", "address", addr)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(server.Handler(), &http2.Server{}),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	serverChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverChan:
		return err
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown server gracefully", "error", err)
			return err
		}
		if telemetry != nil {
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shutdown telemetry", "error", err)
			}
		}

		logger.Info("Server shutdown complete")
		return nil
	}
}
