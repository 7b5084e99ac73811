// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suitenumerique/docs-sub001/internal/access"
	"github.com/suitenumerique/docs-sub001/internal/api"
	"github.com/suitenumerique/docs-sub001/internal/collab"
	"github.com/suitenumerique/docs-sub001/internal/config"
	"github.com/suitenumerique/docs-sub001/internal/convert"
	"github.com/suitenumerique/docs-sub001/internal/fanout"
	"github.com/suitenumerique/docs-sub001/internal/gateway"
	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/relay"
	"github.com/suitenumerique/docs-sub001/internal/supervisor"
	"github.com/suitenumerique/docs-sub001/internal/supervisor/services"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("backend", cfg.Collaboration.BackendBaseURL).
		Str("environment", cfg.Server.Environment).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting collaboration gateway")

	if cfg.Security.ServerSecret == "" {
		logging.Warn().Msg("COLLABORATION_SERVER_SECRET is empty, admin endpoints refuse every request")
	}
	if cfg.Security.APIKey == "" {
		logging.Warn().Msg("Y_PROVIDER_API_KEY is empty, the conversion endpoint refuses every request")
	}

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	bridge := initFanout(cfg, tree)

	backend := newAccessClient(cfg)
	socket := websocket.Config{
		HeartbeatInterval: cfg.Collaboration.HeartbeatInterval,
		MaxMessageSize:    cfg.Collaboration.MaxMessageSize,
		SendBufferSize:    cfg.Collaboration.SendBufferSize,
		MessagesPerSecond: cfg.Collaboration.MessagesPerSecond,
		MessageBurst:      cfg.Collaboration.MessageBurst,
	}

	relayCfg := relay.Config{Socket: socket, Sentinel: cfg.Collaboration.KeyRotationSentinel}
	docsCfg := collab.Config{
		Socket:     socket,
		MaxUpdates: cfg.Collaboration.DocumentMaxUpdates,
		MaxBytes:   cfg.Collaboration.DocumentMaxBytes,
	}
	if bridge != nil {
		relayCfg.Bus = bridge
		docsCfg.Bus = bridge
	}
	registry := relay.NewRegistry(relayCfg)
	docs := collab.NewServer(backend, docsCfg)

	tree.AddRoomService(services.NewRunnerService("relay-registry", registry))
	tree.AddRoomService(services.NewRunnerService("crdt-server", docs))

	gate := gateway.NewGate(backend, cfg.Collaboration.SessionCookieName)
	dispatcher := gateway.NewDispatcher(gate, registry, docs, gateway.DispatcherConfig{
		AllowedOrigins: cfg.Collaboration.AllowedOrigins,
	})

	handler := api.NewHandler(registry, docs, convert.New(), api.HandlerConfig{
		ServerSecret:   cfg.Security.ServerSecret,
		APIKey:         cfg.Security.APIKey,
		AllowedOrigins: cfg.Collaboration.AllowedOrigins,
		MaxBodyBytes:   cfg.Conversion.MaxBodyBytes,
	})
	if bridge != nil {
		handler.SetFanout(bridge)
	}

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled

	router := api.NewRouter(handler, dispatcher, api.NewChiMiddleware(mwCfg), api.RouterOptions{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})

	// Read and write timeouts stay unset: they would also cut the
	// long-lived websocket connections, which manage their own deadlines.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	logging.Info().Msg("Gateway stopped")
}

// newAccessClient builds the document service client, behind a circuit
// breaker unless disabled.
func newAccessClient(cfg *config.Config) access.Client {
	var client access.Client = access.NewHTTPClient(cfg.Collaboration.BackendBaseURL, cfg.Collaboration.BackendTimeout)
	if cfg.Collaboration.BreakerEnabled {
		client = access.NewBreakerClient(client, access.BreakerSettings{})
	}
	return client
}

// initFanout connects the NATS bridge when enabled, starting an embedded
// server first if configured. Both are handed to the supervisor tree, which
// owns their shutdown. It returns nil when fanout is disabled.
func initFanout(cfg *config.Config, tree *supervisor.SupervisorTree) *fanout.Bridge {
	if !cfg.NATS.Enabled {
		logging.Info().Msg("Cross-replica fanout disabled (NATS_ENABLED=false)")
		return nil
	}

	url := cfg.NATS.URL
	if cfg.NATS.Embedded {
		embedded, err := fanout.StartEmbeddedServer(cfg.NATS.EmbeddedHost, cfg.NATS.EmbeddedPort)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		tree.AddFanoutService(services.NewShutdownService("nats-server", embedded))
		url = embedded.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	bridge, err := fanout.Connect(fanout.Config{
		URL:           url,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	tree.AddFanoutService(services.NewRunnerService("nats-bridge", bridge))

	logging.Info().
		Str("url", url).
		Str("subject_prefix", cfg.NATS.SubjectPrefix).
		Str("instance", bridge.InstanceID()).
		Msg("Cross-replica fanout enabled")
	return bridge
}
