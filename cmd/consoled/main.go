// Command consoled runs the Nodus Console: the administration surface for a
// Nodus federation. It authenticates operators against the platform server,
// mirrors their permission rules per session, and guards every console route
// with the same checks the platform itself would make.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/nodusnet/console/pkg/api"
	"github.com/nodusnet/console/pkg/audit"
	"github.com/nodusnet/console/pkg/config"
	"github.com/nodusnet/console/pkg/guard"
	"github.com/nodusnet/console/pkg/httputil"
	"github.com/nodusnet/console/pkg/observability"
	"github.com/nodusnet/console/pkg/session"
	"github.com/nodusnet/console/pkg/upstream"
)

const maxRequestBytes = 1 << 20

func main() {
	if err := run(); err != nil {
		log.Fatalf("consoled: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("platform_url", cfg.Platform.URL).Info("starting nodus console")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		ServiceName:    cfg.Observability.TracingServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.TracingInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	var clientOpts []upstream.Option
	if cfg.Observability.TracingEnabled {
		clientOpts = append(clientOpts, upstream.WithTracing())
	}
	platform, err := upstream.NewClient(cfg.Platform.URL, clientOpts...)
	if err != nil {
		return fmt.Errorf("creating platform client: %w", err)
	}

	var store session.Store
	var redisStore *session.RedisStore
	if cfg.Session.RedisURL != "" {
		redisStore, err = session.NewRedisStore(cfg.Session.RedisURL, "")
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		store = redisStore
		logger.Info("using redis session store")
	} else {
		store = session.NewMemoryStore()
		logger.Warn("using in-memory session store; sessions will not survive restarts")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	sessions := session.NewManager(platform, store,
		session.WithTTL(cfg.Session.TTL),
		session.WithLogger(logger),
		session.WithMetrics(metrics),
	)
	if cfg.Session.CatalogRefresh != "" {
		if err := sessions.StartCatalogRefresh(cfg.Session.CatalogRefresh); err != nil {
			return fmt.Errorf("starting catalog refresh: %w", err)
		}
	}

	g := guard.New(sessions, guard.WithLogger(logger), guard.WithMetrics(metrics))

	recent := audit.NewMemoryLogger(cfg.Audit.MemoryCapacity)
	auditLoggers := []audit.Logger{recent}
	if cfg.Audit.Dir != "" {
		fileLog, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.Audit.Dir})
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		auditLoggers = append(auditLoggers, fileLog)
	}
	auditLog := audit.NewMultiLogger(auditLoggers...)

	serverOpts := []api.ServerOption{
		api.WithAudit(auditLog),
		api.WithRecentEvents(recent),
		api.WithMetrics(metrics),
		api.WithServerLogger(logger),
	}

	if cfg.Guard.PolicyPath != "" {
		pg, err := guard.NewPolicyGuard(g, cfg.Guard.PolicyPath)
		if err != nil {
			return fmt.Errorf("loading route policy: %w", err)
		}
		if cfg.Guard.PolicyWatch {
			if err := pg.Watch(ctx); err != nil {
				return fmt.Errorf("watching route policy: %w", err)
			}
		}
		serverOpts = append(serverOpts, api.WithPolicy(pg))
		logger.WithField("path", cfg.Guard.PolicyPath).Info("route policy loaded")
	}

	if cfg.SSO.Enabled {
		sso, err := api.NewSSOHandlers(ctx, sessions, cfg.SSO, auditLog, logger)
		if err != nil {
			return fmt.Errorf("configuring SSO: %w", err)
		}
		serverOpts = append(serverOpts, api.WithSSO(sso))
		logger.WithField("issuer", cfg.SSO.IssuerURL).Info("SSO login enabled")
	}

	srv := api.NewServer(sessions, g, serverOpts...)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.MaxBytesMiddleware(maxRequestBytes),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		middlewares = append(middlewares, httputil.CORSMiddleware(cfg.Server.CORSOrigins))
	}
	if cfg.Observability.MetricsEnabled {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(metrics))
	}
	var handler http.Handler = httputil.Chain(middlewares...)(srv)
	if cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "console")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on their own port, out of reach of the frontend.
	health := observability.NewHealthChecker()
	health.AddDependency("platform", observability.PingerFunc(platform.Ping))
	if redisStore != nil {
		health.AddDependency("redis", redisStore)
	}
	obsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(obsMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(obsMux, registry)
	}
	obsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: obsMux,
	}

	// Permission-change events from the platform invalidate cached users
	// and refresh session permission stores. The socket authenticates with
	// the service token when the platform requires one.
	var socketTokens oauth2.TokenSource
	if cfg.Platform.ServiceToken != "" {
		socketTokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Platform.ServiceToken})
	}
	listener := upstream.NewListener(cfg.Platform.EventsSocketURL(), socketTokens, func(e upstream.Event) {
		metrics.EventsReceivedTotal.WithLabelValues(e.Type).Inc()
		sessions.HandleEvent(e)
	})
	go func() {
		defer observability.RecoverPanic(logger, "event listener")
		listener.Run(ctx)
	}()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, obsServer)
	shutdown.RegisterShutdownFunc("background-jobs", func(context.Context) error {
		cancel()
		sessions.Close()
		return nil
	})
	shutdown.RegisterShutdownFunc("audit-log", func(context.Context) error {
		return auditLog.Close()
	})
	if tp != nil {
		shutdown.RegisterShutdownFunc("tracing", func(ctx context.Context) error {
			return observability.ShutdownTracing(ctx, tp, logger)
		})
	}

	var eg errgroup.Group
	eg.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("console API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		logger.WithField("addr", obsServer.Addr).Info("health and metrics listening")
		if err := obsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(shutdown.WaitForShutdown)

	return eg.Wait()
}
