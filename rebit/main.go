package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animus-labs/rebit/internal/capture"
	"github.com/animus-labs/rebit/internal/correlation"
	"github.com/animus-labs/rebit/internal/host"
	"github.com/animus-labs/rebit/internal/platform/auditlog"
	"github.com/animus-labs/rebit/internal/platform/auth"
	"github.com/animus-labs/rebit/internal/platform/env"
	"github.com/animus-labs/rebit/internal/platform/httpserver"
	"github.com/animus-labs/rebit/internal/platform/objectstore"
	"github.com/animus-labs/rebit/internal/platform/postgres"
	"github.com/animus-labs/rebit/internal/plugins"
	"github.com/animus-labs/rebit/internal/queue"
	"github.com/animus-labs/rebit/internal/replay"
	"github.com/animus-labs/rebit/internal/trigger"
	"github.com/minio/minio-go/v7"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	manifest, err := trigger.LoadManifest(cfg.Manifest)
	if err != nil {
		logger.Error("invalid function manifest", "path", cfg.Manifest, "error", err)
		os.Exit(2)
	}

	resolver := env.Chain{
		env.EnvResolver{},
		env.MapResolver{
			plugins.PublicURLName:          cfg.PublicURL,
			plugins.DefaultQueueConnection: "memory://",
		},
	}
	queues := queue.NewFactory()
	defer func() { _ = queues.Close() }()

	var (
		store       correlation.Store
		objects     plugins.Objects
		notifier    host.Notifier
		minioClient *minio.Client
		storeCfg    objectstore.Config
		readiness   []httpserver.ReadinessCheck
	)
	switch cfg.StoreBackend {
	case storeMinIO:
		storeCfg, err = objectstore.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		minioClient, err = objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		ms, err := correlation.NewMinioStore(minioClient, storeCfg.BucketCorrelation)
		if err != nil {
			logger.Error("correlation store init failed", "error", err)
			os.Exit(1)
		}
		store = ms
		objects = plugins.MinioObjects{Client: minioClient}
		notifier = minioClient
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "minio",
			Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
				return objectstore.CheckBuckets(ctx, minioClient, storeCfg)
			}),
		})
	case storeMemory:
		logger.Warn("using in-memory correlation store; captures are lost on restart")
		store = correlation.NewMemoryStore()
	}

	registry := trigger.NewRegistry(ctx, logger, plugins.Default(plugins.Deps{
		Objects:  objects,
		Resolver: resolver,
		Queues:   queues,
	})...)
	catalog, err := trigger.Discover(manifest, registry, logger)
	if err != nil {
		logger.Error("function discovery failed", "error", err)
		os.Exit(2)
	}
	if minioClient != nil {
		if err := objectstore.EnsureBuckets(ctx, minioClient, storeCfg, fileContainers(catalog)...); err != nil {
			logger.Error("bucket bootstrap failed", "error", err)
			os.Exit(1)
		}
	}

	pipeline := capture.NewPipeline(catalog, registry, store, logger, cfg.Excluded...)
	engine := replay.NewEngine(catalog, registry, store, logger)

	var db *sql.DB
	if cfg.AuditEnabled {
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		db, err = postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Error("database migration failed", "error", err)
			os.Exit(1)
		}
		engine.Audit = replayAuditor(db)
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name:  "postgres",
			Check: auth.WithTimeout(750*time.Millisecond, db.PingContext),
		})
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeDev:
		authenticator = auth.NewDevAuthenticator(authCfg)
	case auth.ModeOIDC:
		bearer, err := auth.NewBearerAuthenticator(ctx, authCfg)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(1)
		}
		authenticator = bearer
	case auth.ModeDisabled:
		logger.Warn("auth disabled; /resubmit is open")
	}

	functions := &host.Host{
		Catalog:  catalog,
		Pipeline: pipeline,
		Invoker:  &host.Invoker{Client: &http.Client{Timeout: 5 * time.Minute}},
		Logger:   logger,
		Notifier: notifier,
		Resolver: resolver,
		Queues:   queues,
		PollWait: cfg.PollWait,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, readiness...))
	newResubmitAPI(logger, engine).register(mux)
	if err := functions.Mount(mux); err != nil {
		logger.Error("function routes failed", "error", err)
		os.Exit(2)
	}

	var handler http.Handler = mux
	if authenticator != nil {
		middleware := auth.Middleware{
			Logger:        logger,
			Authenticator: authenticator,
			Authorize:     auth.ResubmitPolicy(),
			SkipPrefixes:  []string{"/healthz", "/readyz", "/openapi.yaml", host.RoutePrefix},
		}
		if db != nil {
			middleware.Audit = func(ctx context.Context, event auth.DenyEvent) error {
				auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return auditlog.InsertAuthDeny(auditCtx, db, serviceName, event)
			}
		}
		handler = middleware.Wrap(mux)
	}

	bg := &workers{logger: logger}
	bg.Go(ctx, "host", functions.Run)
	if cfg.SweepInterval > 0 {
		sweeper := correlation.Sweeper{Store: store, Retention: cfg.Retention, Logger: logger}
		bg.Go(ctx, "sweeper", func(ctx context.Context) error {
			sweeper.Run(ctx, cfg.SweepInterval)
			return nil
		})
	}

	logger.Info("functions discovered", "count", catalog.Len(), "store", cfg.StoreBackend)
	srvCfg := httpserver.Config{
		Service:         serviceName,
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	err = httpserver.Run(ctx, logger, srvCfg, httpserver.Wrap(logger, serviceName, handler))
	stop()
	if !bg.Wait(cfg.ShutdownTimeout) {
		logger.Warn("background workers still running at exit", "timeout", cfg.ShutdownTimeout.String())
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func fileContainers(catalog *trigger.Catalog) []string {
	var out []string
	for _, fn := range catalog.OfKind(trigger.File) {
		if c := fn.Meta(plugins.MetaContainer); c != "" {
			out = append(out, c)
		}
	}
	return out
}
