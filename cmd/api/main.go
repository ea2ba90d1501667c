package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/catalog"
	"assetdesk.org/internal/config"
	"assetdesk.org/internal/httpapi"
	"assetdesk.org/internal/logging"
	"assetdesk.org/internal/migrate"
	"assetdesk.org/internal/obs"
	"assetdesk.org/internal/permission"
	"assetdesk.org/internal/store/pg"
	"assetdesk.org/migrations"
)

const grpcProbeInterval = 10 * time.Second

// stores bundles the persistence backends chosen at startup.
type stores struct {
	users       auth.UserStore
	permissions permission.Store
	catalog     catalog.Store
	audit       audit.Store
	auditLog    audit.Reader
	db          *pg.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	obs.Init()
	obs.InitBuildInfo()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("assetdesk-api stopped")
	}
	logging.Info().Msg("stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	codec, err := auth.NewCodec(cfg.Auth.Secret, auth.WithIssuer(cfg.Auth.Issuer), auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return err
	}
	users, err := auth.NewUserService(st.users, codec)
	if err != nil {
		return err
	}
	if created, err := users.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return err
	} else if created {
		logging.Info().Str("email", cfg.Auth.AdminEmail).Msg("bootstrap administrator created")
	}

	var cache *permission.Cache
	if cfg.Permissions.CacheEnabled {
		cache = permission.NewCache(cfg.Permissions.CacheTTL)
		defer cache.Stop()
	}
	resolver := permission.NewResolver(st.permissions,
		permission.WithCache(cache),
		permission.WithLookupTimeout(cfg.Permissions.LookupTimeout),
		permission.WithBreaker(cfg.Permissions.BreakerFailures, cfg.Permissions.BreakerCooldown),
	)

	cat, err := catalog.NewService(st.catalog)
	if err != nil {
		return err
	}

	sink := st.audit
	if cfg.Audit.LogEntries {
		sink = audit.Tee(st.audit, audit.LogStore{})
	}
	recorder := audit.NewRecorder(sink,
		audit.WithBufferSize(cfg.Audit.BufferSize),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	)

	ready := httpapi.ReadyProbe{Timeout: 2 * time.Second}
	if st.db != nil {
		ready.DB = st.db
	}
	api, err := httpapi.New(httpapi.Deps{
		Codec:       codec,
		Users:       users,
		Resolver:    resolver,
		Permissions: permission.NewService(st.permissions, cache),
		Catalog:     cat,
		Audit:       recorder,
		AuditLog:    st.auditLog,
		Ready:       ready,
	}, httpapi.Options{
		Version:           obs.Version,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		LoginBurst:        cfg.RateLimit.LoginBurst,
		LoginPerSecond:    cfg.RateLimit.LoginPerSecond,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return err
	}
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logging.Info().Str("addr", srv.Addr).Str("version", obs.Version).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = grpc.NewServer()
		health := httpapi.NewGRPCHealth(ready)
		health.Register(grpcServer)
		go health.Run(ctx, grpcProbeInterval)
		go func() {
			logging.Info().Str("addr", cfg.Server.GRPCAddr).Msg("grpc health listening")
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	case runErr = <-errCh:
		logging.Error().Err(runErr).Msg("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("http shutdown")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	// Handlers are done; flush audit entries still queued.
	if err := recorder.Close(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("audit drain incomplete")
	}
	return runErr
}

// openStores picks PostgreSQL when a DSN is configured and in-memory
// stores otherwise. Production always requires a DSN.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.DSN == "" {
		logging.Warn().Msg("database.dsn not set, using in-memory stores")
		entries := audit.NewInMemoryStore()
		return &stores{
			users:       auth.NewInMemoryUserStore(),
			permissions: permission.NewInMemoryStore(),
			catalog:     catalog.NewInMemoryStore(),
			audit:       entries,
			auditLog:    entries,
		}, nil
	}

	db, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		mgr := migrate.NewManager(db.DB(), migrations.FS, migrations.SQLDir, migrations.SeedsDir)
		if _, err := mgr.Up(ctx); err != nil {
			db.Close()
			return nil, err
		}
		if _, err := mgr.Seed(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &stores{users: db, permissions: db, catalog: db, audit: db, auditLog: db, db: db}, nil
}
