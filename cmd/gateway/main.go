package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cloudsuite/cloudauth/internal/app"
	iauth "github.com/cloudsuite/cloudauth/internal/auth"
	"github.com/cloudsuite/cloudauth/internal/cache"
	"github.com/cloudsuite/cloudauth/internal/database"
	"github.com/cloudsuite/cloudauth/internal/gateway"
	"github.com/cloudsuite/cloudauth/internal/handlers"
	"github.com/cloudsuite/cloudauth/internal/middleware"
	"github.com/cloudsuite/cloudauth/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cloudauth-gateway", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("gateway")

	// The gateway shares the token secret and the session cache with authd.
	// It never touches the credential store: verification only needs decode
	// plus a liveness check against the cache.
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return errors.New("auth.jwt.secret must be configured for the gateway")
	}

	store, closeStore, err := sessionStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	codec, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          cfg.Auth.JWT.Secret,
		Issuer:          cfg.Auth.JWT.Issuer,
		AccessTokenTTL:  cfg.Auth.JWT.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.JWT.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("initialise token codec: %w", err)
	}

	sessions, err := iauth.NewSessionService(codec, store, nil, iauth.SessionConfig{
		CacheTimeout: cfg.Cache.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initialise session verifier: %w", err)
	}

	router, err := buildRouter(cfg, sessions)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("gateway listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("gateway stopped gracefully")
	return nil
}

func loadConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return app.LoadConfig(path)
	}
	return app.LoadConfig(filepath.Dir(path))
}

func sessionStore(cfg *app.Config, log *zap.Logger) (cache.Store, func(), error) {
	if cfg.Cache.Redis.Enabled {
		client, err := cache.NewRedisClient(cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Username: cfg.Cache.Redis.Username,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TLS:      cfg.Cache.Redis.TLS,
			Timeout:  cfg.Cache.Redis.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		return client, func() { _ = client.Close() }, nil
	}

	// Without Redis the gateway reads session liveness from the same database
	// authd writes to.
	db, err := database.Open(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return cache.NewDatabaseStore(db), closeFn, nil
}

func buildRouter(cfg *app.Config, sessions *iauth.SessionService) (*gin.Engine, error) {
	routes := make([]gateway.Route, 0, len(cfg.Gateway.Routes))
	for _, route := range cfg.Gateway.Routes {
		routes = append(routes, gateway.Route{Prefix: route.Prefix, Upstream: route.Upstream})
	}

	proxy, err := gateway.NewProxy(routes)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", handlers.Health())
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(cfg.Monitoring.Prometheus.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	allowlist := cfg.Gateway.Allowlist
	if cfg.Monitoring.Prometheus.Enabled {
		allowlist = append(allowlist, cfg.Monitoring.Prometheus.Endpoint)
	}

	r.NoRoute(
		gateway.IdentityFilter(sessions, gateway.FilterConfig{
			Allowlist:      gateway.NewAllowlist(allowlist),
			BoundarySecret: cfg.Auth.BoundarySecret,
			ExpiryWarning:  cfg.Gateway.ExpiryWarning,
		}),
		proxy.Handler(),
	)

	return r, nil
}
