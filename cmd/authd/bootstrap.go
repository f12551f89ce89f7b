package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cloudsuite/cloudauth/internal/app"
	iauth "github.com/cloudsuite/cloudauth/internal/auth"
	"github.com/cloudsuite/cloudauth/internal/cache"
	"github.com/cloudsuite/cloudauth/internal/database"
	"github.com/cloudsuite/cloudauth/internal/handlers"
	"github.com/cloudsuite/cloudauth/internal/middleware"
	"github.com/cloudsuite/cloudauth/internal/users"
	"github.com/cloudsuite/cloudauth/pkg/logger"
)

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

// selectSessionStore prefers Redis so revocation is visible cluster-wide,
// falling back to the database-backed store for single-instance deployments.
func selectSessionStore(cfg *app.Config, db *gorm.DB, log *zap.Logger) (cache.Store, func()) {
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
			log.Warn("redis unavailable; falling back to database-backed session store", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
			return client, func() { _ = client.Close() }
		}
	}

	return cache.NewDatabaseStore(db), func() {}
}

func buildRouter(cfg *app.Config, db *gorm.DB, codec *iauth.JWTService, store cache.Store) (*gin.Engine, error) {
	credStore, err := users.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initialise credential store: %w", err)
	}

	sessions, err := iauth.NewSessionService(codec, store, credStore, iauth.SessionConfig{
		RefreshTokenTTL: cfg.Auth.JWT.RefreshTokenTTL,
		CacheTimeout:    cfg.Cache.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.NoRoute(middleware.NotFoundHandler)

	r.GET("/health", handlers.Health())
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(cfg.Monitoring.Prometheus.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler := handlers.NewAuthHandler(sessions)
	auth := r.Group("/auth")
	auth.POST("/login",
		middleware.RateLimit(store, cfg.Auth.Login.RateLimit, cfg.Auth.Login.RateWindow),
		authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", middleware.Auth(sessions), authHandler.Me)

	usersHandler := handlers.NewUsersHandler(credStore)
	admin := r.Group("/admin", middleware.Auth(sessions))
	admin.POST("/users", middleware.RequireAll("user.manage"), usersHandler.Create)

	return r, nil
}
