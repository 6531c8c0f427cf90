package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/ritualog/internal/config"
	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/handler"
	"github.com/ritualog/internal/logger"
	"github.com/ritualog/internal/router"
	"github.com/ritualog/internal/service"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	l, err := logger.Init(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = l.Sync() }()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		l.Fatal("failed to initialize database", zap.Error(err))
	}

	cache, closeCache := buildStatsCache(cfg)
	defer closeCache()

	var (
		metrics        service.Metrics = service.NoopMetrics{}
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = service.NewPrometheusMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	api := handler.NewAPI(db.DB, handler.Options{
		Cache:   cache,
		Metrics: metrics,
		Clock:   service.SystemClock{},
	})

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, router.Options{
		JWTSecret:          cfg.JWTSecret,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            metrics,
		MetricsHandler:     metricsHandler,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		l.Info("http server listening", zap.String("addr", cfg.ListenAddr), zap.String("cache", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	l.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown error", zap.Error(err))
	}
}

// buildStatsCache 按配置选择缓存后端；Redis 不可达时不启用缓存，
// 避免多实例下退化为互相不可见的进程内缓存
func buildStatsCache(cfg config.AppConfig) (service.StatsCache, func()) {
	switch cfg.CacheBackend {
	case "memory":
		logger.L().Info("using in-process stats cache, single instance only")
		return service.NewMemoryStatsCache(cfg.CacheSizeMB, cfg.CacheTTL), func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.L().Warn("redis unavailable, stats cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = client.Close()
			return service.NoopStatsCache{}, func() {}
		}
		return service.NewRedisStatsCache(client, cfg.CacheTTL), func() { _ = client.Close() }
	default:
		return service.NoopStatsCache{}, func() {}
	}
}
