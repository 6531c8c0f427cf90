package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr         string
	Port               string
	DatabasePath       string
	GinMode            string
	JWTSecret          string
	AllowedOrigins     []string
	RateLimitPerMinute int
	MetricsEnabled     bool

	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// CacheBackend 取值 none|memory|redis。memory 为进程内缓存，
	// 其他实例的写操作无法使其失效，只能用于单实例部署；多实例请使用 redis。
	CacheBackend  string
	CacheSizeMB   int
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := envString("PORT", "8080")

	listenAddr := envString("LISTEN_ADDR", "")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	cacheBackend := strings.ToLower(envString("CACHE_BACKEND", "none"))
	switch cacheBackend {
	case "memory", "redis", "none":
	default:
		cacheBackend = "none"
	}

	return AppConfig{
		ListenAddr:         listenAddr,
		Port:               port,
		DatabasePath:       envString("DATABASE_PATH", "ritualog.db"),
		GinMode:            envString("GIN_MODE", "release"),
		JWTSecret:          envString("JWT_SECRET", "ritualog-dev-secret"),
		AllowedOrigins:     splitCSV(envString("ALLOWED_ORIGINS", "*")),
		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:     envBool("METRICS_ENABLED", true),

		LogLevel:      strings.ToLower(envString("LOG_LEVEL", "info")),
		LogPath:       envString("LOG_PATH", ""),
		LogMaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: envInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 7),
		LogCompress:   envBool("LOG_COMPRESS", false),

		CacheBackend:  cacheBackend,
		CacheSizeMB:   envInt("CACHE_SIZE_MB", 32),
		CacheTTL:      envDuration("CACHE_TTL", 5*time.Minute),
		RedisAddr:     envString("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),
	}
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// envInt 对非法或非正数的值回退到默认值
func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
