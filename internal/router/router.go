package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ritualog/internal/handler"
	"github.com/ritualog/internal/middleware"
	"github.com/ritualog/internal/service"
)

// Options 控制路由层的中间件
type Options struct {
	JWTSecret          string
	AllowedOrigins     []string
	RateLimitPerMinute int
	Metrics            service.Metrics
	// MetricsHandler 为 nil 时不暴露 /metrics
	MetricsHandler http.Handler
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics))
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	limiter := middleware.NewRateLimiter(opts.RateLimitPerMinute)

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.AuthRequired(opts.JWTSecret), limiter.Middleware())
	{
		habits := apiGroup.Group("/habits")
		{
			habits.GET("", api.ListHabits)
			habits.POST("", api.CreateHabit)
			habits.GET("/stats/daily", api.DailyStats(service.KindHabit))
			habits.GET("/stats/monthly", api.MonthlyStats(service.KindHabit))
			habits.GET("/streaks", api.Streaks(service.KindHabit))
			habits.GET("/:id", api.GetHabit)
			habits.PUT("/:id", api.UpdateHabit)
			habits.DELETE("/:id", api.DeleteHabit)
			habits.POST("/:id/toggle", api.ToggleHabit)
			habits.GET("/:id/streaks", api.HabitStreak)
		}

		prayers := apiGroup.Group("/prayers")
		{
			prayers.GET("/stats/daily", api.DailyStats(service.KindPrayer))
			prayers.GET("/stats/monthly", api.MonthlyStats(service.KindPrayer))
			prayers.GET("/streaks", api.Streaks(service.KindPrayer))
			prayers.PUT("/:slot", api.RecordPrayer)
			prayers.POST("/:slot/toggle", api.TogglePrayer)
			prayers.GET("/:slot/streaks", api.PrayerStreak)
		}

		apiGroup.GET("/milestones", api.ListMilestones)
		apiGroup.POST("/milestones", api.AcknowledgeMilestone)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
