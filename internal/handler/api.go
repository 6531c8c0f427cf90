package handler

import (
	"github.com/ritualog/internal/service"
	"gorm.io/gorm"
)

// Options 为 API 注入可替换的基础设施
type Options struct {
	Cache   service.StatsCache
	Metrics service.Metrics
	Clock   service.Clock
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db         *gorm.DB
	habits     *service.HabitService
	toggles    *service.ToggleService
	stats      *service.StatsService
	milestones *service.MilestoneService
	notes      *noteRenderer
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, opts Options) *API {
	if opts.Cache == nil {
		opts.Cache = service.NoopStatsCache{}
	}
	if opts.Metrics == nil {
		opts.Metrics = service.NoopMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = service.SystemClock{}
	}

	store := service.NewGormCompletionStore(db)
	habits := service.NewHabitService(db, store, opts.Cache)

	return &API{
		db:         db,
		habits:     habits,
		toggles:    service.NewToggleService(store, habits, opts.Cache, opts.Metrics),
		stats:      service.NewStatsService(store, habits, opts.Clock, opts.Cache, opts.Metrics),
		milestones: service.NewMilestoneService(db, opts.Clock),
		notes:      newNoteRenderer(),
	}
}

// DB exposes the underlying gorm instance for health checks.
func (a *API) DB() *gorm.DB {
	return a.db
}
