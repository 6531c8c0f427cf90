package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/logger"
	"go.uber.org/zap"
)

// ReconcileReport 一次去重扫描的结果
type ReconcileReport struct {
	Kind           TrackableKind  `json:"kind"`
	RecordsScanned int            `json:"records_scanned"`
	GroupsFound    int            `json:"groups_found"`
	RecordsDeleted int            `json:"records_deleted"`
	Failures       []GroupFailure `json:"failures,omitempty"`
}

// GroupFailure 某一重复组清理失败的信息，不会中断整体扫描
type GroupFailure struct {
	UserID      string    `json:"user_id"`
	TrackableID string    `json:"trackable_id"`
	Day         time.Time `json:"day"`
	Error       string    `json:"error"`
}

// Reconciler 清理旧日期规则遗留的同日重复记录，保留最新一条
type Reconciler struct {
	store   CompletionStore
	cache   StatsCache
	metrics Metrics
}

// NewReconciler 构造 Reconciler
func NewReconciler(store CompletionStore, cache StatsCache, metrics Metrics) *Reconciler {
	if cache == nil {
		cache = NoopStatsCache{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Reconciler{store: store, cache: cache, metrics: metrics}
}

type duplicateGroupKey struct {
	userID      string
	trackableID string
	day         int64
}

type duplicateGroup struct {
	key     duplicateGroupKey
	day     time.Time
	records []db.CompletionRecord
}

// Reconcile 扫描某类型的全部记录，按 (用户, 项, 标准日) 分组，每组只保留最新记录。
// 单组失败只记录在报告中；ctx 取消时返回已完成部分的报告。重复执行是幂等的。
func (r *Reconciler) Reconcile(ctx context.Context, kind TrackableKind) (ReconcileReport, error) {
	report := ReconcileReport{Kind: kind}
	if kind != KindHabit && kind != KindPrayer {
		return report, fmt.Errorf("%w: %q", ErrInvalidTrackableKind, kind)
	}

	groups := make(map[duplicateGroupKey]*duplicateGroup)
	err := r.store.ScanKind(ctx, kind, func(batch []db.CompletionRecord) error {
		for _, record := range batch {
			report.RecordsScanned++
			day := CanonicalDay(record.Day)
			key := duplicateGroupKey{userID: record.UserID, trackableID: record.TrackableID, day: dayKey(day)}
			group, ok := groups[key]
			if !ok {
				group = &duplicateGroup{key: key, day: day}
				groups[key] = group
			}
			group.records = append(group.records, record)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		return report, storageError("scan completions", err)
	}

	duplicates := make([]*duplicateGroup, 0)
	for _, group := range groups {
		if len(group.records) > 1 {
			duplicates = append(duplicates, group)
		}
	}
	sort.Slice(duplicates, func(i, j int) bool {
		a, b := duplicates[i].key, duplicates[j].key
		if a.userID != b.userID {
			return a.userID < b.userID
		}
		if a.day != b.day {
			return a.day < b.day
		}
		return a.trackableID < b.trackableID
	})
	report.GroupsFound = len(duplicates)

	touched := make(map[string]struct{})
	for _, group := range duplicates {
		if err := ctx.Err(); err != nil {
			r.finish(ctx, kind, report, touched)
			return report, err
		}

		deleted, err := r.collapse(ctx, group)
		report.RecordsDeleted += deleted
		if deleted > 0 {
			touched[group.key.userID] = struct{}{}
		}
		if err != nil {
			report.Failures = append(report.Failures, GroupFailure{
				UserID:      group.key.userID,
				TrackableID: group.key.trackableID,
				Day:         group.day,
				Error:       err.Error(),
			})
			logger.L().Warn("reconcile group failed",
				zap.String("kind", string(kind)),
				zap.String("user_id", group.key.userID),
				zap.String("trackable_id", group.key.trackableID),
				zap.Time("day", group.day),
				zap.Error(err),
			)
		}
	}

	r.finish(ctx, kind, report, touched)
	return report, nil
}

// collapse 删除组内除最新记录外的其余记录
func (r *Reconciler) collapse(ctx context.Context, group *duplicateGroup) (int, error) {
	records := group.records
	sort.Slice(records, func(i, j int) bool {
		return newerRecord(records[i], records[j])
	})

	keep := records[0]
	deleted := 0
	for _, record := range records[1:] {
		if _, err := r.store.Delete(ctx, record.ID); err != nil {
			return deleted, storageError(fmt.Sprintf("delete duplicate %d", record.ID), err)
		}
		deleted++
	}

	logger.L().Debug("duplicate group collapsed",
		zap.String("user_id", group.key.userID),
		zap.String("trackable_id", group.key.trackableID),
		zap.Time("day", group.day),
		zap.Uint("kept_id", keep.ID),
		zap.Int("deleted", deleted),
	)
	return deleted, nil
}

func (r *Reconciler) finish(ctx context.Context, kind TrackableKind, report ReconcileReport, touched map[string]struct{}) {
	for userID := range touched {
		r.cache.Invalidate(context.WithoutCancel(ctx), userID)
	}
	r.metrics.ReconcileFinished(kind, report)
	logger.L().Info("reconcile finished",
		zap.String("kind", string(kind)),
		zap.Int("scanned", report.RecordsScanned),
		zap.Int("groups", report.GroupsFound),
		zap.Int("deleted", report.RecordsDeleted),
		zap.Int("failed_groups", len(report.Failures)),
	)
}
