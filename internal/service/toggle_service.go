package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/logger"
	"go.uber.org/zap"
)

// HabitResolver 校验习惯归属
type HabitResolver interface {
	Resolve(ctx context.Context, userID, trackableID string) (*db.Habit, error)
}

// ToggleService 负责翻转某个可追踪项在某天的完成状态。
// 创建依赖唯一索引上的条件插入，不依赖进程内锁，多实例并发时最终收敛到一条记录。
type ToggleService struct {
	store   CompletionStore
	habits  HabitResolver
	cache   StatsCache
	metrics Metrics
}

// NewToggleService 构造 ToggleService
func NewToggleService(store CompletionStore, habits HabitResolver, cache StatsCache, metrics Metrics) *ToggleService {
	if cache == nil {
		cache = NoopStatsCache{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &ToggleService{store: store, habits: habits, cache: cache, metrics: metrics}
}

// Toggle 翻转状态并返回新状态。
// 习惯：有记录即完成，再次翻转删除记录；
// 祷告：无记录→创建 prayed；记录未 prayed→置为 prayed；已 prayed→删除。
func (s *ToggleService) Toggle(ctx context.Context, userID string, kind TrackableKind, trackableID string, at time.Time) (bool, error) {
	if err := s.validateTrackable(ctx, userID, kind, trackableID); err != nil {
		return false, err
	}

	key := RecordKey{UserID: userID, Kind: kind, TrackableID: trackableID, Day: at}.canonical()

	existing, err := s.store.FindDay(ctx, key)
	if err != nil {
		return false, storageError("find completion", err)
	}

	var state bool
	switch {
	case existing == nil:
		// 冲突说明并发请求已创建同一条记录，结果同样是“已完成”
		if _, err := s.store.Insert(ctx, key, true); err != nil {
			return false, storageError("insert completion", err)
		}
		state = true
	case kind == KindPrayer && !existing.State:
		updated, err := s.store.SetState(ctx, existing.ID, false, true)
		if err != nil {
			return false, storageError("update prayer state", err)
		}
		if updated {
			state = true
		} else if state, err = s.currentState(ctx, key); err != nil {
			return false, err
		}
	default:
		if _, err := s.store.DeleteDay(ctx, key); err != nil {
			return false, storageError("delete completion", err)
		}
		state = false
	}

	s.cache.Invalidate(ctx, key.UserID)
	s.metrics.ToggleRecorded(kind, state)
	logger.L().Debug("completion toggled",
		zap.String("user_id", key.UserID),
		zap.String("kind", string(kind)),
		zap.String("trackable_id", key.TrackableID),
		zap.Time("day", key.Day),
		zap.Bool("state", state),
	)
	return state, nil
}

// RecordPrayer 显式写入某个祷告时段的状态，可记录“已登记但未完成”
func (s *ToggleService) RecordPrayer(ctx context.Context, userID, slot string, at time.Time, prayed bool, note string) (*db.CompletionRecord, error) {
	if err := s.validateTrackable(ctx, userID, KindPrayer, slot); err != nil {
		return nil, err
	}

	key := RecordKey{UserID: userID, Kind: KindPrayer, TrackableID: slot, Day: at}.canonical()
	record, err := s.store.Upsert(ctx, key, prayed, note)
	if err != nil {
		return nil, storageError("upsert prayer record", err)
	}

	s.cache.Invalidate(ctx, key.UserID)
	return record, nil
}

func (s *ToggleService) currentState(ctx context.Context, key RecordKey) (bool, error) {
	record, err := s.store.FindDay(ctx, key)
	if err != nil {
		return false, storageError("reload completion", err)
	}
	return record != nil && record.State, nil
}

func (s *ToggleService) validateTrackable(ctx context.Context, userID string, kind TrackableKind, trackableID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: missing user", ErrUnknownTrackable)
	}

	switch kind {
	case KindHabit:
		if s.habits == nil {
			return fmt.Errorf("%w: no habit resolver", ErrUnknownTrackable)
		}
		_, err := s.habits.Resolve(ctx, userID, trackableID)
		return err
	case KindPrayer:
		if !IsPrayerSlot(trackableID) {
			return fmt.Errorf("%w: prayer slot %q", ErrUnknownTrackable, trackableID)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTrackableKind, kind)
	}
}
