package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StreakWindowDays 为连胜扫描窗口上限，超过 400 天的连胜按 400 报告
const StreakWindowDays = 400

// StreakResult 连胜结果
type StreakResult struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// computeStreaks 从 today 向前逐日扫描 window 天。
// temp 遇成功日加一、遇失败日清零，longest 取 temp 的最大值；
// current 只统计从今天开始、遇到第一个失败日之前的连续成功日。
func computeStreaks(today time.Time, window int, success func(day time.Time) bool) StreakResult {
	var result StreakResult
	temp := 0
	frozen := false

	day := CanonicalDay(today)
	for i := 0; i < window; i++ {
		if success(day) {
			temp++
			if temp > result.Longest {
				result.Longest = temp
			}
			if !frozen {
				result.Current++
			}
		} else {
			temp = 0
			frozen = true
		}
		day = prevDay(day)
	}

	return result
}

// Streaks 计算整个集合的连胜，成功日规则与日统计一致
func (s *StatsService) Streaks(ctx context.Context, userID string, set TrackableSet) (StreakResult, error) {
	if set.Total() == 0 {
		return StreakResult{}, nil
	}

	t := s.Today()
	key := cacheKey("streaks", set, t.Format(time.DateOnly))
	return cachedJSON(ctx, s.cache, s.metrics, userID, key, func() (StreakResult, error) {
		idx, err := s.windowIndex(ctx, userID, set, t)
		if err != nil {
			return StreakResult{}, err
		}
		total := set.Total()
		return computeStreaks(t, StreakWindowDays, func(day time.Time) bool {
			completed := idx.completed(day)
			return set.isSuccess(completed, roundPercentage(completed, total))
		}), nil
	})
}

// TrackableStreak 计算单个可追踪项的连胜，成功日即该项当天完成
func (s *StatsService) TrackableStreak(ctx context.Context, userID string, kind TrackableKind, trackableID string) (StreakResult, error) {
	trackableID = strings.TrimSpace(trackableID)
	switch kind {
	case KindHabit:
		if s.habits == nil {
			return StreakResult{}, fmt.Errorf("%w: no habit resolver", ErrUnknownTrackable)
		}
		if _, err := s.habits.Resolve(ctx, userID, trackableID); err != nil {
			return StreakResult{}, err
		}
	case KindPrayer:
		if !IsPrayerSlot(trackableID) {
			return StreakResult{}, fmt.Errorf("%w: prayer slot %q", ErrUnknownTrackable, trackableID)
		}
	default:
		return StreakResult{}, fmt.Errorf("%w: %q", ErrInvalidTrackableKind, kind)
	}

	set := NewTrackableSet(kind, []string{trackableID})
	t := s.Today()
	key := cacheKey("trackable-streak", set, t.Format(time.DateOnly))
	return cachedJSON(ctx, s.cache, s.metrics, userID, key, func() (StreakResult, error) {
		idx, err := s.windowIndex(ctx, userID, set, t)
		if err != nil {
			return StreakResult{}, err
		}
		return computeStreaks(t, StreakWindowDays, func(day time.Time) bool {
			return idx.has(day, trackableID)
		}), nil
	})
}

func (s *StatsService) windowIndex(ctx context.Context, userID string, set TrackableSet, t time.Time) (completionIndex, error) {
	start := t.AddDate(0, 0, -(StreakWindowDays - 1))
	records, err := s.store.ListRange(ctx, userID, set.Kind, start, t)
	if err != nil {
		return completionIndex{}, storageError("list completions", err)
	}
	return newCompletionIndex(set, records), nil
}
