package service

import (
	"fmt"
	"slices"
	"strings"
)

// TrackableKind 区分习惯与祷告
type TrackableKind string

const (
	// KindHabit 用户自定义习惯，出现记录即视为完成
	KindHabit TrackableKind = "habit"
	// KindPrayer 每日固定五个祷告时段，记录带 prayed 状态
	KindPrayer TrackableKind = "prayer"
)

const (
	habitSuccessPercentage = 75
)

// PrayerSlots 为固定的五个祷告时段，按一天内顺序排列
var PrayerSlots = []string{"fajr", "zuhr", "asr", "maghrib", "isha"}

// ParseTrackableKind 解析类型名称，兼容复数形式（habits/prayers）
func ParseTrackableKind(raw string) (TrackableKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "habit", "habits":
		return KindHabit, nil
	case "prayer", "prayers":
		return KindPrayer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackableKind, raw)
	}
}

// IsPrayerSlot 判断名称是否为合法祷告时段
func IsPrayerSlot(name string) bool {
	return slices.Contains(PrayerSlots, name)
}

// TrackableSet 描述参与统计的一组可追踪项
type TrackableSet struct {
	Kind TrackableKind
	IDs  []string
}

// NewTrackableSet 去重并排序 ID，保证缓存键稳定
func NewTrackableSet(kind TrackableKind, ids []string) TrackableSet {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return TrackableSet{Kind: kind, IDs: out}
}

// PrayerSet 返回五个祷告时段组成的集合
func PrayerSet() TrackableSet {
	return NewTrackableSet(KindPrayer, PrayerSlots)
}

// Total 为集合大小
func (s TrackableSet) Total() int {
	return len(s.IDs)
}

func (s TrackableSet) contains(id string) bool {
	_, found := slices.BinarySearch(s.IDs, id)
	return found
}

func (s TrackableSet) fingerprint() string {
	return string(s.Kind) + ":" + strings.Join(s.IDs, ",")
}

// isSuccess 按类型判定成功日：习惯 ≥75%，祷告必须全部完成
func (s TrackableSet) isSuccess(completed, percentage int) bool {
	if s.Total() == 0 {
		return false
	}
	if s.Kind == KindPrayer {
		return completed == s.Total()
	}
	return percentage >= habitSuccessPercentage
}
