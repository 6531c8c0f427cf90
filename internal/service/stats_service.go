package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ritualog/internal/db"
)

// DayStat 单日统计
type DayStat struct {
	Day            time.Time `json:"day"`
	CompletedCount int       `json:"completed_count"`
	Total          int       `json:"total"`
	Percentage     int       `json:"percentage"`
	IsSuccessDay   bool      `json:"is_success_day"`
}

// MonthStat 单月统计，未来月份为零值
type MonthStat struct {
	Month       int `json:"month"`
	SuccessDays int `json:"success_days"`
	TotalDays   int `json:"total_days"`
	Percentage  int `json:"percentage"`
}

// StatsService 负责日/月统计与连胜计算，“今天”由 Clock 注入
type StatsService struct {
	store   CompletionStore
	habits  HabitResolver
	clock   Clock
	cache   StatsCache
	metrics Metrics
}

// NewStatsService 构造 StatsService
func NewStatsService(store CompletionStore, habits HabitResolver, clock Clock, cache StatsCache, metrics Metrics) *StatsService {
	if clock == nil {
		clock = SystemClock{}
	}
	if cache == nil {
		cache = NoopStatsCache{}
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &StatsService{store: store, habits: habits, clock: clock, cache: cache, metrics: metrics}
}

// Today 返回注入时钟下的规范日
func (s *StatsService) Today() time.Time {
	return today(s.clock)
}

// DailyStats 返回 [start, end] 内逐日统计；集合为空时返回空列表
func (s *StatsService) DailyStats(ctx context.Context, userID string, set TrackableSet, start, end time.Time) ([]DayStat, error) {
	start, end = CanonicalDay(start), CanonicalDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if daysInclusive(start, end) > MaxRangeDays {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidRange, MaxRangeDays)
	}
	if set.Total() == 0 {
		return []DayStat{}, nil
	}

	records, err := s.store.ListRange(ctx, userID, set.Kind, start, end)
	if err != nil {
		return nil, storageError("list completions", err)
	}

	return buildDayStats(set, newCompletionIndex(set, records), start, end), nil
}

// MonthlyStats 返回某年 12 个月的成功天数统计，部分未来的月份截止到今天
func (s *StatsService) MonthlyStats(ctx context.Context, userID string, set TrackableSet, year int) ([12]MonthStat, error) {
	if year < 1 || year > 9999 {
		return [12]MonthStat{}, fmt.Errorf("%w: year %d", ErrInvalidRange, year)
	}

	t := s.Today()
	key := cacheKey("monthly", set, strconv.Itoa(year), t.Format(time.DateOnly))
	return cachedJSON(ctx, s.cache, s.metrics, userID, key, func() ([12]MonthStat, error) {
		return s.monthlyStats(ctx, userID, set, year, t)
	})
}

func (s *StatsService) monthlyStats(ctx context.Context, userID string, set TrackableSet, year int, t time.Time) ([12]MonthStat, error) {
	var months [12]MonthStat
	for i := range months {
		months[i].Month = i + 1
	}

	yearStart, _ := monthBounds(year, time.January)
	_, yearEnd := monthBounds(year, time.December)
	if set.Total() == 0 || yearStart.After(t) {
		return months, nil
	}
	if yearEnd.After(t) {
		yearEnd = t
	}

	records, err := s.store.ListRange(ctx, userID, set.Kind, yearStart, yearEnd)
	if err != nil {
		return months, storageError("list completions", err)
	}
	idx := newCompletionIndex(set, records)

	for i := range months {
		monthStart, monthEnd := monthBounds(year, time.Month(i+1))
		if monthStart.After(t) {
			continue
		}
		if monthEnd.After(t) {
			monthEnd = t
		}

		days := buildDayStats(set, idx, monthStart, monthEnd)
		for _, day := range days {
			if day.IsSuccessDay {
				months[i].SuccessDays++
			}
		}
		months[i].TotalDays = len(days)
		if months[i].TotalDays > 0 {
			months[i].Percentage = roundPercentage(months[i].SuccessDays, months[i].TotalDays)
		}
	}

	return months, nil
}

func buildDayStats(set TrackableSet, idx completionIndex, start, end time.Time) []DayStat {
	total := set.Total()
	if total == 0 {
		return []DayStat{}
	}

	stats := make([]DayStat, 0, daysInclusive(start, end))
	for day := start; !day.After(end); day = nextDay(day) {
		completed := idx.completed(day)
		pct := roundPercentage(completed, total)
		stats = append(stats, DayStat{
			Day:            day,
			CompletedCount: completed,
			Total:          total,
			Percentage:     pct,
			IsSuccessDay:   set.isSuccess(completed, pct),
		})
	}
	return stats
}

func roundPercentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// completionIndex 将记录按规范日与可追踪项归并。
// 同一键的重复记录只取最新一条，集合外的记录（已删除的习惯等）被忽略。
type completionIndex struct {
	days map[int64]map[string]bool
}

func newCompletionIndex(set TrackableSet, records []db.CompletionRecord) completionIndex {
	latest := make(map[int64]map[string]db.CompletionRecord)

	for _, record := range records {
		if !set.contains(record.TrackableID) {
			continue
		}
		key := dayKey(record.Day)
		byTrackable, ok := latest[key]
		if !ok {
			byTrackable = make(map[string]db.CompletionRecord)
			latest[key] = byTrackable
		}
		current, seen := byTrackable[record.TrackableID]
		if !seen || newerRecord(record, current) {
			byTrackable[record.TrackableID] = record
		}
	}

	idx := completionIndex{days: make(map[int64]map[string]bool, len(latest))}
	for key, byTrackable := range latest {
		done := make(map[string]bool, len(byTrackable))
		for id, record := range byTrackable {
			if set.Kind == KindHabit || record.State {
				done[id] = true
			}
		}
		idx.days[key] = done
	}
	return idx
}

func (idx completionIndex) completed(day time.Time) int {
	return len(idx.days[dayKey(day)])
}

func (idx completionIndex) has(day time.Time, trackableID string) bool {
	return idx.days[dayKey(day)][trackableID]
}

// newerRecord 以创建时间降序、主键降序构成全序
func newerRecord(a, b db.CompletionRecord) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
