package service

import "time"

const (
	hoursPerDay = 24
	// MaxRangeDays 限制单次日统计的区间长度
	MaxRangeDays = 731
)

// CanonicalDay 返回输入时间所在 UTC 日历日的零点。
// 只取输入自身的 UTC 年月日，与调用方时区和进程本地时区无关。
func CanonicalDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nextDay 在规范日空间内前进一天；UTC 没有夏令时，AddDate 不会跳日或重复。
func nextDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1)
}

func prevDay(day time.Time) time.Time {
	return day.AddDate(0, 0, -1)
}

// daysInclusive 返回 [start, end] 覆盖的天数，要求两端均已规范化。
func daysInclusive(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/hoursPerDay) + 1
}

// dayKey 以 Unix 秒作为规范日的 map 键
func dayKey(day time.Time) int64 {
	return CanonicalDay(day).Unix()
}

func monthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// Clock 提供“今天”的来源，测试中注入固定时间。
type Clock interface {
	Now() time.Time
}

// SystemClock 读取系统时间
type SystemClock struct{}

// Now 返回当前 UTC 时间
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock 始终返回同一时间
type FixedClock struct {
	At time.Time
}

// Now 返回固定时间
func (c FixedClock) Now() time.Time {
	return c.At
}

func today(c Clock) time.Time {
	if c == nil {
		c = SystemClock{}
	}
	return CanonicalDay(c.Now())
}
