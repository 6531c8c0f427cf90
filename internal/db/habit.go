package db

import (
	"time"

	"gorm.io/gorm"
)

// Habit 定义了习惯模型
// UserID 为外部认证层提供的不透明用户标识
// TypeTag 用于区分习惯类别，便于统计/筛选
// Status 仅 active 的习惯参与每日完成率与连胜统计
type Habit struct {
	gorm.Model
	UserID      string `gorm:"size:64;index;not null"`
	Name        string
	Description string
	TypeTag     string
	Status      string `gorm:"size:16;index"`
}

// CompletionRecord 记录某个可追踪项（习惯或祷告时段）在某一天的完成情况
// (UserID, Kind, TrackableID, Day) 采用唯一索引，保证同一天只有一条记录；
// Day 始终写入 UTC 零点。历史数据中可能存在非零点的 Day，由去重任务收敛。
// 不使用软删除，唯一索引只约束在用记录。
type CompletionRecord struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      string    `gorm:"size:64;not null;index:idx_completion_unique,unique,priority:1;index:idx_completion_user_day,priority:1"`
	Kind        string    `gorm:"size:16;not null;index:idx_completion_unique,unique,priority:2;index:idx_completion_user_day,priority:2"`
	TrackableID string    `gorm:"size:64;not null;index:idx_completion_unique,unique,priority:3"`
	Day         time.Time `gorm:"not null;index:idx_completion_unique,unique,priority:4;index:idx_completion_user_day,priority:3"`
	State       bool      `gorm:"not null"`
	Note        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 重写确保唯一索引作用到 user_id + kind + trackable_id + day
func (CompletionRecord) TableName() string {
	return "completion_records"
}
