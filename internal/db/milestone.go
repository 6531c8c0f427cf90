package db

import "time"

// StreakMilestone 记录用户对某个连胜阈值的确认，每个 (UserID, Kind, Threshold) 仅一条。
type StreakMilestone struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:idx_milestone_unique,priority:1"`
	Kind       string    `gorm:"size:16;not null;uniqueIndex:idx_milestone_unique,priority:2"`
	Threshold  int       `gorm:"not null;uniqueIndex:idx_milestone_unique,priority:3"`
	AchievedAt time.Time `gorm:"not null"`
	Reward     *string
	Notes      *string `gorm:"type:text"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName 指定自定义表名。
func (StreakMilestone) TableName() string {
	return "streak_milestones"
}
