package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ritualog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	habitMilestoneThresholds  = []int{30, 50, 75, 100, 150, 200, 250, 300, 365}
	prayerMilestoneThresholds = []int{7, 14, 30, 60, 100}
)

// AllowedThresholds 返回某类型允许确认的阈值（升序）
func AllowedThresholds(kind TrackableKind) []int {
	switch kind {
	case KindHabit:
		return slices.Clone(habitMilestoneThresholds)
	case KindPrayer:
		return slices.Clone(prayerMilestoneThresholds)
	default:
		return nil
	}
}

// MilestoneService 记录连胜里程碑的确认，本身不判断是否达成
type MilestoneService struct {
	db    *gorm.DB
	clock Clock
}

// NewMilestoneService 构造 MilestoneService
func NewMilestoneService(gdb *gorm.DB, clock Clock) *MilestoneService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MilestoneService{db: gdb, clock: clock}
}

// MilestoneInput 确认里程碑时的输入，Reward/Notes 为 nil 表示不修改
type MilestoneInput struct {
	Kind      TrackableKind
	Threshold int
	Reward    *string
	Notes     *string
}

// Acknowledge 按 (用户, 类型, 阈值) 幂等写入；重复确认只更新 reward/notes
func (s *MilestoneService) Acknowledge(ctx context.Context, userID string, input MilestoneInput) (*db.StreakMilestone, error) {
	allowed := AllowedThresholds(input.Kind)
	if allowed == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrackableKind, input.Kind)
	}
	if !slices.Contains(allowed, input.Threshold) {
		return nil, fmt.Errorf("%w: %d not in %v", ErrInvalidThreshold, input.Threshold, allowed)
	}

	record := db.StreakMilestone{
		UserID:     userID,
		Kind:       string(input.Kind),
		Threshold:  input.Threshold,
		AchievedAt: s.clock.Now().UTC(),
		Reward:     trimOptional(input.Reward),
		Notes:      trimOptional(input.Notes),
	}

	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "kind"}, {Name: "threshold"}},
	}
	var columns []string
	if input.Reward != nil {
		columns = append(columns, "reward")
	}
	if input.Notes != nil {
		columns = append(columns, "notes")
	}
	if len(columns) == 0 {
		conflict.DoNothing = true
	} else {
		conflict.DoUpdates = clause.AssignmentColumns(append(columns, "updated_at"))
	}

	if err := s.db.WithContext(ctx).Clauses(conflict).Create(&record).Error; err != nil {
		return nil, storageError("upsert milestone", err)
	}

	var stored db.StreakMilestone
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND threshold = ?", userID, string(input.Kind), input.Threshold).
		First(&stored).Error; err != nil {
		return nil, storageError("reload milestone", err)
	}
	return &stored, nil
}

// List 返回用户已确认的里程碑；kind 为空时返回全部类型
func (s *MilestoneService) List(ctx context.Context, userID string, kind TrackableKind) ([]db.StreakMilestone, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if kind != "" {
		query = query.Where("kind = ?", string(kind))
	}

	var milestones []db.StreakMilestone
	if err := query.Order("kind ASC").Order("threshold ASC").Find(&milestones).Error; err != nil {
		return nil, storageError("list milestones", err)
	}
	return milestones, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := strings.TrimSpace(*value)
	return &cleaned
}
