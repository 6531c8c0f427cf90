package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ritualog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrHabitNotFound 在指定习惯不存在或不属于当前用户时返回
	ErrHabitNotFound = fmt.Errorf("habit not found: %w", ErrUnknownTrackable)
	// ErrHabitInvalidInput 当习惯字段不合法时返回
	ErrHabitInvalidInput = errors.New("invalid habit input")
)

// HabitService 负责用户习惯的增删改查，并为统计提供活跃习惯集合
// Status 仅使用 active/inactive，默认 active
type HabitService struct {
	db    *gorm.DB
	store CompletionStore
	cache StatsCache
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	Status  string
	TypeTag string
	Search  string
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	Name        string
	Description string
	TypeTag     string
	Status      string
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB, store CompletionStore, cache StatsCache) *HabitService {
	if cache == nil {
		cache = NoopStatsCache{}
	}
	return &HabitService{db: gdb, store: store, cache: cache}
}

// List 返回用户的习惯集合，支持基本筛选
func (s *HabitService) List(ctx context.Context, userID string, filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.WithContext(ctx).Model(&db.Habit{}).Where("user_id = ?", userID)

	if filter.Status != "" {
		query = query.Where("status = ?", normalizeStatus(filter.Status))
	}
	if filter.TypeTag != "" {
		query = query.Where("type_tag = ?", strings.TrimSpace(filter.TypeTag))
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC").Order("id DESC").Find(&habits).Error; err != nil {
		return nil, storageError("list habits", err)
	}

	return habits, nil
}

// Get 根据 ID 获取用户的习惯
func (s *HabitService) Get(ctx context.Context, userID string, id uint) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&habit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, storageError("get habit", err)
	}
	return &habit, nil
}

// Resolve 将可追踪项 ID 解析为用户的习惯
func (s *HabitService) Resolve(ctx context.Context, userID, trackableID string) (*db.Habit, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(trackableID), 10, 32)
	if err != nil || id == 0 {
		return nil, ErrHabitNotFound
	}
	return s.Get(ctx, userID, uint(id))
}

// ActiveSet 返回用户全部 active 习惯组成的可追踪集合
func (s *HabitService) ActiveSet(ctx context.Context, userID string) (TrackableSet, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).
		Model(&db.Habit{}).
		Where("user_id = ? AND status = ?", userID, "active").
		Pluck("id", &ids).Error; err != nil {
		return TrackableSet{}, storageError("list active habits", err)
	}

	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, HabitTrackableID(id))
	}
	return NewTrackableSet(KindHabit, raw), nil
}

// Create 新建习惯
func (s *HabitService) Create(ctx context.Context, userID string, input HabitInput) (*db.Habit, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	habit := db.Habit{
		UserID:      userID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		TypeTag:     strings.TrimSpace(input.TypeTag),
		Status:      normalizeStatus(input.Status),
	}

	if err := s.db.WithContext(ctx).Create(&habit).Error; err != nil {
		return nil, storageError("create habit", err)
	}
	s.cache.Invalidate(ctx, userID)
	return &habit, nil
}

// Update 更新习惯
func (s *HabitService) Update(ctx context.Context, userID string, id uint, input HabitInput) (*db.Habit, error) {
	if err := validateHabitInput(input); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.TypeTag = strings.TrimSpace(input.TypeTag)
	existing.Status = normalizeStatus(input.Status)

	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, storageError("update habit", err)
	}
	s.cache.Invalidate(ctx, userID)
	return existing, nil
}

// Delete 删除习惯，并级联删除其完成记录
func (s *HabitService) Delete(ctx context.Context, userID string, id uint) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Unscoped().Delete(&db.Habit{}, id).Error; err != nil {
		return storageError("delete habit", err)
	}
	if s.store != nil {
		if _, err := s.store.DeleteTrackable(ctx, userID, KindHabit, HabitTrackableID(id)); err != nil {
			return storageError("delete habit completions", err)
		}
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// HabitTrackableID 将习惯主键转换为可追踪项 ID
func HabitTrackableID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func validateHabitInput(input HabitInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrHabitInvalidInput)
	}
	return nil
}

func normalizeStatus(status string) string {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != "inactive" {
		return "active"
	}
	return "inactive"
}
