package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ritualog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultScanBatchSize = 500

// legacyOffsetSlack 覆盖历史记录可能携带的最大时区偏移
const legacyOffsetSlack = 14 * time.Hour

// RecordKey 定位某个可追踪项在某一规范日的记录
type RecordKey struct {
	UserID      string
	Kind        TrackableKind
	TrackableID string
	Day         time.Time
}

func (k RecordKey) canonical() RecordKey {
	k.UserID = strings.TrimSpace(k.UserID)
	k.TrackableID = strings.TrimSpace(k.TrackableID)
	k.Day = CanonicalDay(k.Day)
	return k
}

// CompletionStore 是完成记录的唯一持有者，负责在并发写入下维持唯一性。
// 所有方法返回的错误均未经包装，由调用方决定如何归类。
type CompletionStore interface {
	// FindDay 返回该键所在规范日窗口内最新的一条记录；不存在时返回 nil, nil
	FindDay(ctx context.Context, key RecordKey) (*db.CompletionRecord, error)
	// Insert 以唯一索引为条件插入，冲突时不做任何事，返回是否创建
	Insert(ctx context.Context, key RecordKey, state bool) (bool, error)
	// SetState 仅当记录当前状态为 from 时更新为 to
	SetState(ctx context.Context, id uint, from, to bool) (bool, error)
	// Upsert 插入或覆盖状态与备注，返回最终记录
	Upsert(ctx context.Context, key RecordKey, state bool, note string) (*db.CompletionRecord, error)
	// DeleteDay 删除该键规范日窗口内的全部记录，返回删除条数
	DeleteDay(ctx context.Context, key RecordKey) (int64, error)
	// Delete 按主键删除，返回是否确有记录被删除
	Delete(ctx context.Context, id uint) (bool, error)
	// ListRange 返回用户某类型在 [start, end] 规范日内的所有记录
	ListRange(ctx context.Context, userID string, kind TrackableKind, start, end time.Time) ([]db.CompletionRecord, error)
	// ListTrackable 返回单个可追踪项的全部记录，按日期升序
	ListTrackable(ctx context.Context, userID string, kind TrackableKind, trackableID string) ([]db.CompletionRecord, error)
	// DeleteTrackable 删除单个可追踪项的全部记录
	DeleteTrackable(ctx context.Context, userID string, kind TrackableKind, trackableID string) (int64, error)
	// ScanKind 分批遍历某类型的全部记录
	ScanKind(ctx context.Context, kind TrackableKind, fn func(batch []db.CompletionRecord) error) error
}

// GormCompletionStore 基于 gorm 的 CompletionStore 实现
type GormCompletionStore struct {
	db        *gorm.DB
	batchSize int
}

// NewGormCompletionStore 构造 GormCompletionStore
func NewGormCompletionStore(gdb *gorm.DB) *GormCompletionStore {
	return &GormCompletionStore{db: gdb, batchSize: defaultScanBatchSize}
}

// WithBatchSize 调整 ScanKind 的批大小
func (s *GormCompletionStore) WithBatchSize(n int) *GormCompletionStore {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// dayWindow 取出该键规范日内的全部记录。
// sqlite 按文本比较 day，历史数据可能带有本地时区偏移（最多 ±14h），
// 因此 SQL 条件放宽 legacyOffsetSlack，再按 CanonicalDay 精确过滤。
func (s *GormCompletionStore) dayWindow(ctx context.Context, key RecordKey) ([]db.CompletionRecord, error) {
	key = key.canonical()
	var records []db.CompletionRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND trackable_id = ?", key.UserID, string(key.Kind), key.TrackableID).
		Where("day >= ? AND day < ?", key.Day.Add(-legacyOffsetSlack), nextDay(key.Day).Add(legacyOffsetSlack)).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return withinDays(records, key.Day, key.Day), nil
}

func (s *GormCompletionStore) FindDay(ctx context.Context, key RecordKey) (*db.CompletionRecord, error) {
	records, err := s.dayWindow(ctx, key)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	newest := records[0]
	for _, record := range records[1:] {
		if newerRecord(record, newest) {
			newest = record
		}
	}
	return &newest, nil
}

func (s *GormCompletionStore) Insert(ctx context.Context, key RecordKey, state bool) (bool, error) {
	key = key.canonical()
	record := db.CompletionRecord{
		UserID:      key.UserID,
		Kind:        string(key.Kind),
		TrackableID: key.TrackableID,
		Day:         key.Day,
		State:       state,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   uniqueColumns(),
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormCompletionStore) SetState(ctx context.Context, id uint, from, to bool) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&db.CompletionRecord{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{"state": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Upsert 优先更新规范日窗口内已有的记录（包括非零点的历史记录），
// 窗口内没有记录时才按唯一索引插入，避免同一天出现第二条记录。
func (s *GormCompletionStore) Upsert(ctx context.Context, key RecordKey, state bool, note string) (*db.CompletionRecord, error) {
	key = key.canonical()
	note = strings.TrimSpace(note)

	existing, err := s.FindDay(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.db.WithContext(ctx).
			Model(&db.CompletionRecord{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{"state": state, "note": note, "updated_at": time.Now().UTC()}).Error; err != nil {
			return nil, err
		}
		var stored db.CompletionRecord
		if err := s.db.WithContext(ctx).First(&stored, existing.ID).Error; err != nil {
			return nil, err
		}
		return &stored, nil
	}

	record := db.CompletionRecord{
		UserID:      key.UserID,
		Kind:        string(key.Kind),
		TrackableID: key.TrackableID,
		Day:         key.Day,
		State:       state,
		Note:        note,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   uniqueColumns(),
		DoUpdates: clause.AssignmentColumns([]string{"state", "note", "updated_at"}),
	}).Create(&record).Error; err != nil {
		return nil, err
	}

	var stored db.CompletionRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND trackable_id = ? AND day = ?", key.UserID, string(key.Kind), key.TrackableID, key.Day).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *GormCompletionStore) DeleteDay(ctx context.Context, key RecordKey) (int64, error) {
	records, err := s.dayWindow(ctx, key)
	if err != nil || len(records) == 0 {
		return 0, err
	}
	ids := make([]uint, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	result := s.db.WithContext(ctx).Delete(&db.CompletionRecord{}, ids)
	return result.RowsAffected, result.Error
}

func (s *GormCompletionStore) Delete(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&db.CompletionRecord{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormCompletionStore) ListRange(ctx context.Context, userID string, kind TrackableKind, start, end time.Time) ([]db.CompletionRecord, error) {
	start, end = CanonicalDay(start), CanonicalDay(end)
	var records []db.CompletionRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", strings.TrimSpace(userID), string(kind)).
		Where("day >= ? AND day < ?", start.Add(-legacyOffsetSlack), nextDay(end).Add(legacyOffsetSlack)).
		Order("day ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return withinDays(records, start, end), nil
}

func (s *GormCompletionStore) ListTrackable(ctx context.Context, userID string, kind TrackableKind, trackableID string) ([]db.CompletionRecord, error) {
	var records []db.CompletionRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND trackable_id = ?", strings.TrimSpace(userID), string(kind), strings.TrimSpace(trackableID)).
		Order("day ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GormCompletionStore) DeleteTrackable(ctx context.Context, userID string, kind TrackableKind, trackableID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND trackable_id = ?", strings.TrimSpace(userID), string(kind), strings.TrimSpace(trackableID)).
		Delete(&db.CompletionRecord{})
	return result.RowsAffected, result.Error
}

func (s *GormCompletionStore) ScanKind(ctx context.Context, kind TrackableKind, fn func(batch []db.CompletionRecord) error) error {
	var batch []db.CompletionRecord
	result := s.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		FindInBatches(&batch, s.batchSize, func(tx *gorm.DB, _ int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(batch)
		})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func uniqueColumns() []clause.Column {
	return []clause.Column{{Name: "user_id"}, {Name: "kind"}, {Name: "trackable_id"}, {Name: "day"}}
}

// withinDays 保留规范日落在 [start, end] 内的记录，原地过滤
func withinDays(records []db.CompletionRecord, start, end time.Time) []db.CompletionRecord {
	kept := records[:0]
	for _, record := range records {
		day := CanonicalDay(record.Day)
		if day.Before(start) || day.After(end) {
			continue
		}
		kept = append(kept, record)
	}
	return kept
}
