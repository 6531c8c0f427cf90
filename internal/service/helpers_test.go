package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ritualog/internal/db"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupServiceTestDB 为每个测试打开独立的内存库
func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.Open(dsn, gormlogger.Silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return gdb
}

func mustCreateHabit(t *testing.T, svc *HabitService, userID, name string) *db.Habit {
	t.Helper()
	habit, err := svc.Create(context.Background(), userID, HabitInput{Name: name})
	if err != nil {
		t.Fatalf("failed to create habit %q: %v", name, err)
	}
	return habit
}

func insertRecord(t *testing.T, gdb *gorm.DB, record db.CompletionRecord) db.CompletionRecord {
	t.Helper()
	if err := gdb.Create(&record).Error; err != nil {
		t.Fatalf("failed to insert record: %v", err)
	}
	return record
}

func dbRecord(userID string, kind TrackableKind, trackableID string, day time.Time) db.CompletionRecord {
	return db.CompletionRecord{
		UserID:      userID,
		Kind:        string(kind),
		TrackableID: trackableID,
		Day:         day,
		State:       true,
	}
}

func utcDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
