package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 ritualog.db。
func Init(databasePath string) error {
	gdb, err := Open(databasePath, logger.Warn)
	if err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Open 打开 sqlite 数据库并完成迁移，不修改全局 DB，供 CLI 与测试使用。
func Open(databasePath string, level logger.LogLevel) (*gorm.DB, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "ritualog.db"
	}

	if !strings.HasPrefix(path, "file:") {
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
	}

	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(level)})
	if err != nil {
		return nil, err
	}

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate 为核心模型创建表与索引
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&Habit{},
		&CompletionRecord{},
		&StreakMilestone{},
	)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
