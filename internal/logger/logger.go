package logger

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ritualog/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// L 返回全局结构化日志实例，未初始化时为 no-op。
func L() *zap.Logger {
	return global.Load()
}

// S 返回 sugared 版本，便于格式化输出。
func S() *zap.SugaredLogger {
	return global.Load().Sugar()
}

// Replace 替换全局日志实例，返回恢复函数（测试中使用）。
func Replace(l *zap.Logger) func() {
	prev := global.Swap(l)
	return func() { global.Store(prev) }
}

// Init 根据配置构建 stdout + 滚动文件双输出的 JSON 日志。
func Init(cfg config.AppConfig) (*zap.Logger, error) {
	level := parseLevel(cfg.LogLevel)

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), level),
	}

	if cfg.LogPath != "" {
		if dir := filepath.Dir(cfg.LogPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    nz(cfg.LogMaxSizeMB, 100), // megabytes
			MaxBackups: nz(cfg.LogMaxBackups, 3),
			MaxAge:     nz(cfg.LogMaxAgeDays, 7), // days
			Compress:   cfg.LogCompress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(lj), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.Development())
	}

	l := zap.New(zapcore.NewTee(cores...), opts...)
	global.Store(l)
	return l, nil
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02 15:04:05.000"))
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func nz(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
