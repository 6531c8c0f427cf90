package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange 表示结束日期早于开始日期，或日期区间超出上限
	ErrInvalidRange = errors.New("invalid date range")
	// ErrUnknownTrackable 表示可追踪项不存在或不属于该用户
	ErrUnknownTrackable = errors.New("unknown trackable")
	// ErrInvalidThreshold 表示里程碑阈值不在允许集合内
	ErrInvalidThreshold = errors.New("invalid milestone threshold")
	// ErrInvalidTrackableKind 表示未知的可追踪项类型
	ErrInvalidTrackableKind = errors.New("invalid trackable kind")
	// ErrStorageUnavailable 包装所有存储层 I/O 失败，不做吞并
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
