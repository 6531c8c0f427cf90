package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ritualog/internal/logger"
	"github.com/ritualog/internal/middleware"
	"github.com/ritualog/internal/service"
	"go.uber.org/zap"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// bindOptionalJSON 允许空请求体，包括长度未知（chunked）但内容为空的请求
func bindOptionalJSON(c *gin.Context, dst interface{}, message string) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(id), nil
}

// currentUser 从认证中间件读取用户，缺失时直接返回 401
func currentUser(c *gin.Context) (string, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		respondError(c, http.StatusUnauthorized, "unauthenticated")
		return "", false
	}
	return userID, true
}

// parseDay 解析边界上的日期：YYYY-MM-DD 视为该 UTC 日历日，或 RFC3339 时间戳。
// 为空时返回 fallback。
func parseDay(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse date %q", service.ErrInvalidRange, raw)
}

// handleServiceError 将服务层错误映射为 HTTP 状态码
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitInvalidInput),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidThreshold),
		errors.Is(err, service.ErrInvalidTrackableKind):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "habit not found")
	case errors.Is(err, service.ErrUnknownTrackable):
		respondError(c, http.StatusNotFound, "trackable not found")
	case errors.Is(err, service.ErrStorageUnavailable):
		logger.L().Error("storage unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "storage unavailable")
	default:
		logger.L().Error("unexpected handler error", zap.String("path", c.FullPath()), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal error")
	}
}
