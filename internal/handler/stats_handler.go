package handler

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ritualog/internal/service"
)

// DailyStats 返回 kind 在 [start, end] 内的逐日统计，默认最近 7 天
func (a *API) DailyStats(kind service.TrackableKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		today := a.stats.Today()
		end, err := parseDay(c.Query("end"), today)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		start, err := parseDay(c.Query("start"), service.CanonicalDay(end).AddDate(0, 0, -6))
		if err != nil {
			handleServiceError(c, err)
			return
		}

		set, err := a.trackableSet(c.Request.Context(), userID, kind)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		days, err := a.stats.DailyStats(c.Request.Context(), userID, set, start, end)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"kind": kind, "days": days})
	}
}

// MonthlyStats 返回某年 12 个月的统计，默认今年
func (a *API) MonthlyStats(kind service.TrackableKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		year := a.stats.Today().Year()
		if raw := strings.TrimSpace(c.Query("year")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				handleServiceError(c, fmt.Errorf("%w: year %q", service.ErrInvalidRange, raw))
				return
			}
			year = parsed
		}

		set, err := a.trackableSet(c.Request.Context(), userID, kind)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		months, err := a.stats.MonthlyStats(c.Request.Context(), userID, set, year)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"kind": kind, "year": year, "months": months})
	}
}

// Streaks 返回整个集合的连胜，以及已达到但尚未确认的里程碑
func (a *API) Streaks(kind service.TrackableKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		set, err := a.trackableSet(ctx, userID, kind)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		streak, err := a.stats.Streaks(ctx, userID, set)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		pending, err := a.pendingMilestones(ctx, userID, kind, streak.Current)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"kind":               kind,
			"current":            streak.Current,
			"longest":            streak.Longest,
			"pending_milestones": pending,
		})
	}
}

// HabitStreak 返回单个习惯的连胜
func (a *API) HabitStreak(c *gin.Context) {
	if _, err := parseUintParam(c, "id"); err != nil {
		respondError(c, http.StatusBadRequest, "invalid habit id")
		return
	}
	a.trackableStreak(c, service.KindHabit, c.Param("id"))
}

// PrayerStreak 返回单个祷告时段的连胜
func (a *API) PrayerStreak(c *gin.Context) {
	a.trackableStreak(c, service.KindPrayer, c.Param("slot"))
}

func (a *API) trackableStreak(c *gin.Context, kind service.TrackableKind, trackableID string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	streak, err := a.stats.TrackableStreak(c.Request.Context(), userID, kind, trackableID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":         kind,
		"trackable_id": trackableID,
		"current":      streak.Current,
		"longest":      streak.Longest,
	})
}

func (a *API) trackableSet(ctx context.Context, userID string, kind service.TrackableKind) (service.TrackableSet, error) {
	if kind == service.KindPrayer {
		return service.PrayerSet(), nil
	}
	return a.habits.ActiveSet(ctx, userID)
}

// pendingMilestones 列出 current 已达到、但用户尚未确认的阈值
func (a *API) pendingMilestones(ctx context.Context, userID string, kind service.TrackableKind, current int) ([]int, error) {
	acknowledged, err := a.milestones.List(ctx, userID, kind)
	if err != nil {
		return nil, err
	}

	done := make([]int, 0, len(acknowledged))
	for _, m := range acknowledged {
		done = append(done, m.Threshold)
	}

	pending := []int{}
	for _, threshold := range service.AllowedThresholds(kind) {
		if threshold <= current && !slices.Contains(done, threshold) {
			pending = append(pending, threshold)
		}
	}
	return pending, nil
}
