package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/service"
)

type togglePayload struct {
	Date string `json:"date"`
}

type prayerPayload struct {
	Date   string `json:"date"`
	Prayed *bool  `json:"prayed"`
	Note   string `json:"note"`
}

// ToggleHabit 翻转习惯在某天的完成状态
func (a *API) ToggleHabit(c *gin.Context) {
	if _, err := parseUintParam(c, "id"); err != nil {
		respondError(c, http.StatusBadRequest, "invalid habit id")
		return
	}
	a.toggle(c, service.KindHabit, c.Param("id"))
}

// TogglePrayer 翻转祷告时段在某天的状态
func (a *API) TogglePrayer(c *gin.Context) {
	a.toggle(c, service.KindPrayer, c.Param("slot"))
}

func (a *API) toggle(c *gin.Context, kind service.TrackableKind, trackableID string) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload togglePayload
	if !bindOptionalJSON(c, &payload, "invalid toggle payload") {
		return
	}

	day, err := parseDay(payload.Date, a.stats.Today())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	state, err := a.toggles.Toggle(c.Request.Context(), userID, kind, trackableID, day)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":         kind,
		"trackable_id": trackableID,
		"day":          service.CanonicalDay(day),
		"state":        state,
	})
}

// RecordPrayer 显式写入祷告时段状态（含“未完成”）
func (a *API) RecordPrayer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload prayerPayload
	if !bindJSON(c, &payload, "invalid prayer payload") {
		return
	}
	if payload.Prayed == nil {
		respondError(c, http.StatusBadRequest, "prayed is required")
		return
	}

	day, err := parseDay(payload.Date, a.stats.Today())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	record, err := a.toggles.RecordPrayer(c.Request.Context(), userID, c.Param("slot"), day, *payload.Prayed, payload.Note)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": recordToPayload(*record)})
}

func recordToPayload(record db.CompletionRecord) gin.H {
	return gin.H{
		"id":           record.ID,
		"kind":         record.Kind,
		"trackable_id": record.TrackableID,
		"day":          service.CanonicalDay(record.Day),
		"state":        record.State,
		"note":         record.Note,
		"updated_at":   record.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
