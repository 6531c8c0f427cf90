package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/service"
)

type milestonePayload struct {
	Kind      string  `json:"kind"`
	Threshold int     `json:"threshold"`
	Reward    *string `json:"reward"`
	Notes     *string `json:"notes"`
}

// AcknowledgeMilestone 确认某个连胜阈值，重复确认只更新奖励与备注
func (a *API) AcknowledgeMilestone(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload milestonePayload
	if !bindJSON(c, &payload, "invalid milestone payload") {
		return
	}

	kind, err := service.ParseTrackableKind(payload.Kind)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	milestone, err := a.milestones.Acknowledge(c.Request.Context(), userID, service.MilestoneInput{
		Kind:      kind,
		Threshold: payload.Threshold,
		Reward:    payload.Reward,
		Notes:     payload.Notes,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"milestone": a.milestoneToPayload(*milestone)})
}

// ListMilestones 返回已确认的里程碑，可按 kind 过滤
func (a *API) ListMilestones(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var kind service.TrackableKind
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		parsed, err := service.ParseTrackableKind(raw)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		kind = parsed
	}

	milestones, err := a.milestones.List(c.Request.Context(), userID, kind)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(milestones))
	for _, m := range milestones {
		items = append(items, a.milestoneToPayload(m))
	}

	c.JSON(http.StatusOK, gin.H{"milestones": items})
}

func (a *API) milestoneToPayload(m db.StreakMilestone) gin.H {
	item := gin.H{
		"id":          m.ID,
		"kind":        m.Kind,
		"threshold":   m.Threshold,
		"achieved_at": m.AchievedAt.UTC().Format(time.RFC3339),
	}
	if m.Reward != nil {
		item["reward"] = a.notes.Text(*m.Reward)
	}
	if m.Notes != nil {
		item["notes"] = *m.Notes
		item["notes_html"] = a.notes.HTML(*m.Notes)
	}
	return item
}
