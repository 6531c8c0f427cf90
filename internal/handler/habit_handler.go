package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/service"
)

type habitPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TypeTag     string `json:"type_tag"`
	Status      string `json:"status"`
}

// ListHabits 返回习惯列表 JSON
func (a *API) ListHabits(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	filter := service.HabitFilter{
		Status:  c.Query("status"),
		TypeTag: c.Query("type_tag"),
		Search:  c.Query("search"),
	}

	habits, err := a.habits.List(c.Request.Context(), userID, filter)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}

	c.JSON(http.StatusOK, gin.H{"habits": items})
}

// GetHabit 返回单个习惯详情
func (a *API) GetHabit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid habit id")
		return
	}

	habit, err := a.habits.Get(c.Request.Context(), userID, id)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload habitPayload
	if !bindJSON(c, &payload, "invalid habit payload") {
		return
	}

	habit, err := a.habits.Create(c.Request.Context(), userID, payload.input())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"habit": habitToPayload(*habit)})
}

// UpdateHabit 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid habit id")
		return
	}

	var payload habitPayload
	if !bindJSON(c, &payload, "invalid habit payload") {
		return
	}

	habit, err := a.habits.Update(c.Request.Context(), userID, id, payload.input())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"habit": habitToPayload(*habit)})
}

// DeleteHabit 删除习惯及其完成记录
func (a *API) DeleteHabit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid habit id")
		return
	}

	if err := a.habits.Delete(c.Request.Context(), userID, id); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "habit_id": id})
}

func (p habitPayload) input() service.HabitInput {
	return service.HabitInput{
		Name:        p.Name,
		Description: p.Description,
		TypeTag:     p.TypeTag,
		Status:      p.Status,
	}
}

func habitToPayload(habit db.Habit) gin.H {
	return gin.H{
		"id":          habit.ID,
		"name":        habit.Name,
		"description": habit.Description,
		"type_tag":    strings.TrimSpace(habit.TypeTag),
		"status":      habit.Status,
		"created_at":  habit.CreatedAt.UTC().Format(time.RFC3339),
	}
}
