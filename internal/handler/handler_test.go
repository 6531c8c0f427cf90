package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ritualog/internal/db"
	"github.com/ritualog/internal/middleware"
	"github.com/ritualog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

var testNow = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

func setupHandlerTest(t *testing.T) (*API, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), gormlogger.Silent)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	api := NewAPI(gdb, Options{Clock: service.FixedClock{At: testNow}})

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(middleware.ContextUserIDKey, user)
		}
		c.Next()
	})
	r.GET("/habits", api.ListHabits)
	r.POST("/habits", api.CreateHabit)
	r.DELETE("/habits/:id", api.DeleteHabit)
	r.POST("/habits/:id/toggle", api.ToggleHabit)
	r.GET("/habits/stats/daily", api.DailyStats(service.KindHabit))
	r.POST("/prayers/:slot/toggle", api.TogglePrayer)
	r.PUT("/prayers/:slot", api.RecordPrayer)
	r.GET("/prayers/streaks", api.Streaks(service.KindPrayer))
	r.GET("/prayers/stats/monthly", api.MonthlyStats(service.KindPrayer))
	r.POST("/milestones", api.AcknowledgeMilestone)
	r.GET("/milestones", api.ListMilestones)
	return api, r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestParseDay(t *testing.T) {
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := parseDay("", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	got, err = parseDay("2024-03-10", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDay("2024-03-10T23:30:00-05:00", fallback)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), service.CanonicalDay(got))

	_, err = parseDay("10/03/2024", fallback)
	assert.True(t, errors.Is(err, service.ErrInvalidRange))
}

func TestHandlersRequireUser(t *testing.T) {
	_, r := setupHandlerTest(t)
	rr := doJSON(t, r, http.MethodGet, "/habits", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHabitToggleAndDailyStats(t *testing.T) {
	_, r := setupHandlerTest(t)

	rr := doJSON(t, r, http.MethodPost, "/habits", "u1", gin.H{"name": "晨跑"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	habit := decode(t, rr)["habit"].(map[string]any)
	id := int(habit["id"].(float64))

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/habits/%d/toggle", id), "u1", gin.H{"date": "2024-06-09"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, true, body["state"])
	assert.Equal(t, "2024-06-09T00:00:00Z", body["day"])

	// 无请求体时默认今天
	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/habits/%d/toggle", id), "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "2024-06-10T00:00:00Z", decode(t, rr)["day"])

	rr = doJSON(t, r, http.MethodGet, "/habits/stats/daily?start=2024-06-08&end=2024-06-10", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	days := decode(t, rr)["days"].([]any)
	require.Len(t, days, 3)
	assert.Equal(t, float64(0), days[0].(map[string]any)["percentage"])
	assert.Equal(t, float64(100), days[1].(map[string]any)["percentage"])
	assert.Equal(t, true, days[2].(map[string]any)["is_success_day"])

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/habits/%d/toggle", id), "u2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/habits/%d/toggle", id), "u1", gin.H{"date": "June 9"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPrayerRecordAndToggle(t *testing.T) {
	_, r := setupHandlerTest(t)

	rr := doJSON(t, r, http.MethodPut, "/prayers/fajr", "u1", gin.H{"date": "2024-06-10", "prayed": false})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	record := decode(t, rr)["record"].(map[string]any)
	assert.Equal(t, false, record["state"])

	rr = doJSON(t, r, http.MethodPut, "/prayers/fajr", "u1", gin.H{"date": "2024-06-10"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, r, http.MethodPost, "/prayers/fajr/toggle", "u1", gin.H{"date": "2024-06-10"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["state"])

	rr = doJSON(t, r, http.MethodPost, "/prayers/witr/toggle", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStreaksReportPendingMilestones(t *testing.T) {
	_, r := setupHandlerTest(t)

	for i := 0; i < 14; i++ {
		day := testNow.AddDate(0, 0, -i).Format(time.DateOnly)
		for _, slot := range service.PrayerSlots {
			rr := doJSON(t, r, http.MethodPost, "/prayers/"+slot+"/toggle", "u1", gin.H{"date": day})
			require.Equal(t, http.StatusOK, rr.Code)
		}
	}

	rr := doJSON(t, r, http.MethodGet, "/prayers/streaks", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, float64(14), body["current"])
	assert.Equal(t, []any{float64(7), float64(14)}, body["pending_milestones"])

	rr = doJSON(t, r, http.MethodPost, "/milestones", "u1", gin.H{"kind": "prayers", "threshold": 7, "notes": "第一周 **完成**<script>alert(1)</script>"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	milestone := decode(t, rr)["milestone"].(map[string]any)
	assert.Equal(t, "prayer", milestone["kind"])
	assert.Contains(t, milestone["notes_html"], "<strong>完成</strong>")
	assert.NotContains(t, milestone["notes_html"], "<script>")

	rr = doJSON(t, r, http.MethodGet, "/prayers/streaks", "u1", nil)
	assert.Equal(t, []any{float64(14)}, decode(t, rr)["pending_milestones"])

	rr = doJSON(t, r, http.MethodPost, "/milestones", "u1", gin.H{"kind": "prayer", "threshold": 8})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, r, http.MethodGet, "/milestones?kind=prayer", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["milestones"], 1)
}

func TestMonthlyStatsEndpoint(t *testing.T) {
	_, r := setupHandlerTest(t)

	rr := doJSON(t, r, http.MethodGet, "/prayers/stats/monthly?year=2024", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	months := decode(t, rr)["months"].([]any)
	require.Len(t, months, 12)
	assert.Equal(t, float64(10), months[5].(map[string]any)["total_days"])
	assert.Equal(t, float64(0), months[6].(map[string]any)["total_days"])

	rr = doJSON(t, r, http.MethodGet, "/prayers/stats/monthly?year=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteHabitCascades(t *testing.T) {
	api, r := setupHandlerTest(t)

	rr := doJSON(t, r, http.MethodPost, "/habits", "u1", gin.H{"name": "阅读"})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := int(decode(t, rr)["habit"].(map[string]any)["id"].(float64))

	rr = doJSON(t, r, http.MethodPost, fmt.Sprintf("/habits/%d/toggle", id), "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/habits/%d", id), "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var count int64
	require.NoError(t, api.DB().Model(&db.CompletionRecord{}).Count(&count).Error)
	assert.Zero(t, count)

	rr = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/habits/%d", id), "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleServiceErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", service.ErrInvalidRange), http.StatusBadRequest},
		{service.ErrInvalidThreshold, http.StatusBadRequest},
		{service.ErrHabitNotFound, http.StatusNotFound},
		{service.ErrUnknownTrackable, http.StatusNotFound},
		{fmt.Errorf("op: %w: %w", service.ErrStorageUnavailable, errors.New("disk")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		handleServiceError(c, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestToggleAcceptsChunkedEmptyBody(t *testing.T) {
	_, r := setupHandlerTest(t)

	send := func(body string) *httptest.ResponseRecorder {
		// 包装后 httptest 无法得知长度，ContentLength 为 -1
		req := httptest.NewRequest(http.MethodPost, "/prayers/asr/toggle", struct{ io.Reader }{strings.NewReader(body)})
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "u1")
		require.EqualValues(t, -1, req.ContentLength)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := send("")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decode(t, rr)["state"])

	rr = send("{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
