package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"biomech/config"
	"biomech/database"
	"biomech/models"
	"biomech/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setUserIDMiddleware(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func newAnalysisHandler() *AnalysisHandler {
	gate := service.NewGate(database.DB, &config.CostsConfig{DefaultFP: 25})
	review := service.NewReviewService(database.DB, nil)
	return NewAnalysisHandler(gate, review, service.BuiltinTemplates())
}

func mockAnalysisRows(id uint, userID uint, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "movement_pattern", "media_ref", "status", "fp_cost", "ai_result", "ai_report", "view_count", "created_at", "updated_at", "deleted_at"}).
		AddRow(id, userID, "squat", "/videos/s.mp4", status, 25, `{"score":7}`, `{"narrative":"x"}`, 0, time.Now(), time.Now(), nil)
}

func TestAnalysisHandler_GetQuote(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "subscription_tier", "subscription_status", "fitpoints_balance"}).
			AddRow(1, "lifter01", models.TierFree, models.SubscriptionExpired, 10))

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.GET("/analyses/quote", newAnalysisHandler().GetQuote)

	req := httptest.NewRequest("GET", "/analyses/quote?pattern=squat", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	d := resp.Data.(map[string]interface{})
	assert.Equal(t, false, d["allowed"])
	assert.Equal(t, float64(25), d["cost"])
	assert.Equal(t, "balance-insufficient", d["reason"])
	assert.Equal(t, float64(15), d["shortfall"])
}

func TestAnalysisHandler_GetQuote_UnknownPattern(t *testing.T) {
	_, cleanup := setupMockDB(t)
	defer cleanup()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.GET("/analyses/quote", newAnalysisHandler().GetQuote)

	req := httptest.NewRequest("GET", "/analyses/quote?pattern=snatch", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "未知动作模式")
}

func TestAnalysisHandler_Submit(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "subscription_tier", "subscription_status", "fitpoints_balance"}).
			AddRow(1, "lifter01", models.TierFree, models.SubscriptionExpired, 100))
	mock.ExpectExec("INSERT INTO `analyses`").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("UPDATE `users` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `fitpoints_balance` FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"fitpoints_balance"}).AddRow(75))
	mock.ExpectExec("INSERT INTO `fitpoint_transactions`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/analyses", newAnalysisHandler().SubmitAnalysis)

	body := `{"pattern":"squat","media_ref":"/videos/s.mp4","duration_seconds":28.5,"equipment_constraint":"safety_bars"}`
	req := httptest.NewRequest("POST", "/analyses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	d := resp.Data.(map[string]interface{})
	assert.Equal(t, models.AnalysisStatusPendingAI, d["status"])
	assert.Equal(t, float64(25), d["fp_cost"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisHandler_Submit_InsufficientBalance(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "subscription_tier", "subscription_status", "fitpoints_balance"}).
			AddRow(1, "lifter01", models.TierFree, models.SubscriptionExpired, 5))
	mock.ExpectRollback()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/analyses", newAnalysisHandler().SubmitAnalysis)

	body := `{"pattern":"squat","media_ref":"/videos/s.mp4"}`
	req := httptest.NewRequest("POST", "/analyses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 402, w.Code)
	assert.Contains(t, w.Body.String(), "积分余额不足")
}

func TestAnalysisHandler_Submit_InvalidConstraint(t *testing.T) {
	_, cleanup := setupMockDB(t)
	defer cleanup()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/analyses", newAnalysisHandler().SubmitAnalysis)

	body := `{"pattern":"squat","media_ref":"/videos/s.mp4","equipment_constraint":"no_shoes"}`
	req := httptest.NewRequest("POST", "/analyses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "无效的装备限制类型")
}

// 未发布的分析不向用户暴露 AI 原始产出
func TestAnalysisHandler_GetAnalysis_HidesAIOutputBeforePublish(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(mockAnalysisRows(5, 1, models.AnalysisStatusAIAnalyzed))

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.GET("/analyses/:id", newAnalysisHandler().GetAnalysis)

	req := httptest.NewRequest("GET", "/analyses/5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	d := resp.Data.(map[string]interface{})
	assert.Nil(t, d["ai_result"])
	assert.Nil(t, d["ai_report"])
}

func TestAnalysisHandler_GetAnalysis_ApprovedCountsView(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(mockAnalysisRows(5, 1, models.AnalysisStatusApproved))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `analyses` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.GET("/analyses/:id", newAnalysisHandler().GetAnalysis)

	req := httptest.NewRequest("GET", "/analyses/5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	d := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), d["view_count"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisHandler_Vote_NotPublished(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(mockAnalysisRows(5, 1, models.AnalysisStatusAIAnalyzed))

	router := gin.New()
	router.Use(setUserIDMiddleware(9))
	router.POST("/analyses/:id/vote", newAnalysisHandler().VoteAnalysis)

	body := `{"vote_type":"helpful"}`
	req := httptest.NewRequest("POST", "/analyses/5/vote", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 409, w.Code)
	assert.Contains(t, w.Body.String(), "仅已发布的分析可投票")
}

func TestAnalysisHandler_Vote_InvalidType(t *testing.T) {
	_, cleanup := setupMockDB(t)
	defer cleanup()

	router := gin.New()
	router.Use(setUserIDMiddleware(9))
	router.POST("/analyses/:id/vote", newAnalysisHandler().VoteAnalysis)

	body := `{"vote_type":"meh"}`
	req := httptest.NewRequest("POST", "/analyses/5/vote", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
}

func TestAnalysisHandler_ListPatterns(t *testing.T) {
	router := gin.New()
	router.GET("/patterns", newAnalysisHandler().ListPatterns)

	req := httptest.NewRequest("GET", "/patterns", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	list := resp.Data.([]interface{})
	require.Len(t, list, 4)

	first := list[0].(map[string]interface{})
	assert.Equal(t, "bench_press", first["pattern"])
	assert.NotEmpty(t, first["criteria"])
}
