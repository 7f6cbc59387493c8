package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"biomech/database"
	"biomech/models"
	"biomech/service"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAdminIDMiddleware(adminID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("adminUserID", adminID)
		c.Next()
	}
}

func newReviewHandler() *ReviewHandler {
	return NewReviewHandler(service.NewReviewService(database.DB, nil))
}

func reviewableRows(id uint, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "movement_pattern", "media_ref", "status", "ai_report", "created_at", "updated_at", "deleted_at"}).
		AddRow(id, 1, "squat", "/videos/s.mp4", status, `{"score":7.5}`, time.Now(), time.Now(), nil)
}

func TestReviewHandler_Approve(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(reviewableRows(5, models.AnalysisStatusAIAnalyzed))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `analyses` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `review_decisions`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(reviewableRows(5, models.AnalysisStatusApproved))
	mock.ExpectCommit()

	router := gin.New()
	router.Use(setAdminIDMiddleware(2))
	router.POST("/review/:id/approve", newReviewHandler().ApproveAnalysis)

	body := `{"notes":"判读准确"}`
	req := httptest.NewRequest("POST", "/review/5/approve", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "已发布", resp["message"])
	require.NoError(t, mock.ExpectationsWereMet())
}

// 并发审核时后到的一方收到 409 而不是覆盖先到的决定
func TestReviewHandler_Approve_Conflict(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(reviewableRows(5, models.AnalysisStatusRejected))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `analyses` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(reviewableRows(5, models.AnalysisStatusRejected))
	mock.ExpectRollback()

	router := gin.New()
	router.Use(setAdminIDMiddleware(2))
	router.POST("/review/:id/approve", newReviewHandler().ApproveAnalysis)

	req := httptest.NewRequest("POST", "/review/5/approve", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 409, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
}

func TestReviewHandler_Reject_RequiresReason(t *testing.T) {
	_, cleanup := setupMockDB(t)
	defer cleanup()

	router := gin.New()
	router.Use(setAdminIDMiddleware(2))
	router.POST("/review/:id/reject", newReviewHandler().RejectAnalysis)

	req := httptest.NewRequest("POST", "/review/5/reject", bytes.NewBufferString(`{"notes":"无原因"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
}

func TestReviewHandler_ListReviewQueue(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `analyses`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT .* FROM `analyses`").
		WillReturnRows(reviewableRows(5, models.AnalysisStatusAIAnalyzed).
			AddRow(6, 1, "deadlift", "/videos/d.mp4", models.AnalysisStatusPendingReview, "{}", time.Now(), time.Now(), nil))

	router := gin.New()
	router.Use(setAdminIDMiddleware(2))
	router.GET("/review/queue", newReviewHandler().ListReviewQueue)

	req := httptest.NewRequest("GET", "/review/queue", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total"])
	assert.Len(t, data["list"].([]interface{}), 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewHandler_ListReviewQueue_StatusFilter(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `analyses` WHERE status = \\?").
		WithArgs(models.AnalysisStatusError).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .* FROM `analyses` WHERE status = \\?").
		WithArgs(models.AnalysisStatusError).
		WillReturnRows(reviewableRows(9, models.AnalysisStatusError))

	router := gin.New()
	router.Use(setAdminIDMiddleware(2))
	router.GET("/review/queue", newReviewHandler().ListReviewQueue)

	req := httptest.NewRequest("GET", "/review/queue?status=error", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])
	list := data["list"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, models.AnalysisStatusError, list[0].(map[string]interface{})["status"])
	require.NoError(t, mock.ExpectationsWereMet())
}
