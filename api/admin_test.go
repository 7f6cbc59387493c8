package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"biomech/adminauth"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func adminLoginRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewAdminHandler()
	r.POST("/admin/login", handler.AdminLogin)
	return r
}

func adminUserRows(password, status string, isAdmin bool) *sqlmock.Rows {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return sqlmock.NewRows([]string{"id", "username", "password", "status", "is_admin"}).
		AddRow(1, "coach01", string(hash), status, isAdmin)
}

func TestAdminHandler_AdminLogin(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `users`").
		WillReturnRows(adminUserRows("admin123", "active", true))

	r := adminLoginRouter()
	body := bytes.NewBufferString(`{"username":"coach01","password":"admin123"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/login", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])

	// admin_user_id 必须是签名后的值，且能验签还原出用户 ID
	var signed string
	for _, c := range w.Result().Cookies() {
		if c.Name == "admin_user_id" {
			signed = c.Value
			assert.True(t, c.HttpOnly)
		}
	}
	require.NotEmpty(t, signed)
	value, err := adminauth.VerifyCookieValue(signed)
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminHandler_AdminLogin_WrongPassword(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `users`").
		WillReturnRows(adminUserRows("admin123", "active", true))

	r := adminLoginRouter()
	body := bytes.NewBufferString(`{"username":"coach01","password":"wrong"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/login", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminHandler_AdminLogin_LockedAccount(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `users`").
		WillReturnRows(adminUserRows("admin123", "locked", true))

	r := adminLoginRouter()
	body := bytes.NewBufferString(`{"username":"coach01","password":"admin123"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/login", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "锁定")
}

func TestAdminHandler_GrantFitPoints(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// 正数发放同步累加 lifetime
	mock.ExpectExec("UPDATE `users` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `fitpoints_balance` FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"fitpoints_balance"}).AddRow(150))
	mock.ExpectExec("INSERT INTO `fitpoint_transactions`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewAdminHandler()
	r.POST("/admin/users/:id/fitpoints", handler.GrantFitPoints)

	body := bytes.NewBufferString(`{"amount":100,"reason":"活动奖励"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/users/1/fitpoints", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(150), data["balance_after"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminHandler_GrantFitPoints_InsufficientBalance(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	// 扣减超过余额时条件更新不命中
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewAdminHandler()
	r.POST("/admin/users/:id/fitpoints", handler.GrantFitPoints)

	body := bytes.NewBufferString(`{"amount":-500,"reason":"误发回收"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/users/1/fitpoints", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
