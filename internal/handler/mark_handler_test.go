package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
)

func TestMarkHandlerStudentProgressRequiresEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMarkHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/groups/g1/student_progress/", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "g1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.StudentProgress(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkHandlerUpsertWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMarkHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/lessons/l1/marks/", nil)
	c.Request = req

	handler.UpsertMark(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
