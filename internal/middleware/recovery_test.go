package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"flowtrack/backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRecoveryRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.RecoveryWithLog())
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return router
}

func TestRecoveryWithLog_NoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	newRecoveryRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecoveryWithLog_WithPanic(t *testing.T) {
	w := httptest.NewRecorder()
	newRecoveryRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, `{"error":"internal server error"}`, w.Body.String())
}
