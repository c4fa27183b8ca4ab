package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"flowtrack/backend/internal/apperrors"
	"flowtrack/backend/internal/middleware"
	"flowtrack/backend/internal/models"
	"flowtrack/backend/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	tokens map[string]policy.Principal
}

func (s stubParser) ParseAccessToken(token string) (policy.Principal, error) {
	p, ok := s.tokens[token]
	if !ok {
		return policy.Principal{}, apperrors.Authentication("invalid token")
	}
	return p, nil
}

func newAuthRouter(parser middleware.TokenParser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.Authenticate(parser))
	router.GET("/protected", func(c *gin.Context) {
		p, ok := middleware.PrincipalFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.ID.String(), "role": p.Role})
	})
	return router
}

func TestAuthenticate(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	parser := stubParser{tokens: map[string]policy.Principal{
		"good": {ID: userID, Role: models.RoleMember},
	}}
	router := newAuthRouter(parser)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), `"error":"authentication"`)
			} else {
				assert.Contains(t, w.Body.String(), userID.String())
			}
		})
	}
}

func TestPrincipalFrom_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := middleware.PrincipalFrom(c)
	require.False(t, ok)
}
