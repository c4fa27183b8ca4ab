package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowtrack/backend/internal/config"
	"flowtrack/backend/internal/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

type AppTestSuite struct {
	suite.Suite
	mr  *miniredis.Miniredis
	app *App
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			AppName:        "FlowTrack API",
			Host:           "127.0.0.1",
			Port:           "0",
			ReadTimeout:    time.Second,
			WriteTimeout:   time.Second,
			IdleTimeout:    time.Second,
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Worker: config.WorkerConfig{
			Concurrency:  1,
			PollInterval: 10 * time.Millisecond,
			ReminderLead: time.Hour,
		},
		Auth: config.AuthConfig{
			JWTSecret:       "app-secret",
			Issuer:          "flowtrack-test",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: time.Hour,
			BCryptCost:      bcrypt.MinCost,
			AdminName:       "Root",
			AdminEmail:      "root@example.com",
			AdminPassword:   "rootpassword",
		},
		RateLimit: config.RateLimitConfig{
			Enabled:         true,
			RequestsPerMin:  60,
			BurstSize:       3,
			CleanupInterval: time.Minute,
		},
		Realtime: config.RealtimeConfig{
			PollTimeout:  50 * time.Millisecond,
			PollInterval: 5 * time.Millisecond,
			WriteTimeout: time.Second,
		},
	}
}

func (suite *AppTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.mr = miniredis.RunT(suite.T())

	pool, err := database.Open(sqlite.Open(":memory:"), &database.PoolConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     logger.Silent,
	})
	suite.Require().NoError(err)
	suite.Require().NoError(database.Migrate(pool.DB))

	client := redis.NewClient(&redis.Options{Addr: suite.mr.Addr()})
	a, err := Build(testConfig(), pool, client)
	suite.Require().NoError(err)
	suite.app = a
}

func (suite *AppTestSuite) TearDownTest() {
	suite.NoError(suite.app.Close())
}

func (suite *AppTestSuite) do(method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	suite.app.Router().ServeHTTP(w, req)
	return w
}

func (suite *AppTestSuite) TestProbes() {
	w := suite.do(http.MethodGet, "/live", nil, nil)
	suite.Equal(http.StatusOK, w.Code)

	w = suite.do(http.MethodGet, "/ready", nil, nil)
	suite.Equal(http.StatusOK, w.Code)

	w = suite.do(http.MethodGet, "/health", nil, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Status string `json:"status"`
		App    string `json:"app"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	suite.Equal("healthy", body.Status)
	suite.Equal("FlowTrack API", body.App)
	suite.Equal("healthy", body.Checks["database"].Status)
	suite.Equal("healthy", body.Checks["redis"].Status)
}

func (suite *AppTestSuite) TestHealthReportsRedisOutage() {
	suite.mr.Close()

	w := suite.do(http.MethodGet, "/health", nil, nil)
	suite.Equal(http.StatusServiceUnavailable, w.Code)
	w = suite.do(http.MethodGet, "/ready", nil, nil)
	suite.Equal(http.StatusServiceUnavailable, w.Code)
}

func (suite *AppTestSuite) TestMetricsEndpoint() {
	suite.do(http.MethodGet, "/live", nil, nil)

	w := suite.do(http.MethodGet, "/metrics", nil, nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), "flowtrack_http_requests_total")
}

func (suite *AppTestSuite) TestBootstrapAdminCanLogIn() {
	w := suite.do(http.MethodPost, "/api/v1/auth/login", gin.H{"email": "root@example.com", "password": "rootpassword"}, nil)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var res struct {
		AccessToken string `json:"access_token"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))

	w = suite.do(http.MethodGet, "/api/v1/users/me", nil, http.Header{"Authorization": {"Bearer " + res.AccessToken}})
	suite.Require().Equal(http.StatusOK, w.Code)
	var me struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &me))
	suite.Equal("Root", me.Name)
	suite.Equal("admin", me.Role)
}

func (suite *AppTestSuite) TestCORSPreflight() {
	w := suite.do(http.MethodOptions, "/api/v1/projects", nil, http.Header{
		"Origin":                        {"http://localhost:3000"},
		"Access-Control-Request-Method": {"POST"},
	})
	suite.Equal(http.StatusNoContent, w.Code)
	suite.Equal("http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	suite.Equal("true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = suite.do(http.MethodOptions, "/api/v1/projects", nil, http.Header{
		"Origin":                        {"http://evil.example.com"},
		"Access-Control-Request-Method": {"POST"},
	})
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Empty(w.Header().Get("Access-Control-Allow-Origin"))
}

func (suite *AppTestSuite) TestRateLimitAppliesToAPI() {
	creds := gin.H{"email": "root@example.com", "password": "wrong-password"}
	for i := 0; i < 3; i++ {
		w := suite.do(http.MethodPost, "/api/v1/auth/login", creds, nil)
		suite.Equal(http.StatusUnauthorized, w.Code)
	}
	w := suite.do(http.MethodPost, "/api/v1/auth/login", creds, nil)
	suite.Equal(http.StatusTooManyRequests, w.Code)
	suite.Equal("60", w.Header().Get("Retry-After"))

	// Probes are outside the limited group.
	w = suite.do(http.MethodGet, "/live", nil, nil)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *AppTestSuite) TestUnknownRoute() {
	w := suite.do(http.MethodGet, "/nope", nil, nil)
	suite.Equal(http.StatusNotFound, w.Code)
	suite.JSONEq(`{"error":"not_found","message":"route not found"}`, w.Body.String())
}

func (suite *AppTestSuite) TestRunStopsWhenContextEnds() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- suite.app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		suite.NoError(err)
	case <-time.After(5 * time.Second):
		suite.Fail("Run did not return after cancellation")
	}
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}
