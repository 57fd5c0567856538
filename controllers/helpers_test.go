package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/sourcemarket/sourcemarket-api/config"
	"github.com/sourcemarket/sourcemarket-api/middleware"
	"github.com/sourcemarket/sourcemarket-api/models"
	"github.com/sourcemarket/sourcemarket-api/realtime"
	"github.com/sourcemarket/sourcemarket-api/services"
	"github.com/sourcemarket/sourcemarket-api/tests/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	broker *realtime.MemoryBroker
	email  *services.MockEmailService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		db:     testutil.NewTestDB(t),
		broker: realtime.NewMemoryBroker(),
		email:  services.NewMockEmailService(),
	}
	config.SetDB(env.db)
	services.Init(services.Dependencies{
		DB:        env.db,
		Broker:    env.broker,
		Email:     env.email,
		Snapshots: services.NewMockSnapshotStore(),
	})
	t.Cleanup(func() {
		services.WaitForNotifications()
		env.broker.Close()
	})
	return env
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// mockAuthMiddleware simulates the Auth0 JWT middleware for testing.
// It sets up the context exactly as the real EnsureValidToken middleware does.
func mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, auth0ID)
		c.Set(middleware.AccessTokenKey, accessToken)
		c.Set(middleware.ClaimsKey, &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: auth0ID},
			CustomClaims:     &middleware.CustomClaims{Role: role},
		})
		c.Next()
	}
}

// apiRouter serves every route as the given user; a nil user is anonymous
// and is turned away by the auth middleware
func apiRouter(user *models.User) *gin.Engine {
	router := setupTestRouter()
	auth := func(c *gin.Context) {
		respondFailure(c, http.StatusUnauthorized, "INVALID_TOKEN", "Failed to validate JWT.", nil)
		c.Abort()
	}
	if user != nil {
		auth = mockAuthMiddleware(user.Auth0ID, user.Role, "token-"+user.ID)
	}
	RegisterRoutes(router.Group("/api"), auth)
	return router
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return w, resp
}

func decodeData(t *testing.T, resp envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
