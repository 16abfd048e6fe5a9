package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identity struct {
	CallerID  string      `json:"caller_id"`
	Tier      config.Tier `json:"tier"`
	Anonymous bool        `json:"anonymous"`
}

func newRouter(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	handlers := append([]gin.HandlerFunc{IdentityMiddleware()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, identity{
			CallerID:  CallerID(c),
			Tier:      CallerTier(c),
			Anonymous: c.GetBool(ContextAnonymous),
		})
	})
	r.GET("/whoami", handlers...)

	return r
}

func whoami(t *testing.T, r *gin.Engine, headers map[string]string) (*httptest.ResponseRecorder, identity) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.RemoteAddr = "198.51.100.4:5000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var id identity
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &id))
	}

	return w, id
}

func TestIdentityMiddleware_Token(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	token, err := GenerateJWT("user-42", "a@example.com", "pro")
	require.NoError(t, err)

	w, id := whoami(t, newRouter(), map[string]string{"Authorization": "Bearer " + token})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", id.CallerID)
	assert.Equal(t, config.TierPro, id.Tier)
	assert.False(t, id.Anonymous)
}

func TestIdentityMiddleware_UnknownTierClaimIsFree(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	token, err := GenerateJWT("user-42", "a@example.com", "platinum")
	require.NoError(t, err)

	_, id := whoami(t, newRouter(), map[string]string{"Authorization": "Bearer " + token})

	assert.Equal(t, config.TierFree, id.Tier)
}

func TestIdentityMiddleware_ClientHeader(t *testing.T) {
	_, id := whoami(t, newRouter(), map[string]string{ClientIDHeader: "laptop-7"})

	assert.Equal(t, "client:laptop-7", id.CallerID)
	assert.Equal(t, config.TierFree, id.Tier)
	assert.True(t, id.Anonymous)
}

func TestIdentityMiddleware_FallsBackToAddress(t *testing.T) {
	_, id := whoami(t, newRouter(), nil)

	assert.Equal(t, "ip:198.51.100.4", id.CallerID)
	assert.Equal(t, config.TierFree, id.Tier)
}

func TestIdentityMiddleware_BadTokenRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	tests := []string{"Bearer not-a-token", "Basic abc", "Bearer"}

	for _, header := range tests {
		w, _ := whoami(t, newRouter(), map[string]string{"Authorization": header})
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRequireAuth(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	r := newRouter(RequireAuth())

	w, _ := whoami(t, r, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := GenerateJWT("user-1", "", "free")
	require.NoError(t, err)

	w, _ = whoami(t, r, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIdentityMiddleware_AttachesRequestLogger(t *testing.T) {
	var scoped bool

	r := newRouter(func(c *gin.Context) {
		scoped = logger.FromContext(c.Request.Context()) != logger.Default()
	})

	w, _ := whoami(t, r, map[string]string{ClientIDHeader: "laptop-7"})

	assert.True(t, scoped)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}
