package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"messaging_backend/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(tokens *auth.TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	r.GET("/admin", AuthMiddleware(tokens), RequireStaff(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	r := newRouter(tokens)

	token, _, err := tokens.GenerateToken("user-1", "guest", false)
	require.NoError(t, err)

	rec := serve(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(r, "/me?token="+token, "")
	assert.Equal(t, http.StatusOK, rec.Code, "websocket clients pass the token as a query parameter")

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "Basic abc").Code)

	other := auth.NewTokenManager("other-secret", time.Hour)
	forged, _, err := other.GenerateToken("user-1", "admin", true)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "Bearer "+forged).Code)
}

func TestRequireStaff(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour)
	r := newRouter(tokens)

	guest, _, err := tokens.GenerateToken("g", "guest", false)
	require.NoError(t, err)
	staff, _, err := tokens.GenerateToken("s", "admin", true)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, serve(r, "/admin", "Bearer "+guest).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/admin", "Bearer "+staff).Code)
}
