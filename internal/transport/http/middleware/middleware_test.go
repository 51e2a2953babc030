package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-assistant/internal/logger"
	"transcript-assistant/internal/pkg/jwtutil"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), AccessLog(logger.Nop()), Recovery(logger.Nop()))
	r.GET("/me", AuthJWT("secret"), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "username": c.GetString(ContextUsernameKey)})
	})
	return r
}

func TestAuthJWT(t *testing.T) {
	r := newEngine()
	valid, err := jwtutil.GenerateToken("secret", time.Hour, 5, "dana")
	require.NoError(t, err)
	expired, err := jwtutil.GenerateToken("secret", -time.Minute, 5, "dana")
	require.NoError(t, err)
	foreign, err := jwtutil.GenerateToken("other", time.Hour, 5, "dana")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":5,"username":"dana"}`, w.Body.String())
			}
		})
	}
}

func TestRequestIDReplacesOversizedHeader(t *testing.T) {
	r := newEngine()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 100))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	id := w.Header().Get(HeaderRequestID)
	assert.Len(t, id, 36)
}
