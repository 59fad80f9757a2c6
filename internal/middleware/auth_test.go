package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newGuardedRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/run", RequireSharedSecret("X-Cron-Secret", secret), func(c *gin.Context) {
		c.String(http.StatusOK, "ran")
	})
	return r
}

func TestRequireSharedSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		headers  map[string]string
		expected int
	}{
		{"header match", "s3cret", map[string]string{"X-Cron-Secret": "s3cret"}, http.StatusOK},
		{"bearer match", "s3cret", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"bearer lowercase scheme", "s3cret", map[string]string{"Authorization": "bearer s3cret"}, http.StatusOK},
		{"missing", "s3cret", nil, http.StatusUnauthorized},
		{"wrong", "s3cret", map[string]string{"X-Cron-Secret": "guess"}, http.StatusUnauthorized},
		{"prefix only", "s3cret", map[string]string{"X-Cron-Secret": "s3c"}, http.StatusUnauthorized},
		{"unconfigured secret", "", map[string]string{"X-Cron-Secret": ""}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newGuardedRouter(tt.secret)
			req := httptest.NewRequest(http.MethodPost, "/run", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)
			if tt.expected == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
				assert.NotContains(t, w.Body.String(), "ran")
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken("Bear"))
	assert.Equal(t, "", bearerToken(""))
}
