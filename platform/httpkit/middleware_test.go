package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type testJWTConfig struct{ secret string }

func (c testJWTConfig) GetAdminJWTSecret() string { return c.secret }

const testSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops",
		"role": role,
		"exp":  exp.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAdminEngine(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/admin", AdminRequired(testJWTConfig{secret: secret}), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextAdminSubjectKey))
	})
	return engine
}

func TestAdminRequired(t *testing.T) {
	valid := signToken(t, testSecret, "admin", time.Now().Add(time.Hour))
	tests := []struct {
		name   string
		secret string
		header string
		status int
	}{
		{name: "disabled without secret", secret: "", header: "Bearer " + valid, status: http.StatusForbidden},
		{name: "missing token", secret: testSecret, header: "", status: http.StatusUnauthorized},
		{name: "wrong signature", secret: testSecret, header: "Bearer " + signToken(t, "ffffffffffffffffffffffffffffffff", "admin", time.Now().Add(time.Hour)), status: http.StatusUnauthorized},
		{name: "expired", secret: testSecret, header: "Bearer " + signToken(t, testSecret, "admin", time.Now().Add(-time.Hour)), status: http.StatusUnauthorized},
		{name: "non admin role", secret: testSecret, header: "Bearer " + signToken(t, testSecret, "viewer", time.Now().Add(time.Hour)), status: http.StatusForbidden},
		{name: "admin", secret: testSecret, header: "Bearer " + valid, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			newAdminEngine(tt.secret).ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestIPRateLimiterBlocksAfterBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewIPRateLimiter(0, 2, nil)
	engine := gin.New()
	engine.GET("/", limiter.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 200,200,429 got %v", codes)
	}
}
