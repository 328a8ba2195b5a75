package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeblack/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(CORSConfig{Enabled: true, AllowedOrigins: []string{"http://arena.local"}, MaxAgeSeconds: 600}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"no origin", http.MethodGet, "", http.StatusOK, ""},
		{"allowed", http.MethodGet, "http://arena.local", http.StatusOK, "http://arena.local"},
		{"preflight", http.MethodOptions, "http://arena.local", http.StatusNoContent, "http://arena.local"},
		{"foreign preflight", http.MethodOptions, "http://evil.local", http.StatusForbidden, ""},
		{"foreign simple", http.MethodGet, "http://evil.local", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Fatalf("allow origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestRateLimiterPerCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(RateLimitConfig{PerSecond: 0.001, Burst: 2})
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-User"); u != "" {
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), contextkey.Username, u))
		}
		c.Next()
	})
	r.POST("/submit", limiter.Middleware("submit"), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	if send("alice") != http.StatusOK || send("alice") != http.StatusOK {
		t.Fatal("burst should be allowed")
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Fatalf("other caller status = %d, want 200", code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	if NewRateLimiter(RateLimitConfig{}) != nil {
		t.Fatal("zero config should disable limiting")
	}
	var l *RateLimiter
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", l.Middleware("x"), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("nil limiter status = %d", w.Code)
	}
}
