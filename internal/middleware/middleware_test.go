package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const secret = "test-secret"

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.String(http.StatusOK, Role(c)) })
	r.GET("/", handlers...)
	return r
}

func get(r http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func mustToken(t *testing.T, key, role string, ttl time.Duration) string {
	t.Helper()
	token, err := IssueToken(key, "tester", role, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth(secret), RequireRole(RoleGM))

	tests := []struct {
		name   string
		target string
		token  string
		status int
	}{
		{"missing", "/", "", http.StatusUnauthorized},
		{"garbage", "/", "not-a-token", http.StatusUnauthorized},
		{"wrong secret", "/", mustToken(t, "other", RoleGM, time.Hour), http.StatusUnauthorized},
		{"expired", "/", mustToken(t, secret, RoleGM, -time.Minute), http.StatusUnauthorized},
		{"unknown role", "/", mustToken(t, secret, "admin", time.Hour), http.StatusUnauthorized},
		{"player", "/", mustToken(t, secret, RolePlayer, time.Hour), http.StatusForbidden},
		{"gm", "/", mustToken(t, secret, RoleGM, time.Hour), http.StatusOK},
		{"gm in query", "/?token=" + mustToken(t, secret, RoleGM, 0), "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.target, tt.token)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if tt.status == http.StatusOK && w.Body.String() != RoleGM {
				t.Errorf("role = %q", w.Body.String())
			}
		})
	}
}

func TestIssueTokenExpiry(t *testing.T) {
	const secret = "s3cret"
	tests := []struct {
		name    string
		ttl     time.Duration
		expires bool
		valid   bool
	}{
		{"no expiry", 0, false, true},
		{"future", time.Hour, true, true},
		{"negative", -time.Second, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := IssueToken(secret, "cli", RoleGM, tt.ttl)
			if err != nil {
				t.Fatal(err)
			}
			claims, err := ParseToken(secret, token)
			if (err == nil) != tt.valid {
				t.Fatalf("ParseToken err = %v, want valid %v", err, tt.valid)
			}
			if claims != nil && (claims.ExpiresAt != nil) != tt.expires {
				t.Errorf("ExpiresAt = %v, want set %v", claims.ExpiresAt, tt.expires)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("a") {
		t.Error("third request allowed")
	}
	if !rl.Allow("b") {
		t.Error("other client limited")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("request after the window rejected")
	}

	now = now.Add(2 * time.Minute)
	rl.Prune()
	if len(rl.requests) != 0 {
		t.Errorf("idle clients kept: %v", rl.requests)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newEngine(RateLimit(NewRateLimiter(1, time.Hour)))
	if w := get(r, "/", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w := get(r, "/", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}
