package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeblack/internal/contest/state"
	appErr "codeblack/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return string(hash)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Secret: "test-secret",
		Issuer: "codeblack",
		Accounts: []Account{
			{Username: "Root", PasswordHash: mustHash(t, "rootpw"), Role: state.RoleAdmin},
			{Username: "alice", PasswordHash: mustHash(t, "alicepw")},
		},
		CompetitorPasscodeHash: mustHash(t, "letmein"),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tests := []struct {
		name     string
		user, pw string
		wantRole state.Role
		wantCode appErr.ErrorCode
	}{
		{"admin", "root", "rootpw", state.RoleAdmin, 0},
		{"listed competitor", "ALICE", "alicepw", state.RoleCompetitor, 0},
		{"open join", "bob", "letmein", state.RoleCompetitor, 0},
		{"bad admin password", "root", "letmein", "", appErr.InvalidCredentials},
		{"bad passcode", "bob", "nope", "", appErr.InvalidCredentials},
		{"missing username", "", "x", "", appErr.ValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := svc.Login(ctx, tt.user, tt.pw)
			if tt.wantCode != 0 {
				if !appErr.Is(err, tt.wantCode) {
					t.Fatalf("expected %v, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login failed: %v", err)
			}
			if tok.Role != tt.wantRole {
				t.Fatalf("role = %s, want %s", tok.Role, tt.wantRole)
			}
			id, err := svc.Authenticate(tok.Token)
			if err != nil {
				t.Fatalf("Authenticate failed: %v", err)
			}
			if id.Username != state.NormalizeUsername(tt.user) || id.Role != tt.wantRole {
				t.Fatalf("unexpected identity: %+v", id)
			}
		})
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Authenticate(""); !appErr.Is(err, appErr.TokenInvalid) {
		t.Fatalf("expected TokenInvalid, got %v", err)
	}

	other, _ := NewService(Config{Secret: "other-secret", Issuer: "codeblack"})
	foreign, _ := other.Issue("alice", state.RoleAdmin)
	if _, err := svc.Authenticate(foreign.Token); !appErr.Is(err, appErr.TokenInvalid) {
		t.Fatalf("expected TokenInvalid for foreign signature, got %v", err)
	}

	tok, _ := svc.Issue("alice", state.RoleCompetitor)
	svc.now = func() time.Time { return time.Now().Add(4 * time.Hour) }
	if _, err := svc.Authenticate(tok.Token); !appErr.Is(err, appErr.TokenExpired) {
		t.Fatalf("expected TokenExpired, got %v", err)
	}
}

func TestMiddlewareEnforcesRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)
	r := gin.New()
	r.GET("/admin", Middleware(svc, state.RoleAdmin), func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.String(http.StatusOK, id.Username)
	})

	admin, _ := svc.Issue("root", state.RoleAdmin)
	competitor, _ := svc.Issue("alice", state.RoleCompetitor)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"competitor", "Bearer " + competitor.Token, http.StatusForbidden},
		{"admin", "bearer " + admin.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")) != nil {
		t.Fatal("hash does not verify")
	}
	if _, err := HashPassword(""); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}
