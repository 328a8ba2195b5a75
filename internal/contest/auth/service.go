// Package auth issues and verifies contest bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeblack/internal/contest/state"
	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL = 3 * time.Hour
	tokenTypeAccess = "access"
)

// Account is a configured login.
type Account struct {
	Username     string     `yaml:"username" validate:"required"`
	PasswordHash string     `yaml:"passwordHash" validate:"required"`
	Role         state.Role `yaml:"role" validate:"omitempty,oneof=admin competitor"`
}

// Config holds token and credential settings.
type Config struct {
	Secret   string        `yaml:"jwtSecret" validate:"required"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"tokenTTL"`
	Accounts []Account     `yaml:"accounts" validate:"dive"`
	// CompetitorPasscodeHash lets any unlisted username join as a competitor
	// with a shared passcode. Empty disables open joining.
	CompetitorPasscodeHash string `yaml:"competitorPasscodeHash"`
}

// Identity is the authenticated caller.
type Identity struct {
	Username string     `json:"username"`
	Role     state.Role `json:"role"`
}

// Token is a signed bearer credential.
type Token struct {
	Token     string     `json:"token"`
	Username  string     `json:"username"`
	Role      state.Role `json:"role"`
	ExpiresAt int64      `json:"expiresAt"`
}

type tokenClaims struct {
	Role      state.Role `json:"role"`
	TokenType string     `json:"typ"`
	jwt.RegisteredClaims
}

// Service authenticates logins and tokens.
type Service struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	accounts map[string]Account
	passcode []byte
	now      func() time.Time
}

// NewService validates cfg and builds the service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	accounts := make(map[string]Account, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		name := state.NormalizeUsername(acc.Username)
		if name == "" {
			return nil, fmt.Errorf("account username is required")
		}
		if acc.Role == "" {
			acc.Role = state.RoleCompetitor
		}
		if acc.Role != state.RoleAdmin && acc.Role != state.RoleCompetitor {
			return nil, fmt.Errorf("account %s has unknown role %q", name, acc.Role)
		}
		acc.Username = name
		accounts[name] = acc
	}
	return &Service{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		ttl:      cfg.TokenTTL,
		accounts: accounts,
		passcode: []byte(cfg.CompetitorPasscodeHash),
		now:      time.Now,
	}, nil
}

// Admins returns the configured admin usernames.
func (s *Service) Admins() []string {
	var out []string
	for name, acc := range s.accounts {
		if acc.Role == state.RoleAdmin {
			out = append(out, name)
		}
	}
	return out
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	username = state.NormalizeUsername(username)
	if username == "" {
		return Token{}, appErr.ValidationError("username", "required")
	}
	if password == "" {
		return Token{}, appErr.ValidationError("password", "required")
	}

	role := state.RoleCompetitor
	if acc, ok := s.accounts[username]; ok {
		if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
			logger.Warn(ctx, "login rejected", zap.String("username", username))
			return Token{}, appErr.New(appErr.InvalidCredentials)
		}
		role = acc.Role
	} else {
		if len(s.passcode) == 0 {
			return Token{}, appErr.New(appErr.InvalidCredentials)
		}
		if err := bcrypt.CompareHashAndPassword(s.passcode, []byte(password)); err != nil {
			logger.Warn(ctx, "login rejected", zap.String("username", username))
			return Token{}, appErr.New(appErr.InvalidCredentials)
		}
	}
	token, err := s.Issue(username, role)
	if err != nil {
		return Token{}, err
	}
	logger.Info(ctx, "login succeeded", zap.String("username", username), zap.String("role", string(role)))
	return token, nil
}

// Issue signs a token for username.
func (s *Service) Issue(username string, role state.Role) (Token, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := tokenClaims{
		Role:      role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, appErr.Wrap(err, appErr.TokenGenerationFailed)
	}
	return Token{Token: signed, Username: username, Role: role, ExpiresAt: expires.UnixMilli()}, nil
}

// Authenticate verifies a raw token.
func (s *Service) Authenticate(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, appErr.New(appErr.TokenExpired)
		}
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	if claims.TokenType != tokenTypeAccess || claims.Subject == "" {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	if claims.Role != state.RoleAdmin && claims.Role != state.RoleCompetitor {
		return Identity{}, appErr.New(appErr.InvalidRole)
	}
	return Identity{Username: claims.Subject, Role: claims.Role}, nil
}

// HashPassword returns a bcrypt hash suitable for the accounts config.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", appErr.ValidationError("password", "required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password failed: %w", err)
	}
	return string(hash), nil
}
