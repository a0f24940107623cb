package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"clipstream/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformedToken is returned when a token cannot be parsed at all.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is returned when a token is outside its validity window.
	ErrExpiredToken = errors.New("expired token")
	// ErrInvalidToken is returned for signature mismatches and any other
	// verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	defaultAccessTokenTTL  = 24 * time.Hour
	defaultRefreshTokenTTL = 10 * 24 * time.Hour
)

// AccessClaims carries the identity payload of an access token.
type AccessClaims struct {
	UserID   string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the user identity; everything else about a
// refresh token lives in the stored authoritative copy.
type RefreshClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenConfig holds the signing material for both token families. The two
// secrets are independent so a leaked access token cannot forge a refresh
// token and vice versa.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenOption configures a TokenIssuer instance.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the time source, primarily for tests.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(i *TokenIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// TokenIssuer signs and verifies the HS256 access/refresh token pair.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer validates the signing configuration and applies TTL defaults.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access token secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}
	issuer := &TokenIssuer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer, nil
}

// IssueAccess signs a short-lived token carrying the user's identity claims.
func (i *TokenIssuer) IssueAccess(user models.User) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.cfg.AccessTTL)
	claims := AccessClaims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expiresAt, nil
}

// IssueRefresh signs a long-lived token carrying only the user ID.
func (i *TokenIssuer) IssueRefresh(userID string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.cfg.RefreshTTL)
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyAccess validates an access token and returns its claims.
func (i *TokenIssuer) VerifyAccess(token string) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := i.verify(token, &claims, i.cfg.AccessSecret); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims. Matching
// against the stored authoritative copy is the session manager's job.
func (i *TokenIssuer) VerifyRefresh(token string) (RefreshClaims, error) {
	claims := RefreshClaims{}
	if err := i.verify(token, &claims, i.cfg.RefreshSecret); err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

func (i *TokenIssuer) verify(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return classifyTokenError(err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrExpiredToken
	default:
		return ErrInvalidToken
	}
}

// ParseExpiry parses a token lifetime such as "15m", "12h", or "10d". The
// day suffix is accepted because deployment configs conventionally use it.
func ParseExpiry(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("empty duration")
	}
	if strings.HasSuffix(trimmed, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", value, err)
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	duration, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", value, err)
	}
	return duration, nil
}
