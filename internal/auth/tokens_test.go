package auth

import (
	"errors"
	"testing"
	"time"

	"clipstream/internal/models"
)

func newTestIssuer(t *testing.T, opts ...TokenOption) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
	}, opts...)
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	return issuer
}

func TestNewTokenIssuerRequiresSecrets(t *testing.T) {
	if _, err := NewTokenIssuer(TokenConfig{RefreshSecret: []byte("x")}); err == nil {
		t.Fatal("expected error for missing access secret")
	}
	if _, err := NewTokenIssuer(TokenConfig{AccessSecret: []byte("x")}); err == nil {
		t.Fatal("expected error for missing refresh secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)
	user := models.User{
		ID:       "user-1",
		Email:    "amy@example.com",
		Username: "amy",
		FullName: "Amy Example",
	}
	token, expiresAt, err := issuer.IssueAccess(user)
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("access token already expired at issuance")
	}

	claims, err := issuer.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess returned error: %v", err)
	}
	if claims.UserID != user.ID || claims.Email != user.Email || claims.Username != user.Username || claims.FullName != user.FullName {
		t.Fatalf("claims do not match user: %+v", claims)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)
	token, _, err := issuer.IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("IssueRefresh returned error: %v", err)
	}
	claims, err := issuer.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh returned error: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected user id %q", claims.UserID)
	}
}

func TestVerifyRejectsCrossFamilyTokens(t *testing.T) {
	issuer := newTestIssuer(t)
	access, _, err := issuer.IssueAccess(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}
	if _, err := issuer.VerifyRefresh(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token on refresh path, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	issuer := newTestIssuer(t, WithTokenClock(func() time.Time { return past }))
	token, _, err := issuer.IssueAccess(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("IssueAccess returned error: %v", err)
	}

	verifier := newTestIssuer(t)
	if _, err := verifier.VerifyAccess(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := newTestIssuer(t)
	if _, err := issuer.VerifyAccess("not-a-jwt"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

func TestParseExpiry(t *testing.T) {
	cases := []struct {
		input string
		want  time.Duration
		ok    bool
	}{
		{"15m", 15 * time.Minute, true},
		{"12h", 12 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"10d", 240 * time.Hour, true},
		{"", 0, false},
		{"soon", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseExpiry(tc.input)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseExpiry(%q) = %v, %v; want %v", tc.input, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseExpiry(%q) accepted invalid input", tc.input)
		}
	}
}
