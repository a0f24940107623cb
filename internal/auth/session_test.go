package auth

import (
	"errors"
	"testing"

	"clipstream/internal/models"
	"clipstream/internal/storage"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage("")
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	return NewSessionManager(store, newTestIssuer(t)), store
}

func registerTestUser(t *testing.T, manager *SessionManager) models.User {
	t.Helper()
	user, err := manager.Register(RegisterParams{
		Username: "Amy",
		Email:    "amy@example.com",
		Password: "p4ssw0rd!",
		FullName: "Amy Example",
		Avatar:   "/media/avatars/amy.png",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return user
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	manager, store := newTestSessionManager(t)
	user := registerTestUser(t, manager)

	if user.Username != "amy" {
		t.Fatalf("username not lowercased: %q", user.Username)
	}
	stored, ok := store.GetUser(user.ID)
	if !ok {
		t.Fatal("user not persisted")
	}
	if stored.PasswordHash == "p4ssw0rd!" {
		t.Fatal("password stored in plaintext")
	}
	if err := VerifyPassword(stored.PasswordHash, "p4ssw0rd!"); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	manager, _ := newTestSessionManager(t)

	cases := []RegisterParams{
		{Username: "", Email: "a@b.c", Password: "p", FullName: "A", Avatar: "ref"},
		{Username: "a", Email: "   ", Password: "p", FullName: "A", Avatar: "ref"},
		{Username: "a", Email: "a@b.c", Password: "p", FullName: "A", Avatar: ""},
	}
	for i, params := range cases {
		if _, err := manager.Register(params); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	registerTestUser(t, manager)

	_, err := manager.Register(RegisterParams{
		Username: "amy",
		Email:    "other@example.com",
		Password: "p4ssw0rd!",
		FullName: "Other",
		Avatar:   "ref",
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	_, err = manager.Register(RegisterParams{
		Username: "other",
		Email:    "AMY@example.com",
		Password: "p4ssw0rd!",
		FullName: "Other",
		Avatar:   "ref",
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestLoginIssuesMatchingClaims(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	registered := registerTestUser(t, manager)

	user, pair, err := manager.Login("amy", "p4ssw0rd!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("login returned wrong user: %q", user.ID)
	}
	claims, err := manager.Issuer().VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.UserID != registered.ID {
		t.Fatalf("access claims carry wrong id: %q", claims.UserID)
	}
}

func TestLoginByEmail(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	registerTestUser(t, manager)

	if _, _, err := manager.Login("amy@example.com", "p4ssw0rd!"); err != nil {
		t.Fatalf("Login by email returned error: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	registerTestUser(t, manager)

	if _, _, err := manager.Login("", "p4ssw0rd!"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing identifier, got %v", err)
	}
	if _, _, err := manager.Login("nobody", "p4ssw0rd!"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, _, err := manager.Login("amy", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	registerTestUser(t, manager)
	_, pair, err := manager.Login("amy", "p4ssw0rd!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	_, rotated, err := manager.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh did not rotate the refresh token")
	}

	// The superseded token must be rejected once rotation succeeds.
	if _, _, err := manager.Refresh(pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for superseded token, got %v", err)
	}

	if _, _, err := manager.Refresh(rotated.RefreshToken); err != nil {
		t.Fatalf("latest refresh token rejected: %v", err)
	}
}

func TestLogoutInvalidatesRefresh(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	user := registerTestUser(t, manager)
	_, pair, err := manager.Login("amy", "p4ssw0rd!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if err := manager.Logout(user.ID); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, _, err := manager.Refresh(pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after logout, got %v", err)
	}
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	registerTestUser(t, manager)

	if _, _, err := manager.Refresh(""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for empty token, got %v", err)
	}
	if _, _, err := manager.Refresh("garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for garbage token, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	user := registerTestUser(t, manager)

	if err := manager.ChangePassword(user.ID, "wrong", "newpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong old password, got %v", err)
	}
	if err := manager.ChangePassword(user.ID, "p4ssw0rd!", "newpass"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, _, err := manager.Login("amy", "p4ssw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted after change, got %v", err)
	}
	if _, _, err := manager.Login("amy", "newpass"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestAuthenticateAccessToken(t *testing.T) {
	manager, _ := newTestSessionManager(t)
	registered := registerTestUser(t, manager)
	_, pair, err := manager.Login("amy", "p4ssw0rd!")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	user, err := manager.AuthenticateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateAccessToken returned error: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("authenticated wrong user: %q", user.ID)
	}

	for _, token := range []string{"", "garbage", pair.RefreshToken} {
		if _, err := manager.AuthenticateAccessToken(token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated for token %q, got %v", token, err)
		}
	}
}
