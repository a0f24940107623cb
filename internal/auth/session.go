package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipstream/internal/models"
	"clipstream/internal/storage"
)

var (
	// ErrValidation is returned when a request is missing required fields.
	ErrValidation = errors.New("validation failed")
	// ErrUserNotFound is returned when a login identifier matches no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRefreshToken is returned when a presented refresh token is
	// absent, fails verification, or no longer matches the stored copy. The
	// causes are deliberately indistinguishable to callers.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrUnauthenticated is returned when an access token is missing or
	// fails verification, again without distinguishing the cause.
	ErrUnauthenticated = errors.New("unauthorized request")
)

// TokenPair bundles a freshly issued access/refresh token pair with the
// expiry of each half.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// RegisterParams captures a registration request after the media references
// have been uploaded.
type RegisterParams struct {
	Username string
	Email    string
	Password string
	FullName string
	Avatar   string
	Cover    string
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithSessionLogger attaches a structured logger to the manager.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// SessionManager orchestrates login, logout, and refresh against the
// credential store. The per-user session state is implicit in the User
// record: a stored refresh token means logged in, an absent one logged out.
type SessionManager struct {
	store  storage.Repository
	issuer *TokenIssuer
	logger *slog.Logger
}

// NewSessionManager constructs a SessionManager over the provided store and
// token issuer.
func NewSessionManager(store storage.Repository, issuer *TokenIssuer, opts ...SessionOption) *SessionManager {
	manager := &SessionManager{
		store:  store,
		issuer: issuer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager
}

// Issuer exposes the underlying token issuer.
func (m *SessionManager) Issuer() *TokenIssuer {
	return m.issuer
}

// Register validates the signup fields, hashes the password, and persists the
// new user. The returned record still carries the hash internally but the
// model redacts it from any JSON encoding.
func (m *SessionManager) Register(params RegisterParams) (models.User, error) {
	for _, field := range []string{params.Username, params.Email, params.Password, params.FullName} {
		if strings.TrimSpace(field) == "" {
			return models.User{}, fmt.Errorf("%w: all fields are required", ErrValidation)
		}
	}
	if strings.TrimSpace(params.Avatar) == "" {
		return models.User{}, fmt.Errorf("%w: avatar is required", ErrValidation)
	}
	hashed, err := HashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := m.store.CreateUser(storage.CreateUserParams{
		Username:     params.Username,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: hashed,
		Avatar:       params.Avatar,
		CoverImage:   params.Cover,
	})
	if err != nil {
		return models.User{}, err
	}
	m.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies credentials by username or email and issues a fresh token
// pair, storing the refresh token as the single authoritative copy.
func (m *SessionManager) Login(identifier, password string) (models.User, TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.User{}, TokenPair{}, fmt.Errorf("%w: username or email is required", ErrValidation)
	}
	if password == "" {
		return models.User{}, TokenPair{}, fmt.Errorf("%w: password is required", ErrValidation)
	}
	user, ok := m.store.FindUserByUsername(identifier)
	if !ok {
		user, ok = m.store.FindUserByEmail(identifier)
	}
	if !ok {
		return models.User{}, TokenPair{}, ErrUserNotFound
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return models.User{}, TokenPair{}, err
	}
	pair, err := m.issuePair(user)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	if err := m.store.SetUserRefreshToken(user.ID, pair.RefreshToken); err != nil {
		return models.User{}, TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	user.RefreshToken = pair.RefreshToken
	m.logger.Info("user logged in", "user_id", user.ID)
	return user, pair, nil
}

// Logout clears the stored refresh token, invalidating the refresh chain.
func (m *SessionManager) Logout(userID string) error {
	if err := m.store.SetUserRefreshToken(userID, ""); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	m.logger.Info("user logged out", "user_id", userID)
	return nil
}

// Refresh validates a presented refresh token against both its signature and
// the stored authoritative copy, then rotates the pair. The rotation is a
// compare-and-swap in the store, so a superseded token loses deterministically
// even under concurrent refreshes.
func (m *SessionManager) Refresh(presented string) (models.User, TokenPair, error) {
	if strings.TrimSpace(presented) == "" {
		return models.User{}, TokenPair{}, ErrInvalidRefreshToken
	}
	claims, err := m.issuer.VerifyRefresh(presented)
	if err != nil {
		return models.User{}, TokenPair{}, ErrInvalidRefreshToken
	}
	user, ok := m.store.GetUser(claims.UserID)
	if !ok {
		return models.User{}, TokenPair{}, ErrInvalidRefreshToken
	}
	if user.RefreshToken == "" || user.RefreshToken != presented {
		return models.User{}, TokenPair{}, ErrInvalidRefreshToken
	}
	pair, err := m.issuePair(user)
	if err != nil {
		return models.User{}, TokenPair{}, err
	}
	if err := m.store.RotateUserRefreshToken(user.ID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, storage.ErrRefreshTokenMismatch) {
			return models.User{}, TokenPair{}, ErrInvalidRefreshToken
		}
		return models.User{}, TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	user.RefreshToken = pair.RefreshToken
	m.logger.Info("tokens refreshed", "user_id", user.ID)
	return user, pair, nil
}

// ChangePassword verifies the old password before storing a new hash.
func (m *SessionManager) ChangePassword(userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: new password is required", ErrValidation)
	}
	user, ok := m.store.GetUser(userID)
	if !ok {
		return ErrUserNotFound
	}
	if err := VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrInvalidCredentials
		}
		return err
	}
	hashed, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := m.store.SetUserPassword(userID, hashed); err != nil {
		return fmt.Errorf("persist password: %w", err)
	}
	m.logger.Info("password changed", "user_id", userID)
	return nil
}

// AuthenticateAccessToken verifies an access token and loads its user. Every
// failure mode collapses to ErrUnauthenticated so callers cannot probe which
// check rejected the token.
func (m *SessionManager) AuthenticateAccessToken(token string) (models.User, error) {
	if strings.TrimSpace(token) == "" {
		return models.User{}, ErrUnauthenticated
	}
	claims, err := m.issuer.VerifyAccess(token)
	if err != nil {
		return models.User{}, ErrUnauthenticated
	}
	user, ok := m.store.GetUser(claims.UserID)
	if !ok {
		return models.User{}, ErrUnauthenticated
	}
	return user, nil
}

func (m *SessionManager) issuePair(user models.User) (TokenPair, error) {
	access, accessExpiry, err := m.issuer.IssueAccess(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExpiry, err := m.issuer.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}
