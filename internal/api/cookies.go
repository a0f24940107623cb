package api

import (
	"net/http"
	"strings"
	"time"

	"clipstream/internal/auth"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type CookieSecureMode int

const (
	CookieSecureAuto CookieSecureMode = iota
	CookieSecureAlways
)

// CookiePolicy controls the attributes of the auth cookies. SecureAuto marks
// cookies secure only when the request arrived over TLS (directly or via a
// trusted proxy header); SecureAlways is for production behind HTTPS.
type CookiePolicy struct {
	SameSite   http.SameSite
	SecureMode CookieSecureMode
}

func DefaultCookiePolicy() CookiePolicy {
	return CookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: CookieSecureAuto,
	}
}

func (p CookiePolicy) secure(r *http.Request) bool {
	if p.SecureMode == CookieSecureAlways {
		return true
	}
	return isSecureRequest(r)
}

func (h *Handler) cookiePolicy() CookiePolicy {
	policy := h.CookiePolicy
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteStrictMode
	}
	return policy
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, token string, expires time.Time, policy CookiePolicy) {
	if token == "" {
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func clearTokenCookie(w http.ResponseWriter, r *http.Request, name string, policy CookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, r *http.Request, pair auth.TokenPair) {
	policy := h.cookiePolicy()
	setTokenCookie(w, r, accessTokenCookie, pair.AccessToken, pair.AccessExpiresAt, policy)
	setTokenCookie(w, r, refreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt, policy)
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	policy := h.cookiePolicy()
	clearTokenCookie(w, r, accessTokenCookie, policy)
	clearTokenCookie(w, r, refreshTokenCookie, policy)
}

// ExtractAccessToken reads the access token from the request, preferring the
// cookie over the Authorization header when both are present.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func extractRefreshToken(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}
	return false
}
