package api

import (
	"log/slog"
	"net/http"

	"clipstream/internal/auth"
	"clipstream/internal/media"
	"clipstream/internal/storage"
)

const defaultMaxUploadBytes = 32 << 20

// Handler wires the HTTP surface to the session manager, repository, and
// media store.
type Handler struct {
	Store          storage.Repository
	Sessions       *auth.SessionManager
	Media          media.Store
	Logger         *slog.Logger
	CookiePolicy   CookiePolicy
	MaxUploadBytes int64
}

// NewHandler constructs a Handler with defaults applied.
func NewHandler(store storage.Repository, sessions *auth.SessionManager, mediaStore media.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:          store,
		Sessions:       sessions,
		Media:          mediaStore,
		Logger:         logger,
		CookiePolicy:   DefaultCookiePolicy(),
		MaxUploadBytes: defaultMaxUploadBytes,
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

// Routes builds the versioned API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/users/register", h.handleRegister)
	mux.HandleFunc("POST /api/v1/users/login", h.handleLogin)
	mux.HandleFunc("POST /api/v1/users/logout", h.requireAuth(h.handleLogout))
	mux.HandleFunc("POST /api/v1/users/refresh-token", h.handleRefreshToken)
	mux.HandleFunc("POST /api/v1/users/change-password", h.requireAuth(h.handleChangePassword))
	mux.HandleFunc("PATCH /api/v1/users/update-account", h.requireAuth(h.handleUpdateAccount))
	mux.HandleFunc("PATCH /api/v1/users/update-avatar", h.requireAuth(h.handleUpdateAvatar))
	mux.HandleFunc("PATCH /api/v1/users/update-coverImage", h.requireAuth(h.handleUpdateCoverImage))
	mux.HandleFunc("GET /api/v1/users/current-user", h.requireAuth(h.handleCurrentUser))
	mux.HandleFunc("GET /api/v1/users/c/{username}", h.requireAuth(h.handleChannelProfile))
	mux.HandleFunc("GET /api/v1/users/watch-history", h.requireAuth(h.handleWatchHistory))

	mux.HandleFunc("POST /api/v1/playlists", h.requireAuth(h.handleCreatePlaylist))
	mux.HandleFunc("GET /api/v1/playlists/{name}", h.requireAuth(h.handleGetPlaylist))
	mux.HandleFunc("POST /api/v1/playlists/{name}/videos", h.requireAuth(h.handleAddPlaylistVideo))

	mux.HandleFunc("GET /healthz", h.handleHealth)

	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeFailure(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeSuccess(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}
