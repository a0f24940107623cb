package api

import (
	"errors"
	"fmt"
	"net/http"

	"clipstream/internal/auth"
	"clipstream/internal/media"
	"clipstream/internal/models"
	"clipstream/internal/storage"
)

type loginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
}

// storeUpload saves a single multipart file field through the media store and
// returns the persisted reference. A missing optional field returns "".
func (h *Handler) storeUpload(r *http.Request, field, prefix string, required bool) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			if required {
				return "", fmt.Errorf("%w: %s file is required", auth.ErrValidation, field)
			}
			return "", nil
		}
		return "", fmt.Errorf("%w: invalid %s upload", auth.ErrValidation, field)
	}
	defer file.Close()

	ref, err := h.Media.Put(r.Context(), media.RandomKey(prefix), header.Header.Get("Content-Type"), file)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", field, err)
	}
	return ref, nil
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
	if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
		writeFailure(w, http.StatusBadRequest, "multipart form is required")
		return
	}

	avatarRef, err := h.storeUpload(r, "avatar", "avatars", true)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	coverRef, err := h.storeUpload(r, "coverImage", "covers", false)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	user, err := h.Sessions.Register(auth.RegisterParams{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		FullName: r.FormValue("fullName"),
		Avatar:   avatarRef,
		Cover:    coverRef,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "user created successfully", user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	user, pair, err := h.Sessions.Login(identifier, req.Password)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.setAuthCookies(w, r, pair)
	writeSuccess(w, http.StatusOK, "logged in successfully", map[string]any{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Logout(user.ID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.clearAuthCookies(w, r)
	writeSuccess(w, http.StatusOK, "logged out successfully", nil)
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	presented := extractRefreshToken(r)
	if presented == "" && r.Body != nil && r.ContentLength != 0 {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid request body")
			return
		}
		presented = req.RefreshToken
	}
	_, pair, err := h.Sessions.Refresh(presented)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.setAuthCookies(w, r, pair)
	writeSuccess(w, http.StatusOK, "tokens refreshed successfully", map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Sessions.ChangePassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "password changed successfully", nil)
}

func (h *Handler) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FullName == "" && req.Email == "" {
		writeFailure(w, http.StatusBadRequest, "at least one field is required")
		return
	}
	updated, err := h.Store.UpdateUserProfile(user.ID, storage.UpdateUserProfileParams{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "account updated successfully", updated)
}

func (h *Handler) handleUpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.handleUpdateMedia(w, r, "avatar", "avatars", h.Store.SetUserAvatar)
}

func (h *Handler) handleUpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.handleUpdateMedia(w, r, "coverImage", "covers", h.Store.SetUserCoverImage)
}

func (h *Handler) handleUpdateMedia(w http.ResponseWriter, r *http.Request, field, prefix string, apply func(id, ref string) (models.User, error)) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
	if err := r.ParseMultipartForm(h.maxUploadBytes()); err != nil {
		writeFailure(w, http.StatusBadRequest, "multipart form is required")
		return
	}
	ref, err := h.storeUpload(r, field, prefix, true)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	updated, err := apply(user.ID, ref)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, field+" updated successfully", updated)
}

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, "current user fetched successfully", user)
}

func (h *Handler) handleChannelProfile(w http.ResponseWriter, r *http.Request) {
	viewer, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	username := r.PathValue("username")
	if username == "" {
		writeFailure(w, http.StatusBadRequest, "username is required")
		return
	}
	profile, err := h.Store.ChannelProfile(username, viewer.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "channel profile fetched successfully", profile)
}

func (h *Handler) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	history, err := h.Store.WatchHistory(user.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "watch history fetched successfully", history)
}
