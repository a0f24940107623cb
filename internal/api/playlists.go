package api

import (
	"net/http"

	"clipstream/internal/storage"
)

type createPlaylistRequest struct {
	Name   string   `json:"name"`
	Videos []string `json:"videos,omitempty"`
}

type addPlaylistVideoRequest struct {
	VideoID string `json:"videoId"`
}

func (h *Handler) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req createPlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeFailure(w, http.StatusBadRequest, "playlist name is required")
		return
	}
	for _, videoID := range req.Videos {
		if videoID == "" {
			writeFailure(w, http.StatusBadRequest, "empty video reference")
			return
		}
	}
	playlist, err := h.Store.CreatePlaylist(storage.CreatePlaylistParams{
		Name:     req.Name,
		OwnerID:  user.ID,
		VideoIDs: req.Videos,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "playlist created successfully", playlist)
}

func (h *Handler) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeFailure(w, http.StatusBadRequest, "playlist name is required")
		return
	}
	view, err := h.Store.PlaylistView(name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "playlist fetched successfully", view)
}

func (h *Handler) handleAddPlaylistVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if name == "" {
		writeFailure(w, http.StatusBadRequest, "playlist name is required")
		return
	}
	var req addPlaylistVideoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VideoID == "" {
		writeFailure(w, http.StatusBadRequest, "video id is required")
		return
	}

	playlist, ok := h.Store.GetPlaylistByName(name)
	if !ok {
		writeFailure(w, http.StatusNotFound, "playlist not found")
		return
	}
	if _, ok := h.Store.GetVideo(req.VideoID); !ok {
		writeFailure(w, http.StatusNotFound, "video not found")
		return
	}
	if playlist.OwnerID != user.ID {
		writeFailure(w, http.StatusForbidden, "forbidden")
		return
	}

	updated, err := h.Store.AddPlaylistVideo(name, req.VideoID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "video added to playlist successfully", updated)
}
