package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipstream/internal/storage"
)

func seedPlaylistFixture(t *testing.T, env *testEnv) (ownerCookie *http.Cookie, videoID string) {
	t.Helper()
	env.register(t, "owner", "owner@example.com", "pw", "Owner")
	login := env.login(t, "owner", "pw")
	if login.Code != http.StatusOK {
		t.Fatalf("login returned %d", login.Code)
	}
	owner, _ := env.store.FindUserByUsername("owner")
	video, err := env.store.CreateVideo(storage.CreateVideoParams{
		Title:     "clip",
		VideoFile: "/media/videos/clip.mp4",
		OwnerID:   owner.ID,
	})
	if err != nil {
		t.Fatalf("CreateVideo returned error: %v", err)
	}
	return findCookie(t, login, "accessToken"), video.ID
}

func createPlaylist(t *testing.T, env *testEnv, cookie *http.Cookie, name string, videoIDs []string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{"name": name, "videos": videoIDs})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/playlists", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	return rec
}

func TestCreatePlaylist(t *testing.T) {
	env := newTestHandler(t)
	cookie, videoID := seedPlaylistFixture(t, env)

	rec := createPlaylist(t, env, cookie, "Favorites", []string{videoID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create playlist returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &created); err != nil {
		t.Fatalf("decode playlist: %v", err)
	}
	if created.Name != "Favorites" {
		t.Fatalf("name = %q, want Favorites", created.Name)
	}
}

func TestCreatePlaylistDuplicateName(t *testing.T) {
	env := newTestHandler(t)
	cookie, _ := seedPlaylistFixture(t, env)

	if rec := createPlaylist(t, env, cookie, "Favorites", nil); rec.Code != http.StatusCreated {
		t.Fatalf("first create returned %d", rec.Code)
	}
	// Names collide case-insensitively.
	rec := createPlaylist(t, env, cookie, "favorites", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate create returned %d", rec.Code)
	}
}

func TestGetPlaylistView(t *testing.T) {
	env := newTestHandler(t)
	cookie, videoID := seedPlaylistFixture(t, env)
	createPlaylist(t, env, cookie, "Favorites", []string{videoID})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/playlists/Favorites", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get playlist returned %d: %s", rec.Code, rec.Body.String())
	}

	var view struct {
		Name        string `json:"name"`
		VideosCount int    `json:"videosCount"`
		Videos      []struct {
			ID string `json:"id"`
		} `json:"videos"`
		Owner struct {
			Username string `json:"username"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.VideosCount != 1 || len(view.Videos) != 1 || view.Videos[0].ID != videoID {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Owner.Username != "owner" {
		t.Fatalf("owner summary wrong: %+v", view.Owner)
	}
}

func TestGetUnknownPlaylist(t *testing.T) {
	env := newTestHandler(t)
	cookie, _ := seedPlaylistFixture(t, env)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/playlists/missing", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown playlist returned %d", rec.Code)
	}
}

func TestAddPlaylistVideoAppends(t *testing.T) {
	env := newTestHandler(t)
	cookie, videoID := seedPlaylistFixture(t, env)
	createPlaylist(t, env, cookie, "Favorites", []string{videoID})

	payload, _ := json.Marshal(map[string]string{"videoId": videoID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/playlists/Favorites/videos", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("add video returned %d: %s", rec.Code, rec.Body.String())
	}

	view, err := env.store.PlaylistView("Favorites")
	if err != nil {
		t.Fatalf("PlaylistView returned error: %v", err)
	}
	// The same video appears twice; duplicates append.
	if view.VideosCount != 2 {
		t.Fatalf("VideosCount = %d, want 2", view.VideosCount)
	}
}

func TestAddPlaylistVideoNonOwnerForbidden(t *testing.T) {
	env := newTestHandler(t)
	cookie, videoID := seedPlaylistFixture(t, env)
	createPlaylist(t, env, cookie, "Favorites", nil)

	env.register(t, "intruder", "intruder@example.com", "pw", "Intruder")
	intruderLogin := env.login(t, "intruder", "pw")
	intruderCookie := findCookie(t, intruderLogin, "accessToken")

	payload, _ := json.Marshal(map[string]string{"videoId": videoID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/playlists/Favorites/videos", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(intruderCookie)
	rec := httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner add returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAddPlaylistVideoUnknownTargets(t *testing.T) {
	env := newTestHandler(t)
	cookie, videoID := seedPlaylistFixture(t, env)
	createPlaylist(t, env, cookie, "Favorites", nil)

	payload, _ := json.Marshal(map[string]string{"videoId": videoID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/playlists/missing/videos", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown playlist returned %d", rec.Code)
	}

	payload, _ = json.Marshal(map[string]string{"videoId": "missing"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/playlists/Favorites/videos", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.routes.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown video returned %d", rec.Code)
	}
}
