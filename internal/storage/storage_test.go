package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage("")
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Storage, username, email string) string {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		Username:     username,
		Email:        email,
		FullName:     "Test User",
		PasswordHash: "pbkdf2$sha256$120000$c2FsdA$aGFzaA",
		Avatar:       "/media/avatars/" + username + ".png",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	return user.ID
}

func createTestVideo(t *testing.T, store *Storage, ownerID, title string) string {
	t.Helper()
	video, err := store.CreateVideo(CreateVideoParams{
		Title:     title,
		VideoFile: "/media/videos/" + title + ".mp4",
		OwnerID:   ownerID,
	})
	if err != nil {
		t.Fatalf("CreateVideo returned error: %v", err)
	}
	return video.ID
}

func TestCreateUserNormalizesAndConflicts(t *testing.T) {
	store := newTestStorage(t)

	user, err := store.CreateUser(CreateUserParams{
		Username:     "  Amy ",
		Email:        "Amy@Example.com",
		FullName:     "Amy",
		PasswordHash: "hash",
		Avatar:       "ref",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.Username != "amy" || user.Email != "amy@example.com" {
		t.Fatalf("fields not normalized: %q %q", user.Username, user.Email)
	}

	if _, err := store.CreateUser(CreateUserParams{
		Username: "amy", Email: "other@example.com", FullName: "x", PasswordHash: "h", Avatar: "r",
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
	if _, err := store.CreateUser(CreateUserParams{
		Username: "other", Email: "amy@example.com", FullName: "x", PasswordHash: "h", Avatar: "r",
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

func TestFindUserLookups(t *testing.T) {
	store := newTestStorage(t)
	id := createTestUser(t, store, "amy", "amy@example.com")

	if user, ok := store.FindUserByUsername("AMY"); !ok || user.ID != id {
		t.Fatal("FindUserByUsername failed for mixed case input")
	}
	if user, ok := store.FindUserByEmail(" amy@example.com "); !ok || user.ID != id {
		t.Fatal("FindUserByEmail failed for padded input")
	}
	if _, ok := store.FindUserByUsername("nobody"); ok {
		t.Fatal("FindUserByUsername returned a user for unknown name")
	}
}

func TestRotateUserRefreshToken(t *testing.T) {
	store := newTestStorage(t)
	id := createTestUser(t, store, "amy", "amy@example.com")

	if err := store.SetUserRefreshToken(id, "token-1"); err != nil {
		t.Fatalf("SetUserRefreshToken returned error: %v", err)
	}
	if err := store.RotateUserRefreshToken(id, "token-1", "token-2"); err != nil {
		t.Fatalf("RotateUserRefreshToken returned error: %v", err)
	}
	// Rotation with the superseded token must lose.
	if err := store.RotateUserRefreshToken(id, "token-1", "token-3"); !errors.Is(err, ErrRefreshTokenMismatch) {
		t.Fatalf("expected ErrRefreshTokenMismatch, got %v", err)
	}
	if err := store.SetUserRefreshToken(id, ""); err != nil {
		t.Fatalf("clearing refresh token returned error: %v", err)
	}
	if err := store.RotateUserRefreshToken(id, "token-2", "token-4"); !errors.Is(err, ErrRefreshTokenMismatch) {
		t.Fatalf("expected ErrRefreshTokenMismatch after clear, got %v", err)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	store := newTestStorage(t)
	id := createTestUser(t, store, "amy", "amy@example.com")
	createTestUser(t, store, "bob", "bob@example.com")

	updated, err := store.UpdateUserProfile(id, UpdateUserProfileParams{FullName: "Amy B."})
	if err != nil {
		t.Fatalf("UpdateUserProfile returned error: %v", err)
	}
	if updated.FullName != "Amy B." || updated.Email != "amy@example.com" {
		t.Fatalf("partial update went wrong: %+v", updated)
	}

	if _, err := store.UpdateUserProfile(id, UpdateUserProfileParams{Email: "bob@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken email, got %v", err)
	}
	if _, err := store.UpdateUserProfile("missing", UpdateUserProfileParams{FullName: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWatchHistoryKeepsOrder(t *testing.T) {
	store := newTestStorage(t)
	viewer := createTestUser(t, store, "viewer", "viewer@example.com")
	creator := createTestUser(t, store, "creator", "creator@example.com")

	first := createTestVideo(t, store, creator, "first")
	second := createTestVideo(t, store, creator, "second")
	third := createTestVideo(t, store, creator, "third")

	for _, videoID := range []string{second, first, third, first} {
		if err := store.AddWatchHistory(viewer, videoID); err != nil {
			t.Fatalf("AddWatchHistory returned error: %v", err)
		}
	}

	history, err := store.WatchHistory(viewer)
	if err != nil {
		t.Fatalf("WatchHistory returned error: %v", err)
	}
	want := []string{second, first, third, first}
	if len(history) != len(want) {
		t.Fatalf("history length = %d, want %d", len(history), len(want))
	}
	for i, view := range history {
		if view.ID != want[i] {
			t.Fatalf("history[%d] = %q, want %q", i, view.ID, want[i])
		}
		if view.Owner.Username != "creator" {
			t.Fatalf("history[%d] missing owner summary: %+v", i, view.Owner)
		}
	}
}

func TestChannelProfileAggregation(t *testing.T) {
	store := newTestStorage(t)
	channel := createTestUser(t, store, "channel", "channel@example.com")
	fanOne := createTestUser(t, store, "fanone", "one@example.com")
	fanTwo := createTestUser(t, store, "fantwo", "two@example.com")

	for _, fan := range []string{fanOne, fanTwo} {
		if err := store.Subscribe(fan, channel); err != nil {
			t.Fatalf("Subscribe returned error: %v", err)
		}
	}
	// Duplicate subscriptions collapse.
	if err := store.Subscribe(fanOne, channel); err != nil {
		t.Fatalf("duplicate Subscribe returned error: %v", err)
	}
	if err := store.Subscribe(channel, fanOne); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	profile, err := store.ChannelProfile("channel", fanOne)
	if err != nil {
		t.Fatalf("ChannelProfile returned error: %v", err)
	}
	if profile.SubscriberCount != 2 {
		t.Fatalf("SubscriberCount = %d, want 2", profile.SubscriberCount)
	}
	if profile.SubscribedToCount != 1 {
		t.Fatalf("SubscribedToCount = %d, want 1", profile.SubscribedToCount)
	}
	if !profile.IsSubscribed {
		t.Fatal("IsSubscribed = false for a subscriber")
	}

	outsider, err := store.ChannelProfile("channel", "someone-else")
	if err != nil {
		t.Fatalf("ChannelProfile returned error: %v", err)
	}
	if outsider.IsSubscribed {
		t.Fatal("IsSubscribed = true for a non-subscriber")
	}

	if _, err := store.ChannelProfile("ghost", fanOne); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown channel, got %v", err)
	}
}

func TestPlaylistLifecycle(t *testing.T) {
	store := newTestStorage(t)
	owner := createTestUser(t, store, "owner", "owner@example.com")
	video := createTestVideo(t, store, owner, "clip")

	playlist, err := store.CreatePlaylist(CreatePlaylistParams{Name: "Favorites", OwnerID: owner, VideoIDs: []string{video}})
	if err != nil {
		t.Fatalf("CreatePlaylist returned error: %v", err)
	}

	if _, err := store.CreatePlaylist(CreatePlaylistParams{Name: "favorites", OwnerID: owner}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}

	// Duplicates are appended, not deduplicated.
	updated, err := store.AddPlaylistVideo("Favorites", video)
	if err != nil {
		t.Fatalf("AddPlaylistVideo returned error: %v", err)
	}
	if len(updated.VideoIDs) != len(playlist.VideoIDs)+1 {
		t.Fatalf("video list length = %d, want %d", len(updated.VideoIDs), len(playlist.VideoIDs)+1)
	}

	view, err := store.PlaylistView("Favorites")
	if err != nil {
		t.Fatalf("PlaylistView returned error: %v", err)
	}
	if view.VideosCount != 2 || len(view.Videos) != 2 {
		t.Fatalf("view counts wrong: %+v", view)
	}
	if view.Owner.Username != "owner" {
		t.Fatalf("view owner summary wrong: %+v", view.Owner)
	}

	if _, err := store.AddPlaylistVideo("missing", video); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown playlist, got %v", err)
	}
	if _, err := store.AddPlaylistVideo("Favorites", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage returned error: %v", err)
	}
	id := createTestUser(t, store, "amy", "amy@example.com")
	if err := store.SetUserRefreshToken(id, "token-1"); err != nil {
		t.Fatalf("SetUserRefreshToken returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	user, ok := reopened.GetUser(id)
	if !ok {
		t.Fatal("user lost across restart")
	}
	if user.RefreshToken != "token-1" {
		t.Fatalf("refresh token lost across restart: %q", user.RefreshToken)
	}
}
