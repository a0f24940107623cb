package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"clipstream/internal/models"

	"github.com/google/uuid"
)

type userRecord struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage,omitempty"`
	PasswordHash string    `json:"passwordHash"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	WatchHistory []string  `json:"watchHistory,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type videoRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	VideoFile string    `json:"videoFile"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type subscriptionRecord struct {
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

type playlistRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	VideoIDs  []string  `json:"videoIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type dataset struct {
	Users         map[string]userRecord     `json:"users"`
	Videos        map[string]videoRecord    `json:"videos"`
	Subscriptions []subscriptionRecord      `json:"subscriptions"`
	Playlists     map[string]playlistRecord `json:"playlists"`
}

func newDataset() dataset {
	return dataset{
		Users:     make(map[string]userRecord),
		Videos:    make(map[string]videoRecord),
		Playlists: make(map[string]playlistRecord),
	}
}

// Option configures a Storage instance.
type Option func(*Storage)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides record ID generation, primarily for tests.
func WithIDGenerator(generate func() string) Option {
	return func(s *Storage) {
		if generate != nil {
			s.newID = generate
		}
	}
}

// Storage is a JSON-file datastore guarded by a read/write mutex. Mutations
// operate on a cloned dataset and persist atomically before the clone is
// swapped in, so a failed write never corrupts in-memory state. An empty path
// keeps the dataset memory-only.
type Storage struct {
	mu    sync.RWMutex
	path  string
	data  dataset
	now   func() time.Time
	newID func() string
}

// NewStorage loads the dataset at path, creating an empty one when the file
// does not exist yet.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	s := &Storage{
		path:  path,
		data:  newDataset(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(raw, &s.data); err != nil {
				return nil, fmt.Errorf("parse dataset %s: %w", path, err)
			}
			s.normalizeLocked()
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read dataset %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Storage) normalizeLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]userRecord)
	}
	if s.data.Videos == nil {
		s.data.Videos = make(map[string]videoRecord)
	}
	if s.data.Playlists == nil {
		s.data.Playlists = make(map[string]playlistRecord)
	}
}

func cloneDataset(data dataset) dataset {
	clone := dataset{
		Users:         make(map[string]userRecord, len(data.Users)),
		Videos:        make(map[string]videoRecord, len(data.Videos)),
		Subscriptions: append([]subscriptionRecord(nil), data.Subscriptions...),
		Playlists:     make(map[string]playlistRecord, len(data.Playlists)),
	}
	for id, user := range data.Users {
		user.WatchHistory = append([]string(nil), user.WatchHistory...)
		clone.Users[id] = user
	}
	for id, video := range data.Videos {
		clone.Videos[id] = video
	}
	for id, playlist := range data.Playlists {
		playlist.VideoIDs = append([]string(nil), playlist.VideoIDs...)
		clone.Playlists[id] = playlist
	}
	return clone
}

func (s *Storage) persistDataset(data dataset) error {
	if s.path == "" {
		return nil
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".clipstream-*.json")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp dataset: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}

func (r userRecord) toModel() models.User {
	return models.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		FullName:     r.FullName,
		Avatar:       r.Avatar,
		CoverImage:   r.CoverImage,
		PasswordHash: r.PasswordHash,
		RefreshToken: r.RefreshToken,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (r videoRecord) toModel() models.Video {
	return models.Video{
		ID:        r.ID,
		Title:     r.Title,
		VideoFile: r.VideoFile,
		Thumbnail: r.Thumbnail,
		OwnerID:   r.OwnerID,
		CreatedAt: r.CreatedAt,
	}
}

func (r playlistRecord) toModel() models.Playlist {
	return models.Playlist{
		ID:        r.ID,
		Name:      r.Name,
		OwnerID:   r.OwnerID,
		VideoIDs:  append([]string(nil), r.VideoIDs...),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CreateUser persists a new user. Username and email are normalized to
// lowercase and must be unique across the dataset.
func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if username == "" || email == "" {
		return models.User{}, errors.New("username and email are required")
	}
	if params.PasswordHash == "" {
		return models.User{}, errors.New("password hash is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if existing.Username == username || existing.Email == email {
			return models.User{}, ErrConflict
		}
	}

	updated := cloneDataset(s.data)
	now := s.now().UTC()
	record := userRecord{
		ID:           s.newID(),
		Username:     username,
		Email:        email,
		FullName:     strings.TrimSpace(params.FullName),
		Avatar:       params.Avatar,
		CoverImage:   params.CoverImage,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	updated.Users[record.ID] = record

	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return record.toModel(), nil
}

// GetUser returns the user with the provided ID.
func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.data.Users[id]
	if !ok {
		return models.User{}, false
	}
	return record.toModel(), true
}

// FindUserByEmail returns the user with the provided email, if any.
func (s *Storage) FindUserByEmail(email string) (models.User, bool) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.data.Users {
		if record.Email == normalized {
			return record.toModel(), true
		}
	}
	return models.User{}, false
}

// FindUserByUsername returns the user with the provided username, if any.
func (s *Storage) FindUserByUsername(username string) (models.User, bool) {
	normalized := strings.ToLower(strings.TrimSpace(username))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.data.Users {
		if record.Username == normalized {
			return record.toModel(), true
		}
	}
	return models.User{}, false
}

func (s *Storage) updateUser(id string, mutate func(*userRecord) error) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	record, ok := updated.Users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	if err := mutate(&record); err != nil {
		return models.User{}, err
	}
	record.UpdatedAt = s.now().UTC()
	updated.Users[id] = record

	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return record.toModel(), nil
}

// UpdateUserProfile updates full name and email. Empty fields are skipped;
// a changed email must remain unique.
func (s *Storage) UpdateUserProfile(id string, params UpdateUserProfileParams) (models.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	fullName := strings.TrimSpace(params.FullName)

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	record, ok := updated.Users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	if email != "" && email != record.Email {
		for otherID, other := range updated.Users {
			if otherID != id && other.Email == email {
				return models.User{}, ErrConflict
			}
		}
		record.Email = email
	}
	if fullName != "" {
		record.FullName = fullName
	}
	record.UpdatedAt = s.now().UTC()
	updated.Users[id] = record

	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return record.toModel(), nil
}

// SetUserPassword replaces the stored password hash.
func (s *Storage) SetUserPassword(id, passwordHash string) error {
	if passwordHash == "" {
		return errors.New("password hash is required")
	}
	_, err := s.updateUser(id, func(record *userRecord) error {
		record.PasswordHash = passwordHash
		return nil
	})
	return err
}

// SetUserRefreshToken stores the authoritative refresh token copy. An empty
// token clears it, returning the user to the logged-out state.
func (s *Storage) SetUserRefreshToken(id, token string) error {
	_, err := s.updateUser(id, func(record *userRecord) error {
		record.RefreshToken = token
		return nil
	})
	return err
}

// RotateUserRefreshToken swaps the stored refresh token under the write lock
// only when the presented token still matches, so concurrent rotations are
// serialized and the loser observes ErrRefreshTokenMismatch.
func (s *Storage) RotateUserRefreshToken(id, presented, next string) error {
	_, err := s.updateUser(id, func(record *userRecord) error {
		if record.RefreshToken == "" || record.RefreshToken != presented {
			return ErrRefreshTokenMismatch
		}
		record.RefreshToken = next
		return nil
	})
	return err
}

// SetUserAvatar replaces the avatar media reference.
func (s *Storage) SetUserAvatar(id, ref string) (models.User, error) {
	if ref == "" {
		return models.User{}, errors.New("avatar reference is required")
	}
	return s.updateUser(id, func(record *userRecord) error {
		record.Avatar = ref
		return nil
	})
}

// SetUserCoverImage replaces the cover-image media reference.
func (s *Storage) SetUserCoverImage(id, ref string) (models.User, error) {
	if ref == "" {
		return models.User{}, errors.New("cover image reference is required")
	}
	return s.updateUser(id, func(record *userRecord) error {
		record.CoverImage = ref
		return nil
	})
}

// CreateVideo persists a new video record.
func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	if params.Title == "" || params.VideoFile == "" {
		return models.Video{}, errors.New("title and video file are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, ErrNotFound
	}

	updated := cloneDataset(s.data)
	record := videoRecord{
		ID:        s.newID(),
		Title:     params.Title,
		VideoFile: params.VideoFile,
		Thumbnail: params.Thumbnail,
		OwnerID:   params.OwnerID,
		CreatedAt: s.now().UTC(),
	}
	updated.Videos[record.ID] = record

	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated
	return record.toModel(), nil
}

// GetVideo returns the video with the provided ID.
func (s *Storage) GetVideo(id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, false
	}
	return record.toModel(), true
}

// AddWatchHistory appends a video reference to the user's watch history.
func (s *Storage) AddWatchHistory(userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[videoID]; !ok {
		return ErrNotFound
	}
	updated := cloneDataset(s.data)
	record, ok := updated.Users[userID]
	if !ok {
		return ErrNotFound
	}
	record.WatchHistory = append(record.WatchHistory, videoID)
	record.UpdatedAt = s.now().UTC()
	updated.Users[userID] = record

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

func (s *Storage) ownerSummaryLocked(ownerID string) models.OwnerSummary {
	owner, ok := s.data.Users[ownerID]
	if !ok {
		return models.OwnerSummary{}
	}
	return models.OwnerSummary{
		Username: owner.Username,
		FullName: owner.FullName,
		Avatar:   owner.Avatar,
	}
}

// WatchHistory resolves the user's watch history into video views in stored
// order. Dangling references are skipped.
func (s *Storage) WatchHistory(userID string) ([]models.VideoView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.data.Users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	views := make([]models.VideoView, 0, len(record.WatchHistory))
	for _, videoID := range record.WatchHistory {
		video, ok := s.data.Videos[videoID]
		if !ok {
			continue
		}
		views = append(views, models.VideoView{
			Video: video.toModel(),
			Owner: s.ownerSummaryLocked(video.OwnerID),
		})
	}
	return views, nil
}

// Subscribe records a subscriber→channel edge. Duplicate edges collapse.
func (s *Storage) Subscribe(subscriberID, channelID string) error {
	if subscriberID == channelID {
		return errors.New("cannot subscribe to own channel")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[subscriberID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.data.Users[channelID]; !ok {
		return ErrNotFound
	}
	for _, edge := range s.data.Subscriptions {
		if edge.SubscriberID == subscriberID && edge.ChannelID == channelID {
			return nil
		}
	}

	updated := cloneDataset(s.data)
	updated.Subscriptions = append(updated.Subscriptions, subscriptionRecord{
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    s.now().UTC(),
	})

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// Unsubscribe removes a subscriber→channel edge, if present.
func (s *Storage) Unsubscribe(subscriberID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	filtered := updated.Subscriptions[:0]
	for _, edge := range updated.Subscriptions {
		if edge.SubscriberID == subscriberID && edge.ChannelID == channelID {
			continue
		}
		filtered = append(filtered, edge)
	}
	updated.Subscriptions = filtered

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// ChannelProfile aggregates subscription edges into the channel view for the
// provided username, computed fresh on every call.
func (s *Storage) ChannelProfile(username, viewerID string) (models.ChannelProfile, error) {
	normalized := strings.ToLower(strings.TrimSpace(username))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var channel userRecord
	found := false
	for _, record := range s.data.Users {
		if record.Username == normalized {
			channel = record
			found = true
			break
		}
	}
	if !found {
		return models.ChannelProfile{}, ErrNotFound
	}

	profile := models.ChannelProfile{
		ID:         channel.ID,
		Username:   channel.Username,
		Email:      channel.Email,
		FullName:   channel.FullName,
		Avatar:     channel.Avatar,
		CoverImage: channel.CoverImage,
	}
	for _, edge := range s.data.Subscriptions {
		if edge.ChannelID == channel.ID {
			profile.SubscriberCount++
			if edge.SubscriberID == viewerID {
				profile.IsSubscribed = true
			}
		}
		if edge.SubscriberID == channel.ID {
			profile.SubscribedToCount++
		}
	}
	return profile, nil
}

// CreatePlaylist persists a playlist. Names are globally unique.
func (s *Storage) CreatePlaylist(params CreatePlaylistParams) (models.Playlist, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Playlist{}, errors.New("playlist name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Playlist{}, ErrNotFound
	}
	for _, existing := range s.data.Playlists {
		if strings.EqualFold(existing.Name, name) {
			return models.Playlist{}, ErrConflict
		}
	}
	for _, videoID := range params.VideoIDs {
		if _, ok := s.data.Videos[videoID]; !ok {
			return models.Playlist{}, ErrNotFound
		}
	}

	updated := cloneDataset(s.data)
	now := s.now().UTC()
	record := playlistRecord{
		ID:        s.newID(),
		Name:      name,
		OwnerID:   params.OwnerID,
		VideoIDs:  append([]string(nil), params.VideoIDs...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	updated.Playlists[record.ID] = record

	if err := s.persistDataset(updated); err != nil {
		return models.Playlist{}, err
	}
	s.data = updated
	return record.toModel(), nil
}

func (s *Storage) findPlaylistLocked(name string) (playlistRecord, bool) {
	for _, record := range s.data.Playlists {
		if strings.EqualFold(record.Name, strings.TrimSpace(name)) {
			return record, true
		}
	}
	return playlistRecord{}, false
}

// GetPlaylistByName returns the playlist with the provided name, if any.
func (s *Storage) GetPlaylistByName(name string) (models.Playlist, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.findPlaylistLocked(name)
	if !ok {
		return models.Playlist{}, false
	}
	return record.toModel(), true
}

// PlaylistView resolves a playlist into its videos with owner summaries.
// Missing video references resolve to an empty slot-free list, mirroring
// left-join semantics.
func (s *Storage) PlaylistView(name string) (models.PlaylistView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.findPlaylistLocked(name)
	if !ok {
		return models.PlaylistView{}, ErrNotFound
	}
	videos := make([]models.VideoView, 0, len(record.VideoIDs))
	for _, videoID := range record.VideoIDs {
		video, ok := s.data.Videos[videoID]
		if !ok {
			continue
		}
		videos = append(videos, models.VideoView{
			Video: video.toModel(),
			Owner: s.ownerSummaryLocked(video.OwnerID),
		})
	}
	return models.PlaylistView{
		ID:          record.ID,
		Name:        record.Name,
		Owner:       s.ownerSummaryLocked(record.OwnerID),
		Videos:      videos,
		VideosCount: len(videos),
	}, nil
}

// AddPlaylistVideo appends a video reference. Duplicates are preserved.
func (s *Storage) AddPlaylistVideo(name, videoID string) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.findPlaylistLocked(name)
	if !ok {
		return models.Playlist{}, ErrNotFound
	}
	if _, ok := s.data.Videos[videoID]; !ok {
		return models.Playlist{}, ErrNotFound
	}

	updated := cloneDataset(s.data)
	record := updated.Playlists[existing.ID]
	record.VideoIDs = append(record.VideoIDs, videoID)
	record.UpdatedAt = s.now().UTC()
	updated.Playlists[existing.ID] = record

	if err := s.persistDataset(updated); err != nil {
		return models.Playlist{}, err
	}
	s.data = updated
	return record.toModel(), nil
}

// ListUsers returns all users sorted by creation time. Used by diagnostics.
func (s *Storage) ListUsers() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.data.Users))
	for _, record := range s.data.Users {
		users = append(users, record.toModel())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

// Ping reports the store as healthy; the JSON store has no remote dependency.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Close flushes the current dataset to disk.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistDataset(s.data)
}

var _ Repository = (*Storage)(nil)
