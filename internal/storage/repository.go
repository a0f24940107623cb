package storage

import (
	"context"

	"clipstream/internal/models"
)

// Repository is the persistence contract consumed by the API and session
// layers. Two implementations exist: the JSON-file Storage for development
// and tests, and PostgresRepository for production deployments.
type Repository interface {
	CreateUser(params CreateUserParams) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByEmail(email string) (models.User, bool)
	FindUserByUsername(username string) (models.User, bool)
	UpdateUserProfile(id string, params UpdateUserProfileParams) (models.User, error)
	SetUserPassword(id, passwordHash string) error
	SetUserRefreshToken(id, token string) error
	// RotateUserRefreshToken swaps the stored refresh token for next only
	// when the stored copy still equals presented, returning
	// ErrRefreshTokenMismatch otherwise.
	RotateUserRefreshToken(id, presented, next string) error
	SetUserAvatar(id, ref string) (models.User, error)
	SetUserCoverImage(id, ref string) (models.User, error)

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, bool)
	AddWatchHistory(userID, videoID string) error
	WatchHistory(userID string) ([]models.VideoView, error)

	Subscribe(subscriberID, channelID string) error
	Unsubscribe(subscriberID, channelID string) error
	ChannelProfile(username, viewerID string) (models.ChannelProfile, error)

	CreatePlaylist(params CreatePlaylistParams) (models.Playlist, error)
	GetPlaylistByName(name string) (models.Playlist, bool)
	PlaylistView(name string) (models.PlaylistView, error)
	AddPlaylistVideo(name, videoID string) (models.Playlist, error)

	Ping(ctx context.Context) error
	Close() error
}
