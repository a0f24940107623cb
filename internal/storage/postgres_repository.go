package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipstream/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository over a pgx connection pool.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewPostgresRepository connects the pool and verifies connectivity.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresRepository, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		pool:    pool,
		timeout: cfg.queryTimeout(),
		logger:  logger,
	}, nil
}

func (r *PostgresRepository) queryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const userColumns = `id, username, email, full_name, avatar, COALESCE(cover_image, ''), password_hash, COALESCE(refresh_token, ''), created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Avatar,
		&user.CoverImage,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// CreateUser persists a new user row, mapping unique violations to ErrConflict.
func (r *PostgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if username == "" || email == "" {
		return models.User{}, errors.New("username and email are required")
	}
	if params.PasswordHash == "" {
		return models.User{}, errors.New("password hash is required")
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, full_name, avatar, cover_image, password_hash)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING `+userColumns,
		uuid.NewString(), username, email, strings.TrimSpace(params.FullName),
		params.Avatar, params.CoverImage, params.PasswordHash,
	)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) getUserBy(clause string, arg string) (models.User, bool) {
	ctx, cancel := r.queryContext()
	defer cancel()

	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+clause, arg)
	user, err := scanUser(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("query user", "error", err)
		}
		return models.User{}, false
	}
	return user, true
}

// GetUser returns the user with the provided ID.
func (r *PostgresRepository) GetUser(id string) (models.User, bool) {
	return r.getUserBy("id = $1", id)
}

// FindUserByEmail returns the user with the provided email, if any.
func (r *PostgresRepository) FindUserByEmail(email string) (models.User, bool) {
	return r.getUserBy("email = $1", strings.ToLower(strings.TrimSpace(email)))
}

// FindUserByUsername returns the user with the provided username, if any.
func (r *PostgresRepository) FindUserByUsername(username string) (models.User, bool) {
	return r.getUserBy("username = $1", strings.ToLower(strings.TrimSpace(username)))
}

// UpdateUserProfile updates full name and email, skipping empty fields.
func (r *PostgresRepository) UpdateUserProfile(id string, params UpdateUserProfileParams) (models.User, error) {
	ctx, cancel := r.queryContext()
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET full_name = COALESCE(NULLIF($2, ''), full_name),
		    email = COALESCE(NULLIF($3, ''), email),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, strings.TrimSpace(params.FullName), strings.ToLower(strings.TrimSpace(params.Email)),
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) execUserUpdate(query string, args ...any) error {
	ctx, cancel := r.queryContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserPassword replaces the stored password hash.
func (r *PostgresRepository) SetUserPassword(id, passwordHash string) error {
	if passwordHash == "" {
		return errors.New("password hash is required")
	}
	if err := r.execUserUpdate(
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// SetUserRefreshToken stores or clears the authoritative refresh token copy.
func (r *PostgresRepository) SetUserRefreshToken(id, token string) error {
	if err := r.execUserUpdate(
		`UPDATE users SET refresh_token = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		id, token,
	); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

// RotateUserRefreshToken is a single conditional UPDATE, so concurrent
// rotations serialize on the row and the loser sees ErrRefreshTokenMismatch.
func (r *PostgresRepository) RotateUserRefreshToken(id, presented, next string) error {
	ctx, cancel := r.queryContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET refresh_token = $3, updated_at = now()
		WHERE id = $1 AND refresh_token = $2`,
		id, presented, next,
	)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefreshTokenMismatch
	}
	return nil
}

func (r *PostgresRepository) updateUserRef(column, id, ref string) (models.User, error) {
	ctx, cancel := r.queryContext()
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`UPDATE users SET `+column+` = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		id, ref,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update %s: %w", column, err)
	}
	return user, nil
}

// SetUserAvatar replaces the avatar media reference.
func (r *PostgresRepository) SetUserAvatar(id, ref string) (models.User, error) {
	if ref == "" {
		return models.User{}, errors.New("avatar reference is required")
	}
	return r.updateUserRef("avatar", id, ref)
}

// SetUserCoverImage replaces the cover-image media reference.
func (r *PostgresRepository) SetUserCoverImage(id, ref string) (models.User, error) {
	if ref == "" {
		return models.User{}, errors.New("cover image reference is required")
	}
	return r.updateUserRef("cover_image", id, ref)
}

// CreateVideo persists a new video row.
func (r *PostgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
	if params.Title == "" || params.VideoFile == "" {
		return models.Video{}, errors.New("title and video file are required")
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	var video models.Video
	err := r.pool.QueryRow(ctx, `
		INSERT INTO videos (id, title, video_file, thumbnail, owner_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id, title, video_file, COALESCE(thumbnail, ''), owner_id, created_at`,
		uuid.NewString(), params.Title, params.VideoFile, params.Thumbnail, params.OwnerID,
	).Scan(&video.ID, &video.Title, &video.VideoFile, &video.Thumbnail, &video.OwnerID, &video.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

// GetVideo returns the video with the provided ID.
func (r *PostgresRepository) GetVideo(id string) (models.Video, bool) {
	ctx, cancel := r.queryContext()
	defer cancel()

	var video models.Video
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, video_file, COALESCE(thumbnail, ''), owner_id, created_at
		FROM videos WHERE id = $1`, id,
	).Scan(&video.ID, &video.Title, &video.VideoFile, &video.Thumbnail, &video.OwnerID, &video.CreatedAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("query video", "error", err)
		}
		return models.Video{}, false
	}
	return video, true
}

// AddWatchHistory appends a video reference to the user's watch history.
func (r *PostgresRepository) AddWatchHistory(userID, videoID string) error {
	ctx, cancel := r.queryContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO watch_history (user_id, video_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1
		FROM watch_history WHERE user_id = $1`,
		userID, videoID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("append watch history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// WatchHistory resolves the watch history into video views in stored order.
func (r *PostgresRepository) WatchHistory(userID string) ([]models.VideoView, error) {
	ctx, cancel := r.queryContext()
	defer cancel()

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.title, v.video_file, COALESCE(v.thumbnail, ''), v.owner_id, v.created_at,
		       o.username, o.full_name, o.avatar
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		JOIN users o ON o.id = v.owner_id
		WHERE h.user_id = $1
		ORDER BY h.position`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	views := []models.VideoView{}
	for rows.Next() {
		var view models.VideoView
		if err := rows.Scan(
			&view.ID, &view.Title, &view.VideoFile, &view.Thumbnail, &view.OwnerID, &view.CreatedAt,
			&view.Owner.Username, &view.Owner.FullName, &view.Owner.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

// Subscribe records a subscriber→channel edge. Duplicate edges collapse.
func (r *PostgresRepository) Subscribe(subscriberID, channelID string) error {
	if subscriberID == channelID {
		return errors.New("cannot subscribe to own channel")
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (subscriber_id, channel_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		subscriberID, channelID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Unsubscribe removes a subscriber→channel edge, if present.
func (r *PostgresRepository) Unsubscribe(subscriberID, channelID string) error {
	ctx, cancel := r.queryContext()
	defer cancel()

	if _, err := r.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`,
		subscriberID, channelID,
	); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// ChannelProfile aggregates subscription edges into the channel view.
func (r *PostgresRepository) ChannelProfile(username, viewerID string) (models.ChannelProfile, error) {
	ctx, cancel := r.queryContext()
	defer cancel()

	var profile models.ChannelProfile
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.username, u.email, u.full_name, u.avatar, COALESCE(u.cover_image, ''),
		       (SELECT COUNT(*) FROM subscriptions WHERE channel_id = u.id),
		       (SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = u.id),
		       EXISTS (SELECT 1 FROM subscriptions WHERE channel_id = u.id AND subscriber_id = $2)
		FROM users u WHERE u.username = $1`,
		strings.ToLower(strings.TrimSpace(username)), viewerID,
	).Scan(
		&profile.ID, &profile.Username, &profile.Email, &profile.FullName,
		&profile.Avatar, &profile.CoverImage,
		&profile.SubscriberCount, &profile.SubscribedToCount, &profile.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, ErrNotFound
		}
		return models.ChannelProfile{}, fmt.Errorf("query channel profile: %w", err)
	}
	return profile, nil
}

// CreatePlaylist persists a playlist and its initial ordered members.
func (r *PostgresRepository) CreatePlaylist(params CreatePlaylistParams) (models.Playlist, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Playlist{}, errors.New("playlist name is required")
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("begin playlist insert: %w", err)
	}
	defer tx.Rollback(ctx)

	var playlist models.Playlist
	err = tx.QueryRow(ctx, `
		INSERT INTO playlists (id, name, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, owner_id, created_at, updated_at`,
		uuid.NewString(), name, params.OwnerID,
	).Scan(&playlist.ID, &playlist.Name, &playlist.OwnerID, &playlist.CreatedAt, &playlist.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Playlist{}, ErrConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Playlist{}, ErrNotFound
		}
		return models.Playlist{}, fmt.Errorf("insert playlist: %w", err)
	}

	for position, videoID := range params.VideoIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO playlist_videos (playlist_id, video_id, position)
			VALUES ($1, $2, $3)`,
			playlist.ID, videoID, position+1,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return models.Playlist{}, ErrNotFound
			}
			return models.Playlist{}, fmt.Errorf("insert playlist video: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Playlist{}, fmt.Errorf("commit playlist insert: %w", err)
	}
	playlist.VideoIDs = append([]string(nil), params.VideoIDs...)
	return playlist, nil
}

func (r *PostgresRepository) playlistVideoIDs(ctx context.Context, playlistID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT video_id FROM playlist_videos WHERE playlist_id = $1 ORDER BY position`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPlaylistByName returns the playlist with the provided name, if any.
func (r *PostgresRepository) GetPlaylistByName(name string) (models.Playlist, bool) {
	ctx, cancel := r.queryContext()
	defer cancel()

	var playlist models.Playlist
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, owner_id, created_at, updated_at
		FROM playlists WHERE lower(name) = lower($1)`,
		strings.TrimSpace(name),
	).Scan(&playlist.ID, &playlist.Name, &playlist.OwnerID, &playlist.CreatedAt, &playlist.UpdatedAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Error("query playlist", "error", err)
		}
		return models.Playlist{}, false
	}
	ids, err := r.playlistVideoIDs(ctx, playlist.ID)
	if err != nil {
		r.logger.Error("query playlist videos", "error", err)
		return models.Playlist{}, false
	}
	playlist.VideoIDs = ids
	return playlist, true
}

// PlaylistView resolves a playlist into its videos with owner summaries.
func (r *PostgresRepository) PlaylistView(name string) (models.PlaylistView, error) {
	ctx, cancel := r.queryContext()
	defer cancel()

	var view models.PlaylistView
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.name, o.username, o.full_name, o.avatar
		FROM playlists p JOIN users o ON o.id = p.owner_id
		WHERE lower(p.name) = lower($1)`,
		strings.TrimSpace(name),
	).Scan(&view.ID, &view.Name, &view.Owner.Username, &view.Owner.FullName, &view.Owner.Avatar)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PlaylistView{}, ErrNotFound
		}
		return models.PlaylistView{}, fmt.Errorf("query playlist view: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.title, v.video_file, COALESCE(v.thumbnail, ''), v.owner_id, v.created_at,
		       o.username, o.full_name, o.avatar
		FROM playlist_videos pv
		JOIN videos v ON v.id = pv.video_id
		JOIN users o ON o.id = v.owner_id
		WHERE pv.playlist_id = $1
		ORDER BY pv.position`,
		view.ID,
	)
	if err != nil {
		return models.PlaylistView{}, fmt.Errorf("query playlist videos: %w", err)
	}
	defer rows.Close()

	view.Videos = []models.VideoView{}
	for rows.Next() {
		var video models.VideoView
		if err := rows.Scan(
			&video.ID, &video.Title, &video.VideoFile, &video.Thumbnail, &video.OwnerID, &video.CreatedAt,
			&video.Owner.Username, &video.Owner.FullName, &video.Owner.Avatar,
		); err != nil {
			return models.PlaylistView{}, fmt.Errorf("scan playlist video: %w", err)
		}
		view.Videos = append(view.Videos, video)
	}
	if err := rows.Err(); err != nil {
		return models.PlaylistView{}, err
	}
	view.VideosCount = len(view.Videos)
	return view, nil
}

// AddPlaylistVideo appends a video reference. Duplicates are preserved.
func (r *PostgresRepository) AddPlaylistVideo(name, videoID string) (models.Playlist, error) {
	playlist, ok := r.GetPlaylistByName(name)
	if !ok {
		return models.Playlist{}, ErrNotFound
	}

	ctx, cancel := r.queryContext()
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO playlist_videos (playlist_id, video_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1
		FROM playlist_videos WHERE playlist_id = $1`,
		playlist.ID, videoID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return models.Playlist{}, ErrNotFound
		}
		return models.Playlist{}, fmt.Errorf("append playlist video: %w", err)
	}
	if _, err := r.pool.Exec(ctx,
		`UPDATE playlists SET updated_at = now() WHERE id = $1`, playlist.ID); err != nil {
		return models.Playlist{}, fmt.Errorf("touch playlist: %w", err)
	}
	playlist.VideoIDs = append(playlist.VideoIDs, videoID)
	return playlist, nil
}

// Ping verifies pool connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
