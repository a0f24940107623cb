package models

import "time"

// User is an identity record. Username and email are globally unique and
// stored lowercase. PasswordHash and RefreshToken are deliberately excluded
// from JSON encoding so they can never leak into an API payload.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage,omitempty"`
	PasswordHash string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Video is an uploaded clip owned by a user.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	VideoFile string    `json:"videoFile"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// OwnerSummary is the denormalized slice of a user attached to videos in
// watch-history and playlist views.
type OwnerSummary struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

// VideoView is a video annotated with its owner summary.
type VideoView struct {
	Video
	Owner OwnerSummary `json:"owner"`
}

// ChannelProfile is the aggregated public view of a user as a channel.
type ChannelProfile struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	FullName          string `json:"fullName"`
	Avatar            string `json:"avatar"`
	CoverImage        string `json:"coverImage,omitempty"`
	SubscriberCount   int    `json:"subscriberCount"`
	SubscribedToCount int    `json:"subscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// Playlist is an ordered collection of video references. Names are globally
// unique; only the owner may mutate membership. Video IDs may repeat.
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	VideoIDs  []string  `json:"videoIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlaylistView is a playlist with its videos resolved and counted.
type PlaylistView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Owner       OwnerSummary `json:"owner"`
	Videos      []VideoView  `json:"videos"`
	VideosCount int          `json:"videosCount"`
}
