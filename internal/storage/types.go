package storage

// CreateUserParams captures the fields required to persist a new user. The
// password arrives already hashed; storage never sees plaintext credentials.
type CreateUserParams struct {
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Avatar       string
	CoverImage   string
}

// UpdateUserProfileParams updates the mutable account fields. Empty values
// leave the existing field unchanged.
type UpdateUserProfileParams struct {
	FullName string
	Email    string
}

// CreateVideoParams captures the fields required to persist a video record.
type CreateVideoParams struct {
	Title     string
	VideoFile string
	Thumbnail string
	OwnerID   string
}

// CreatePlaylistParams captures the fields required to persist a playlist.
type CreatePlaylistParams struct {
	Name     string
	OwnerID  string
	VideoIDs []string
}
