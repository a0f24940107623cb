package storage

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("record already exists")
	// ErrRefreshTokenMismatch indicates a refresh-token rotation lost the
	// race: the presented token no longer matches the stored copy.
	ErrRefreshTokenMismatch = errors.New("refresh token mismatch")
)
