package db

import "errors"

// Database-specific errors
var (
	ErrPostNotFound  = errors.New("post not found")
	ErrNotPostOwner  = errors.New("post is not owned by user")
	ErrUserNotFound  = errors.New("user not found")
	ErrStaleLocation = errors.New("location fix is older than the stored one")
)
