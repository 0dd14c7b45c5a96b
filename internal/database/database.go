package database

import "errors"

// ErrUserNotFound is returned when no user matches the given Telegram user id.
var ErrUserNotFound = errors.New("user not found")

// ErrPostNotFound is returned when a post lookup or a guarded mutation matches
// nothing: the post is absent, owned by another user, or already posted.
var ErrPostNotFound = errors.New("post not found")
