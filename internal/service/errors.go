package service

import "errors"

var (
	ErrDuplicateUsername      = errors.New("username already exists")
	ErrAuthenticationFailure  = errors.New("invalid username or password")
	ErrInvalidRefreshToken    = errors.New("invalid refresh token")
	ErrUserNotFound           = errors.New("user not found")
	ErrNotFoundOrUnauthorized = errors.New("not found or unauthorized")
	ErrInvalidSession         = errors.New("invalid session")
	ErrSessionNotFound        = errors.New("session not found")
	ErrNoValidNotes           = errors.New("no valid notes found")
	ErrUnknownModel           = errors.New("unknown model")
)
