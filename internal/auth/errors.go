package auth

import "errors"

var (
	ErrUnauthenticated    = errors.New("missing credential")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
