package auth

import "errors"

var (
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrMissingSecret      = errors.New("auth: session secret is not configured")
	ErrNotFound           = errors.New("auth: not found")
)
