package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")

	// ErrInvalidToken indicates the access token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidCredentials carries the exact message shown next to the
	// sign-in form; it is returned as a value, never thrown.
	ErrInvalidCredentials = errors.New("Email ou senha inválidos")

	// ErrNotSupported marks operations a backend mode does not provide
	// (sign-up and password reset in mock mode).
	ErrNotSupported = errors.New("auth: operation not supported in this mode")
)
