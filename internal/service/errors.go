package service

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrConflict            = errors.New("conflict")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrBlocked             = errors.New("account is blocked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("access denied")
)
