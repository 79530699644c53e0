package apperrors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrDecode        = errors.New("document failed to decode")
	ErrNoEntities    = errors.New("no entities detected")
	ErrHTTPStatus    = errors.New("unexpected http status")
	ErrInvalidConfig = errors.New("invalid configuration")
)
