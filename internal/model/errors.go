package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers wrap these with context using
// fmt.Errorf("%w: ...") and the HTTP boundary maps them with errors.Is.
var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrStorage           = errors.New("storage error")
	ErrValidation        = errors.New("validation error")

	ErrClassNotFound = fmt.Errorf("class %w", ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
)
