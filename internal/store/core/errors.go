package core

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalid        = errors.New("invalid")
	ErrImmutable      = errors.New("immutable")
	ErrNotImplemented = errors.New("not implemented")
)
