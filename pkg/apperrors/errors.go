package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrUnknownField         = errors.New("unknown condition field")
	ErrTypeMismatch         = errors.New("condition value type mismatch")
	ErrDepthExceeded        = errors.New("condition tree too deep")
	ErrReconciliationFailed = errors.New("tag reconciliation failed")
	ErrInvalidTransition    = errors.New("invalid offer status transition")
)
