package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrConsoleIDRequired   = errors.New("console_id is required")
	ErrActivityKindInvalid = errors.New("activity kind is invalid")
	ErrActivityNotFound    = errors.New("activity event not found")
)
