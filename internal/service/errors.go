package service

import "errors"

// Service-level sentinel errors. Handlers translate these into
// user-visible API errors with specific reasons.
var (
	ErrNotSeller           = errors.New("user is not a seller")
	ErrNoUploadIntent      = errors.New("no pending upload intent")
	ErrFilenameRejected    = errors.New("filename not allowed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("amount exceeds balance")
)
