package model

import "errors"

// Common errors used across the application
var (
	// Player errors
	ErrPlayerNotFound      = errors.New("player not found")
	ErrAlreadyOnline       = errors.New("player already connected")
	ErrInsufficientBalance = errors.New("balance would go negative")
	ErrUnknownResource     = errors.New("unknown resource type")
)
