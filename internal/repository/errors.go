package repository

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnknownChannel      = errors.New("unknown credit channel")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrLogNotFound         = errors.New("dispatch log not found")
	ErrSessionNotFound     = errors.New("extension session not found")
)
