package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrTeamFull      = errors.New("team is full")
	ErrInvalidLimit  = errors.New("invalid leaderboard limit")
	ErrInvalidRecord = errors.New("invalid record")
	// ErrPersistence wraps driver and connection failures.
	ErrPersistence = errors.New("persistence failure")
)
