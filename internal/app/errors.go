package service

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidEvent   = errors.New("invalid xp event")
	ErrBackpressure   = errors.New("event queue is full")
	ErrQuestLocked    = errors.New("quest not available at this level")
	ErrQuestCompleted = errors.New("quest already completed")
	ErrInvalidQuest   = errors.New("invalid quest")
	ErrServiceStopped = errors.New("service stopped")
)
