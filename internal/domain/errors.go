package domain

import "errors"

// Domain errors.
var (
	ErrNotInitialized    = errors.New("relay store not initialized (run 'relay init' first)")
	ErrLeaseNotHeld      = errors.New("no lease is held")
	ErrLeaseNotStale     = errors.New("lease is still alive")
	ErrLeaseChanged      = errors.New("lease changed since it was inspected")
	ErrMemoryNotFound    = errors.New("task memory not found")
	ErrInvalidAttachment = errors.New("invalid attachment")
	ErrEmptyTask         = errors.New("task has no messages")
	ErrNoTransport       = errors.New("no transport configured")
	ErrNoSender          = errors.New("no sender configured")
	ErrNoWorker          = errors.New("no worker command configured")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrConfigExists      = errors.New("config file already exists")
	ErrStoreCorrupted    = errors.New("store file is corrupted")
)
