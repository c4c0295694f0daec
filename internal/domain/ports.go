package domain

import (
	"context"
	"time"
)

// StoreInitializer initializes the data store.
type StoreInitializer interface {
	// Initialize creates the store if it doesn't exist.
	Initialize(ctx context.Context) error
}

// MessageStore is the durable, append-only collection of message records.
type MessageStore interface {
	// Append stores rec. A record whose key already exists is left untouched
	// and Append reports added=false without an error.
	Append(ctx context.Context, rec *MessageRecord) (added bool, err error)

	// ListUnprocessed returns unprocessed inbound records in ascending ID order.
	ListUnprocessed(ctx context.Context) ([]*MessageRecord, error)

	// ListAll returns every record in chronological order.
	ListAll(ctx context.Context) ([]*MessageRecord, error)

	// MarkProcessed flags the inbound records with the given IDs. Unknown IDs are ignored.
	MarkProcessed(ctx context.Context, ids []int64) error

	// PurgeExpired removes records the retention policy allows to drop at now.
	PurgeExpired(ctx context.Context, now time.Time, policy RetentionPolicy) (removed int, err error)
}

// LeaseStore holds the singleton lease.
type LeaseStore interface {
	// Acquire creates the lease if none exists. Exactly one concurrent caller
	// observes true.
	Acquire(ctx context.Context, lease Lease) (bool, error)

	// Heartbeat refreshes the current lease. No-op when no lease is held.
	Heartbeat(ctx context.Context, at time.Time) error

	// Release deletes the lease if it still belongs to runID and reports
	// whether it did. A lease of another run is left alone.
	Release(ctx context.Context, runID string) (bool, error)

	// Reclaim deletes the lease only while it is still expected, with the same
	// run and the same last heartbeat. Of several callers reclaiming the same
	// stale lease exactly one observes true.
	Reclaim(ctx context.Context, expected Lease) (bool, error)

	// Lease returns the current lease, or nil when free.
	Lease(ctx context.Context) (*Lease, error)
}

// InterruptStore holds messages that arrived while a lease was held.
type InterruptStore interface {
	// AddInterrupts records interrupts not already recorded.
	AddInterrupts(ctx context.Context, interrupts []PendingInterrupt) (added int, err error)

	// ListInterrupts returns every recorded interrupt in detection order.
	ListInterrupts(ctx context.Context) ([]PendingInterrupt, error)

	// ClearInterrupts removes every recorded interrupt.
	ClearInterrupts(ctx context.Context) error
}

// MemoryStore holds TaskMemory records and their index.
type MemoryStore interface {
	// Reserve writes the provisional in-progress records of a unit of work.
	Reserve(ctx context.Context, draft MemoryDraft) error

	// Finalize overwrites the records of a unit of work with its result.
	Finalize(ctx context.Context, draft MemoryDraft) error

	// Search returns index entries matching q, newest first.
	Search(ctx context.Context, q MemoryQuery) ([]IndexEntry, error)

	// Get returns the record keyed by messageID.
	Get(ctx context.Context, messageID int64) (*TaskMemory, error)

	// LoadAll returns every record, newest first.
	LoadAll(ctx context.Context) ([]*TaskMemory, error)
}

// CursorStore persists the transport's read position.
type CursorStore interface {
	// Cursor returns the last acknowledged transport update ID.
	Cursor(ctx context.Context) (int64, error)

	// SaveCursor stores the last acknowledged transport update ID.
	SaveCursor(ctx context.Context, cursor int64) error
}

// CoordinatorStore is every piece of shared mutable state the coordinator touches.
type CoordinatorStore interface {
	StoreInitializer
	MessageStore
	LeaseStore
	InterruptStore
	MemoryStore
	CursorStore
}

// Transport pulls raw messages from the messaging provider.
type Transport interface {
	// Pull fetches messages received since the last pull. Redelivered
	// messages are possible and must be tolerated by the caller.
	Pull(ctx context.Context) ([]InboundMessage, error)

	// Ack confirms the messages of the last pull were stored, so the next
	// pull starts after them.
	Ack(ctx context.Context) error
}

// Sender delivers text and files to a chat.
type Sender interface {
	// Send delivers text followed by files. A nil error means success.
	Send(ctx context.Context, chatID int64, text string, files []string) error
}

// WorkerHooks are the advisory calls a running worker may make.
type WorkerHooks interface {
	// Heartbeat proves the worker is still alive.
	Heartbeat(ctx context.Context) error

	// PollInterrupts records and returns messages that arrived during the run.
	PollInterrupts(ctx context.Context) ([]PendingInterrupt, error)
}

// WorkerInput is what the coordinator hands a worker.
type WorkerInput struct {
	Hooks       WorkerHooks
	Instruction string
	Dir         string // Working directory of the task
	RunID       string
	PriorMemory []*TaskMemory
	Inputs      []string // Paths of the task's own attachments
}

// WorkerOutput is what a worker hands back.
type WorkerOutput struct {
	Result      string
	OutputFiles []string
}

// Worker executes the instructions of a unit of work.
type Worker interface {
	// Run blocks until the work is done.
	Run(ctx context.Context, in WorkerInput) (*WorkerOutput, error)
}

// Logger writes operational logs, globally and per task.
type Logger interface {
	Debug(taskID int64, category, msg string)
	Info(taskID int64, category, msg string)
	Warn(taskID int64, category, msg string)
	Error(taskID int64, category, msg string)
}

// NopLogger discards every entry.
type NopLogger struct{}

// Debug discards the entry.
func (NopLogger) Debug(int64, string, string) {}

// Info discards the entry.
func (NopLogger) Info(int64, string, string) {}

// Warn discards the entry.
func (NopLogger) Warn(int64, string, string) {}

// Error discards the entry.
func (NopLogger) Error(int64, string, string) {}

// ConfigLoader loads configuration from files.
type ConfigLoader interface {
	// Load returns the merged configuration (defaults, global, data dir, environment).
	Load() (*Config, error)
}

// ConfigManager inspects and creates config files.
type ConfigManager interface {
	// GetDataConfigInfo returns the data directory's config file.
	GetDataConfigInfo() ConfigInfo
	// GetGlobalConfigInfo returns the global config file.
	GetGlobalConfigInfo() ConfigInfo
	// InitDataConfig writes a commented config file into the data directory.
	// Returns ErrConfigExists when one is already there.
	InitDataConfig(cfg *Config) error
}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
