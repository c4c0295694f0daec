// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	return m.NowTime
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.NowTime = m.NowTime.Add(d)
}

// MockStore is an in-memory domain.CoordinatorStore.
// The *Err fields make the matching method fail.
// Fields are ordered to minimize memory padding.
type MockStore struct {
	Memories      map[int64]*domain.TaskMemory
	LeaseValue    *domain.Lease
	InitErr       error
	AppendErr     error
	ListErr       error
	MarkErr       error
	AcquireErr    error
	HeartbeatErr  error
	ReleaseErr    error
	ReclaimErr    error
	LeaseErr      error
	ReserveErr    error
	FinalizeErr   error
	InterruptErr  error
	Messages      []*domain.MessageRecord
	Interrupts    []domain.PendingInterrupt
	Reserved      []domain.MemoryDraft
	Finalized     []domain.MemoryDraft
	CursorValue   int64
	mu            sync.Mutex
	ReleaseCalls  int
	Initialized   bool
	AcquireDenied bool // Acquire reports false even when free
	ReclaimLost   bool // Reclaim reports false as if another run got there first
}

// NewMockStore creates an initialized, empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		Memories:    make(map[int64]*domain.TaskMemory),
		Initialized: true,
	}
}

// Ensure MockStore implements domain.CoordinatorStore.
var _ domain.CoordinatorStore = (*MockStore)(nil)

// Initialize marks the store initialized.
func (m *MockStore) Initialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitErr != nil {
		return m.InitErr
	}
	m.Initialized = true
	return nil
}

func (m *MockStore) checkInit() error {
	if !m.Initialized {
		return domain.ErrNotInitialized
	}
	return nil
}

// Append stores rec unless its key exists.
func (m *MockStore) Append(_ context.Context, rec *domain.MessageRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInit(); err != nil {
		return false, err
	}
	if m.AppendErr != nil {
		return false, m.AppendErr
	}
	for _, existing := range m.Messages {
		if existing.Key() == rec.Key() {
			return false, nil
		}
	}
	m.Messages = append(m.Messages, rec)
	return true, nil
}

// ListUnprocessed returns unprocessed inbound records by ascending ID.
func (m *MockStore) ListUnprocessed(_ context.Context) ([]*domain.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInit(); err != nil {
		return nil, err
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var pending []*domain.MessageRecord
	for _, rec := range m.Messages {
		if rec.IsInbound() && !rec.Processed {
			pending = append(pending, rec)
		}
	}
	slices.SortFunc(pending, func(a, b *domain.MessageRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return pending, nil
}

// ListAll returns every record by timestamp.
func (m *MockStore) ListAll(_ context.Context) ([]*domain.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInit(); err != nil {
		return nil, err
	}
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	all := slices.Clone(m.Messages)
	slices.SortStableFunc(all, func(a, b *domain.MessageRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return all, nil
}

// MarkProcessed flags inbound records.
func (m *MockStore) MarkProcessed(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	for _, rec := range m.Messages {
		if rec.IsInbound() && slices.Contains(ids, rec.ID) {
			rec.Processed = true
		}
	}
	return nil
}

// PurgeExpired drops expired records.
func (m *MockStore) PurgeExpired(_ context.Context, now time.Time, policy domain.RetentionPolicy) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkInit(); err != nil {
		return 0, err
	}
	kept := m.Messages[:0]
	removed := 0
	for _, rec := range m.Messages {
		if policy.Expired(rec, now) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.Messages = kept
	return removed, nil
}

// Record returns the inbound record with id, or nil.
func (m *MockStore) Record(id int64) *domain.MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.Messages {
		if rec.IsInbound() && rec.ID == id {
			return rec
		}
	}
	return nil
}

// Outbound returns every outbound record.
func (m *MockStore) Outbound() []*domain.MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MessageRecord
	for _, rec := range m.Messages {
		if !rec.IsInbound() {
			out = append(out, rec)
		}
	}
	return out
}

// Acquire sets the lease if free.
func (m *MockStore) Acquire(_ context.Context, lease domain.Lease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireErr != nil {
		return false, m.AcquireErr
	}
	if m.LeaseValue != nil || m.AcquireDenied {
		return false, nil
	}
	m.LeaseValue = &lease
	return true, nil
}

// Heartbeat refreshes the lease if held.
func (m *MockStore) Heartbeat(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HeartbeatErr != nil {
		return m.HeartbeatErr
	}
	if m.LeaseValue != nil {
		m.LeaseValue.LastHeartbeatAt = at.Truncate(time.Second)
	}
	return nil
}

// Release clears the lease if it belongs to runID.
func (m *MockStore) Release(_ context.Context, runID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCalls++
	if m.ReleaseErr != nil {
		return false, m.ReleaseErr
	}
	if m.LeaseValue == nil || m.LeaseValue.RunID != runID {
		return false, nil
	}
	m.LeaseValue = nil
	return true, nil
}

// Reclaim clears the lease if it is still expected.
func (m *MockStore) Reclaim(_ context.Context, expected domain.Lease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReclaimErr != nil {
		return false, m.ReclaimErr
	}
	if m.ReclaimLost || !m.LeaseValue.Same(&expected) {
		return false, nil
	}
	m.LeaseValue = nil
	return true, nil
}

// Lease returns a copy of the current lease.
func (m *MockStore) Lease(_ context.Context) (*domain.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LeaseErr != nil {
		return nil, m.LeaseErr
	}
	if m.LeaseValue == nil {
		return nil, nil
	}
	lease := *m.LeaseValue
	return &lease, nil
}

// AddInterrupts records new interrupts.
func (m *MockStore) AddInterrupts(_ context.Context, interrupts []domain.PendingInterrupt) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InterruptErr != nil {
		return 0, m.InterruptErr
	}
	added := 0
	for _, in := range interrupts {
		if slices.Contains(domain.InterruptIDs(m.Interrupts), in.MessageID) {
			continue
		}
		m.Interrupts = append(m.Interrupts, in)
		added++
	}
	return added, nil
}

// ListInterrupts returns recorded interrupts.
func (m *MockStore) ListInterrupts(_ context.Context) ([]domain.PendingInterrupt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InterruptErr != nil {
		return nil, m.InterruptErr
	}
	return slices.Clone(m.Interrupts), nil
}

// ClearInterrupts removes recorded interrupts.
func (m *MockStore) ClearInterrupts(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InterruptErr != nil {
		return m.InterruptErr
	}
	m.Interrupts = nil
	return nil
}

// Reserve stores in-progress records.
func (m *MockStore) Reserve(_ context.Context, draft domain.MemoryDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReserveErr != nil {
		return m.ReserveErr
	}
	if err := draft.Validate(); err != nil {
		return err
	}
	m.Reserved = append(m.Reserved, draft)
	for _, rec := range draft.Records(true) {
		m.Memories[rec.MessageID] = rec
	}
	return nil
}

// Finalize stores final records.
func (m *MockStore) Finalize(_ context.Context, draft domain.MemoryDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FinalizeErr != nil {
		return m.FinalizeErr
	}
	if err := draft.Validate(); err != nil {
		return err
	}
	m.Finalized = append(m.Finalized, draft)
	for _, rec := range draft.Records(false) {
		m.Memories[rec.MessageID] = rec
	}
	return nil
}

// Search filters the index built from Memories.
func (m *MockStore) Search(ctx context.Context, q domain.MemoryQuery) ([]domain.IndexEntry, error) {
	memories, err := m.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.IndexEntry, 0, len(memories))
	for _, mem := range memories {
		entries = append(entries, domain.NewIndexEntry(mem, "tasks/"+domain.TaskDirName(mem.MessageID)))
	}
	return domain.FilterIndex(entries, q), nil
}

// Get returns the record with messageID.
func (m *MockStore) Get(_ context.Context, messageID int64) (*domain.TaskMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.Memories[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMemoryNotFound, domain.TaskDirName(messageID))
	}
	return mem, nil
}

// LoadAll returns every record, newest first.
func (m *MockStore) LoadAll(_ context.Context) ([]*domain.TaskMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	memories := make([]*domain.TaskMemory, 0, len(m.Memories))
	for _, mem := range m.Memories {
		memories = append(memories, mem)
	}
	domain.SortMemories(memories)
	return memories, nil
}

// Cursor returns the stored cursor.
func (m *MockStore) Cursor(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CursorValue, nil
}

// SaveCursor stores the cursor if it moves forward.
func (m *MockStore) SaveCursor(_ context.Context, cursor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cursor > m.CursorValue {
		m.CursorValue = cursor
	}
	return nil
}

// MockTransport is a test double for domain.Transport.
// Each Pull returns the next batch.
type MockTransport struct {
	PullErr error
	AckErr  error
	Batches [][]domain.InboundMessage
	Pulls   int
	Acks    int
}

// Ensure MockTransport implements domain.Transport.
var _ domain.Transport = (*MockTransport)(nil)

// Pull returns the next configured batch.
func (m *MockTransport) Pull(_ context.Context) ([]domain.InboundMessage, error) {
	m.Pulls++
	if m.PullErr != nil {
		return nil, m.PullErr
	}
	if len(m.Batches) == 0 {
		return nil, nil
	}
	batch := m.Batches[0]
	m.Batches = m.Batches[1:]
	return batch, nil
}

// Ack counts acknowledgements.
func (m *MockTransport) Ack(_ context.Context) error {
	m.Acks++
	return m.AckErr
}

// SentMessage is one call recorded by MockSender.
type SentMessage struct {
	Text   string
	Files  []string
	ChatID int64
}

// MockSender is a test double for domain.Sender.
// FailTimes makes the first N calls fail with Err.
type MockSender struct {
	Err       error
	Sent      []SentMessage
	FailTimes int
	mu        sync.Mutex
	calls     int
}

// Ensure MockSender implements domain.Sender.
var _ domain.Sender = (*MockSender)(nil)

// Send records the call.
func (m *MockSender) Send(_ context.Context, chatID int64, text string, files []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil && (m.FailTimes == 0 || m.calls <= m.FailTimes) {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{ChatID: chatID, Text: text, Files: slices.Clone(files)})
	return nil
}

// MockWorker is a test double for domain.Worker.
type MockWorker struct {
	RunFunc func(ctx context.Context, in domain.WorkerInput) (*domain.WorkerOutput, error)
	Output  *domain.WorkerOutput
	Err     error
	Inputs  []domain.WorkerInput
}

// Ensure MockWorker implements domain.Worker.
var _ domain.Worker = (*MockWorker)(nil)

// Run records the input and returns RunFunc's result, or Output and Err.
func (m *MockWorker) Run(ctx context.Context, in domain.WorkerInput) (*domain.WorkerOutput, error) {
	m.Inputs = append(m.Inputs, in)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, in)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Output == nil {
		return &domain.WorkerOutput{}, nil
	}
	return m.Output, nil
}

// LogEntry is one line recorded by MockLogger.
type LogEntry struct {
	Level    string
	Category string
	Msg      string
	TaskID   int64
}

// MockLogger is a test double for domain.Logger.
type MockLogger struct {
	Entries []LogEntry
	mu      sync.Mutex
}

// Ensure MockLogger implements domain.Logger.
var _ domain.Logger = (*MockLogger)(nil)

func (m *MockLogger) add(level string, taskID int64, category, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, LogEntry{Level: level, TaskID: taskID, Category: category, Msg: msg})
}

// Debug records a debug entry.
func (m *MockLogger) Debug(taskID int64, category, msg string) { m.add("DEBUG", taskID, category, msg) }

// Info records an info entry.
func (m *MockLogger) Info(taskID int64, category, msg string) { m.add("INFO", taskID, category, msg) }

// Warn records a warn entry.
func (m *MockLogger) Warn(taskID int64, category, msg string) { m.add("WARN", taskID, category, msg) }

// Error records an error entry.
func (m *MockLogger) Error(taskID int64, category, msg string) { m.add("ERROR", taskID, category, msg) }

// HasLevel returns true if any entry has level.
func (m *MockLogger) HasLevel(level string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.Level == level {
			return true
		}
	}
	return false
}

// MockConfigLoader is a test double for domain.ConfigLoader.
type MockConfigLoader struct {
	Config  *domain.Config
	LoadErr error
}

// NewMockConfigLoader creates a new MockConfigLoader with default config.
func NewMockConfigLoader() *MockConfigLoader {
	return &MockConfigLoader{Config: domain.NewDefaultConfig()}
}

// Ensure MockConfigLoader implements domain.ConfigLoader interface.
var _ domain.ConfigLoader = (*MockConfigLoader)(nil)

// Load returns the configured config or error.
func (m *MockConfigLoader) Load() (*domain.Config, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Config, nil
}

// MockConfigManager is a test double for domain.ConfigManager.
type MockConfigManager struct {
	InitErr          error
	InitConfig       *domain.Config // Config passed to the last InitDataConfig
	DataConfigInfo   domain.ConfigInfo
	GlobalConfigInfo domain.ConfigInfo
	InitCalls        int
}

// NewMockConfigManager creates a new MockConfigManager.
func NewMockConfigManager() *MockConfigManager {
	return &MockConfigManager{}
}

// Ensure MockConfigManager implements domain.ConfigManager interface.
var _ domain.ConfigManager = (*MockConfigManager)(nil)

// GetDataConfigInfo returns the configured data config info.
func (m *MockConfigManager) GetDataConfigInfo() domain.ConfigInfo {
	return m.DataConfigInfo
}

// GetGlobalConfigInfo returns the configured global config info.
func (m *MockConfigManager) GetGlobalConfigInfo() domain.ConfigInfo {
	return m.GlobalConfigInfo
}

// InitDataConfig records the call and returns InitErr.
func (m *MockConfigManager) InitDataConfig(cfg *domain.Config) error {
	m.InitCalls++
	m.InitConfig = cfg
	if m.InitErr != nil {
		return m.InitErr
	}
	m.DataConfigInfo.Exists = true
	return nil
}
