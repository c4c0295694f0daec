package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Memory constants.
const (
	InProgressResult = "(in progress...)"
	MaxKeywords      = 10
	minKeywordRunes  = 2
)

// TaskMemory is the durable instruction/result record of one unit of work.
// A primary record is keyed by the first message ID of the unit; every other
// message ID of the unit gets a reference record pointing at the primary.
// Fields are ordered to minimize memory padding.
type TaskMemory struct {
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" yaml:"updated_at"`
	Instruction string      `json:"instruction" yaml:"instruction"`
	Result      string      `json:"result" yaml:"result"`
	MessageIDs  []int64     `json:"message_ids" yaml:"message_ids"`
	Timestamps  []time.Time `json:"timestamps" yaml:"timestamps"`
	Files       []string    `json:"files,omitempty" yaml:"files,omitempty"`
	Keywords    []string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	MessageID   int64       `json:"message_id" yaml:"message_id"`
	PrimaryID   int64       `json:"primary_id,omitempty" yaml:"primary_id,omitempty"` // 0 for a primary record
	ChatID      int64       `json:"chat_id" yaml:"chat_id"`
	InProgress  bool        `json:"in_progress" yaml:"in_progress"`
}

// IsReference returns true if the record only points at another task's primary record.
func (m *TaskMemory) IsReference() bool {
	return m.PrimaryID != 0
}

// Content renders the record as the memory text handed to workers.
func (m *TaskMemory) Content() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[time] %s\n", m.UpdatedAt.Format(TimestampLayout))
	if len(m.MessageIDs) > 1 {
		fmt.Fprintf(&b, "[message ids] %s (%d merged)\n", joinIDs(m.MessageIDs), len(m.MessageIDs))
	} else {
		fmt.Fprintf(&b, "[message ids] %d\n", m.MessageID)
	}
	fmt.Fprintf(&b, "[source] Telegram (chat_id: %d)\n", m.ChatID)
	b.WriteString("[message dates]\n")
	for i, ts := range m.Timestamps {
		id := m.MessageID
		if i < len(m.MessageIDs) {
			id = m.MessageIDs[i]
		}
		fmt.Fprintf(&b, "  - msg_%d: %s\n", id, ts.Format(TimestampLayout))
	}
	fmt.Fprintf(&b, "[instruction] %s\n", m.Instruction)
	if m.IsReference() {
		fmt.Fprintf(&b, "[reference] tasks/%s/\n", TaskDirName(m.PrimaryID))
	}
	fmt.Fprintf(&b, "[result] %s\n", m.Result)
	if len(m.Files) > 0 {
		fmt.Fprintf(&b, "[files] %s\n", strings.Join(m.Files, ", "))
	}
	return b.String()
}

// IndexEntry is the searchable summary of one TaskMemory.
// Fields are ordered to minimize memory padding.
type IndexEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Instruction   string    `json:"instruction"`
	ResultPreview string    `json:"result_summary"`
	TaskDir       string    `json:"task_dir"`
	Keywords      []string  `json:"keywords"`
	Files         []string  `json:"files"`
	MessageID     int64     `json:"message_id"`
	PrimaryID     int64     `json:"primary_id,omitempty"`
	ChatID        int64     `json:"chat_id"`
}

// NewIndexEntry summarizes m. taskDir is the directory holding the record.
func NewIndexEntry(m *TaskMemory, taskDir string) IndexEntry {
	var ts time.Time
	if len(m.Timestamps) > 0 {
		ts = m.Timestamps[0]
	}
	files := m.Files
	if files == nil {
		files = []string{}
	}
	keywords := m.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return IndexEntry{
		MessageID:     m.MessageID,
		PrimaryID:     m.PrimaryID,
		Timestamp:     ts,
		Instruction:   m.Instruction,
		Keywords:      keywords,
		ResultPreview: Preview(m.Result, ResultPreviewRunes),
		Files:         files,
		ChatID:        m.ChatID,
		TaskDir:       taskDir,
	}
}

// MemoryDraft carries what Reserve and Finalize write for one unit of work.
// Fields are ordered to minimize memory padding.
type MemoryDraft struct {
	StartedAt   time.Time
	At          time.Time // Time of this write
	Instruction string
	Result      string // Ignored by Reserve
	MessageIDs  []int64
	Timestamps  []time.Time
	Texts       []string // Record texts keywords come from; Instruction when empty
	Files       []string // Ignored by Reserve
	ChatID      int64
}

// PrimaryID returns the first message ID of the draft.
func (d MemoryDraft) PrimaryID() int64 {
	if len(d.MessageIDs) == 0 {
		return 0
	}
	return d.MessageIDs[0]
}

// Validate checks that the draft identifies a unit of work.
func (d MemoryDraft) Validate() error {
	if len(d.MessageIDs) == 0 {
		return ErrEmptyTask
	}
	if len(d.Timestamps) != 0 && len(d.Timestamps) != len(d.MessageIDs) {
		return fmt.Errorf("memory draft: %d timestamps for %d messages", len(d.Timestamps), len(d.MessageIDs))
	}
	return nil
}

// keywords come from what the users wrote, not from the rendered headers.
func (d MemoryDraft) keywords() []string {
	if len(d.Texts) == 0 {
		return ExtractKeywords(d.Instruction)
	}
	return ExtractKeywords(strings.Join(d.Texts, "\n"))
}

// Records expands the draft into its primary record followed by one reference
// record per secondary message ID. A reserved draft gets the in-progress placeholder.
func (d MemoryDraft) Records(reserved bool) []*TaskMemory {
	primaryID := d.PrimaryID()
	result := d.Result
	files := d.Files
	if reserved {
		result = InProgressResult
		files = nil
	}

	timestamps := d.Timestamps
	if len(timestamps) == 0 {
		timestamps = make([]time.Time, len(d.MessageIDs))
		for i := range timestamps {
			timestamps[i] = d.At
		}
	}

	primary := &TaskMemory{
		MessageID:   primaryID,
		ChatID:      d.ChatID,
		MessageIDs:  append([]int64(nil), d.MessageIDs...),
		Timestamps:  append([]time.Time(nil), timestamps...),
		Instruction: d.Instruction,
		Result:      result,
		Files:       append([]string(nil), files...),
		Keywords:    d.keywords(),
		CreatedAt:   d.StartedAt,
		UpdatedAt:   d.At,
		InProgress:  reserved,
	}
	records := []*TaskMemory{primary}

	refResult := result
	if !reserved {
		refResult = Preview(result, ResultPreviewRunes)
	}
	for i, id := range d.MessageIDs[1:] {
		records = append(records, &TaskMemory{
			MessageID:   id,
			PrimaryID:   primaryID,
			ChatID:      d.ChatID,
			MessageIDs:  []int64{id},
			Timestamps:  []time.Time{timestamps[i+1]},
			Instruction: fmt.Sprintf("(merged into %s)", TaskDirName(primaryID)),
			Result:      refResult,
			CreatedAt:   d.StartedAt,
			UpdatedAt:   d.At,
			InProgress:  reserved,
		})
	}
	return records
}

// MemoryQuery filters the memory index. A zero query matches everything.
type MemoryQuery struct {
	MessageID *int64
	Keyword   string
}

// FilterIndex applies q to entries, which must be sorted newest first.
// A message ID query returns at most one entry.
func FilterIndex(entries []IndexEntry, q MemoryQuery) []IndexEntry {
	if q.MessageID != nil {
		for _, e := range entries {
			if e.MessageID == *q.MessageID {
				return []IndexEntry{e}
			}
		}
		return []IndexEntry{}
	}
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	if keyword == "" {
		return entries
	}
	matches := []IndexEntry{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Instruction), keyword) {
			matches = append(matches, e)
			continue
		}
		for _, kw := range e.Keywords {
			if strings.Contains(strings.ToLower(kw), keyword) {
				matches = append(matches, e)
				break
			}
		}
	}
	return matches
}

// SortIndex orders entries by message ID, newest first.
func SortIndex(entries []IndexEntry) {
	slices.SortFunc(entries, func(a, b IndexEntry) int {
		return compareDesc(a.MessageID, b.MessageID)
	})
}

// SortMemories orders records by message ID, newest first.
func SortMemories(memories []*TaskMemory) {
	slices.SortFunc(memories, func(a, b *TaskMemory) int {
		return compareDesc(a.MessageID, b.MessageID)
	})
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

// ExtractKeywords tokenizes instruction on whitespace and keeps up to MaxKeywords
// unique lowercase tokens of at least two runes, in order of first appearance.
func ExtractKeywords(instruction string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, field := range strings.Fields(instruction) {
		token := strings.ToLower(strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if utf8.RuneCountInString(token) < minKeywordRunes {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
