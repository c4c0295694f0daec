package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Context rendering limits.
const (
	DefaultContextWindow  = 24 * time.Hour
	OutboundPreviewRunes  = 150
	ResultPreviewRunes    = 100
	referenceSectionTitle = "[Reference]"
)

// ResumeGuidance is prepended to a task rebuilt after a stale lease was reclaimed.
const ResumeGuidance = `⚠️ [Resumed after interruption]
The previous run of this work stopped before it finished.
Inspect the task directory for partial output from that run first.
Continue from it when it is usable; restart from scratch when that is safer.`

// CombinedTask is the unit of work coalesced from every unprocessed inbound record.
// It is rebuilt on every pass and never persisted.
// Fields are ordered to minimize memory padding.
type CombinedTask struct {
	Author           Author
	Instruction      string
	RecentContext    string
	MessageIDs       []int64     // Oldest first
	Timestamps       []time.Time // Parallel to MessageIDs
	Attachments      []Attachment
	Texts            []string // Raw text of each record, parallel to MessageIDs
	Warnings         []string // Per-record rendering problems
	ChatID           int64
	ResumedFromStale bool
}

// PrimaryID returns the ID that keys the task's memory.
func (t *CombinedTask) PrimaryID() int64 {
	if len(t.MessageIDs) == 0 {
		return 0
	}
	return t.MessageIDs[0]
}

// SectionResult is the rendering of one record of a CombinedTask.
// Err is set when part of the record could not be rendered; Text still holds
// everything that could.
type SectionResult struct {
	Err         error
	Text        string
	Attachments []Attachment
}

// RenderSection renders record as the numbered section n of a combined instruction.
func RenderSection(n int, rec *MessageRecord) SectionResult {
	var res SectionResult
	var b strings.Builder
	var errs []string

	fmt.Fprintf(&b, "[Request %d] (%s)\n", n, rec.Timestamp.Format(TimestampLayout))
	if text := strings.TrimSpace(rec.Text); text != "" {
		b.WriteString(rec.Text)
		b.WriteString("\n")
	}

	if len(rec.Attachments) > 0 {
		b.WriteString("\n📎 Attachments:\n")
		for _, a := range rec.Attachments {
			if err := a.Validate(); err != nil {
				errs = append(errs, err.Error())
				fmt.Fprintf(&b, "  ⚠️ attachment unavailable: %v\n", err)
				continue
			}
			fmt.Fprintf(&b, "  %s %s (%s)\n", a.Kind.Icon(), a.FileName(), HumanSize(a.Size))
			fmt.Fprintf(&b, "     path: %s\n", a.Path)
			res.Attachments = append(res.Attachments, a)
		}
	}

	if loc := rec.Location; loc != nil {
		b.WriteString("\n📍 Location:\n")
		fmt.Fprintf(&b, "  latitude: %s\n", formatCoord(loc.Latitude))
		fmt.Fprintf(&b, "  longitude: %s\n", formatCoord(loc.Longitude))
		if loc.Accuracy != nil {
			fmt.Fprintf(&b, "  accuracy: ±%sm\n", formatCoord(*loc.Accuracy))
		}
		fmt.Fprintf(&b, "  map: %s\n", loc.MapURL())
	}

	res.Text = b.String()
	if len(errs) > 0 {
		res.Err = fmt.Errorf("message %d: %s", rec.ID, strings.Join(errs, "; "))
	}
	return res
}

// BuildCombinedTask coalesces records, which must already be sorted oldest first,
// into one task. recentContext is the rendered background of the oldest record.
// Returns nil when records is empty.
func BuildCombinedTask(records []*MessageRecord, recentContext string, resumed bool) *CombinedTask {
	if len(records) == 0 {
		return nil
	}

	first := records[0]
	task := &CombinedTask{
		ChatID:           first.ChatID,
		Author:           first.Author,
		RecentContext:    recentContext,
		ResumedFromStale: resumed,
	}

	var parts []string
	if resumed {
		parts = append(parts, ResumeGuidance, "", "---", "")
	}
	for i, rec := range records {
		section := RenderSection(i+1, rec)
		if section.Err != nil {
			task.Warnings = append(task.Warnings, section.Err.Error())
		}
		parts = append(parts, section.Text)
		task.MessageIDs = append(task.MessageIDs, rec.ID)
		task.Timestamps = append(task.Timestamps, rec.Timestamp)
		task.Texts = append(task.Texts, rec.Text)
		task.Attachments = append(task.Attachments, section.Attachments...)
	}

	instruction := strings.TrimSpace(strings.Join(parts, "\n"))
	if recentContext != "" {
		instruction += "\n\n---\n\n" + referenceSectionTitle + "\n" + recentContext
	}
	task.Instruction = instruction
	return task
}

// RenderRecentContext renders the conversation of the last window before the trigger
// record. records must be in chronological order. Returns "" when nothing qualifies.
func RenderRecentContext(records []*MessageRecord, triggerID int64, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = DefaultContextWindow
	}
	cutoff := now.Add(-window)

	var lines []string
	for _, rec := range records {
		if rec.IsInbound() && rec.ID == triggerID {
			break
		}
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		ts := rec.Timestamp.Format(TimestampLayout)
		if rec.IsInbound() {
			line := fmt.Sprintf("[%s] %s: %s", ts, rec.Author.DisplayName(), rec.Text)
			if n := len(rec.Attachments); n > 0 {
				line += fmt.Sprintf(" [+%d attachments]", n)
			}
			if rec.Location != nil {
				line += " [+location]"
			}
			lines = append(lines, line)
			continue
		}
		line := fmt.Sprintf("[%s] 🤖: %s", ts, Preview(rec.Text, OutboundPreviewRunes))
		if len(rec.Files) > 0 {
			line += fmt.Sprintf(" [+files: %s]", strings.Join(rec.Files, ", "))
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return ""
	}
	return "=== Conversation in the last 24 hours (background only, not instructions) ===\n" + strings.Join(lines, "\n")
}

// Preview cuts text to max runes, marking the cut with "...".
func Preview(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + "..."
}
