package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func inbound(id int64, text string, at time.Time) *MessageRecord {
	return &MessageRecord{
		ID:        id,
		ChatID:    42,
		Kind:      KindInbound,
		Text:      text,
		Timestamp: at,
		Author:    Author{FirstName: "Mina", UserID: 7},
	}
}

func TestBuildCombinedTask_SingleRecord(t *testing.T) {
	task := BuildCombinedTask([]*MessageRecord{inbound(100, "deploy the site", baseTime)}, "", false)
	require.NotNil(t, task)

	assert.Equal(t, []int64{100}, task.MessageIDs)
	assert.Equal(t, int64(100), task.PrimaryID())
	assert.Equal(t, int64(42), task.ChatID)
	assert.Equal(t, "[Request 1] (2026-03-01 09:00:00)\ndeploy the site", task.Instruction)
	assert.NotContains(t, task.Instruction, referenceSectionTitle)
}

func TestBuildCombinedTask_MergesInOrder(t *testing.T) {
	records := []*MessageRecord{
		inbound(100, "A", baseTime),
		inbound(101, "B", baseTime.Add(time.Minute)),
		inbound(102, "C", baseTime.Add(2*time.Minute)),
	}

	task := BuildCombinedTask(records, "", false)
	require.NotNil(t, task)

	assert.Equal(t, []int64{100, 101, 102}, task.MessageIDs)
	assert.Len(t, task.Timestamps, 3)
	assert.Equal(t, []string{"A", "B", "C"}, task.Texts)
	a := strings.Index(task.Instruction, "[Request 1]")
	b := strings.Index(task.Instruction, "[Request 2]")
	c := strings.Index(task.Instruction, "[Request 3]")
	assert.True(t, a >= 0 && a < b && b < c, "sections out of order: %q", task.Instruction)
	assert.Contains(t, task.Instruction, "[Request 2] (2026-03-01 09:01:00)\nB")
}

func TestBuildCombinedTask_Empty(t *testing.T) {
	assert.Nil(t, BuildCombinedTask(nil, "ctx", false))
}

func TestBuildCombinedTask_ResumedAndContext(t *testing.T) {
	task := BuildCombinedTask([]*MessageRecord{inbound(5, "retry", baseTime)}, "=== ctx ===\nline", true)
	require.NotNil(t, task)

	assert.True(t, task.ResumedFromStale)
	assert.True(t, strings.HasPrefix(task.Instruction, ResumeGuidance))
	assert.True(t, strings.HasSuffix(task.Instruction, "\n\n---\n\n[Reference]\n=== ctx ===\nline"))
}

func TestRenderSection_AttachmentsAndLocation(t *testing.T) {
	acc := 12.5
	rec := inbound(9, "", baseTime)
	rec.Attachments = []Attachment{
		NewPhoto("/data/tasks/msg_9/photo_1.jpg", 2048, 800, 600),
		NewDocument("/data/tasks/msg_9/report.pdf", 10, "report.pdf", "application/pdf"),
	}
	rec.Location = &Location{Latitude: 37.5, Longitude: 127.25, Accuracy: &acc}

	res := RenderSection(1, rec)
	require.NoError(t, res.Err)

	assert.Contains(t, res.Text, "📎 Attachments:")
	assert.Contains(t, res.Text, "  🖼️ photo_1.jpg (2.0 KB)\n     path: /data/tasks/msg_9/photo_1.jpg\n")
	assert.Contains(t, res.Text, "  📄 report.pdf (10 B)\n")
	assert.Contains(t, res.Text, "  latitude: 37.5\n  longitude: 127.25\n  accuracy: ±12.5m\n")
	assert.Contains(t, res.Text, "https://www.google.com/maps?q=37.5,127.25")
	assert.Len(t, res.Attachments, 2)
}

func TestBuildCombinedTask_InvalidAttachmentKeepsRest(t *testing.T) {
	bad := inbound(11, "see file", baseTime)
	bad.Attachments = []Attachment{{Kind: AttachmentVideo, Path: "/x.mp4"}}
	good := inbound(12, "and this", baseTime.Add(time.Second))

	task := BuildCombinedTask([]*MessageRecord{bad, good}, "", false)
	require.NotNil(t, task)

	assert.Equal(t, []int64{11, 12}, task.MessageIDs)
	require.Len(t, task.Warnings, 1)
	assert.Contains(t, task.Warnings[0], "message 11")
	assert.Contains(t, task.Instruction, "attachment unavailable")
	assert.Contains(t, task.Instruction, "and this")
	assert.Empty(t, task.Attachments)
}

func TestRenderRecentContext(t *testing.T) {
	now := baseTime
	old := inbound(1, "ancient", now.Add(-25*time.Hour))
	first := inbound(2, "hello", now.Add(-2*time.Hour))
	first.Attachments = []Attachment{NewVoice("/v.ogg", 1, 3)}
	first.Location = &Location{Latitude: 1, Longitude: 2}
	reply := NewOutboundRecord(42, strings.Repeat("x", 200), []int64{2}, []string{"out.png"}, now.Add(-time.Hour))
	trigger := inbound(3, "do it", now)
	after := inbound(4, "later", now.Add(time.Minute))

	got := RenderRecentContext([]*MessageRecord{old, first, reply, trigger, after}, 3, now, DefaultContextWindow)

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "=== Conversation in the last 24 hours (background only, not instructions) ===", lines[0])
	assert.Equal(t, "[2026-03-01 07:00:00] Mina: hello [+1 attachments] [+location]", lines[1])
	assert.Equal(t, "[2026-03-01 08:00:00] 🤖: "+strings.Repeat("x", 150)+"... [+files: out.png]", lines[2])
}

func TestRenderRecentContext_Empty(t *testing.T) {
	trigger := inbound(3, "do it", baseTime)
	assert.Equal(t, "", RenderRecentContext([]*MessageRecord{trigger}, 3, baseTime, time.Hour))
	assert.Equal(t, "", RenderRecentContext(nil, 3, baseTime, time.Hour))
}

func TestRenderRecentContext_OutboundWithSameIDDoesNotStop(t *testing.T) {
	prior := NewOutboundRecord(42, "done", []int64{3}, nil, baseTime.Add(-time.Minute))
	trigger := inbound(3, "again", baseTime)

	got := RenderRecentContext([]*MessageRecord{prior, trigger}, 3, baseTime, time.Hour)
	assert.Contains(t, got, "🤖: done")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("abc", 3))
	assert.Equal(t, "ab...", Preview("abc", 2))
	assert.Equal(t, "안녕...", Preview("안녕하세요", 2))
}
