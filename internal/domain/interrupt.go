package domain

import "time"

// PendingInterrupt is a message that arrived while a lease was held.
// It waits for the active task to finish instead of starting a second one.
// Fields are ordered to minimize memory padding.
type PendingInterrupt struct {
	Timestamp   time.Time    `json:"timestamp"`
	DetectedAt  time.Time    `json:"detected_at"`
	Location    *Location    `json:"location,omitempty"`
	Author      Author       `json:"author"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	MessageID   int64        `json:"message_id"`
	ChatID      int64        `json:"chat_id"`
}

// NewPendingInterrupt captures rec as an interrupt detected at now.
func NewPendingInterrupt(rec *MessageRecord, now time.Time) PendingInterrupt {
	return PendingInterrupt{
		MessageID:   rec.ID,
		ChatID:      rec.ChatID,
		Author:      rec.Author,
		Text:        rec.Text,
		Attachments: rec.Attachments,
		Location:    rec.Location,
		Timestamp:   rec.Timestamp,
		DetectedAt:  now.Truncate(time.Second),
	}
}

// InterruptIDs returns the message IDs of interrupts in order.
func InterruptIDs(interrupts []PendingInterrupt) []int64 {
	ids := make([]int64, 0, len(interrupts))
	for _, in := range interrupts {
		ids = append(ids, in.MessageID)
	}
	return ids
}
