// Package domain contains core business entities and interfaces.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the second-resolution layout used for message timestamps
// in rendered instructions, context and memory text.
const TimestampLayout = "2006-01-02 15:04:05"

// MessageKind distinguishes requests from the chat and notifications sent back to it.
type MessageKind string

// Message kinds.
const (
	KindInbound  MessageKind = "inbound"
	KindOutbound MessageKind = "outbound"
)

// IsValid returns true if the kind is known.
func (k MessageKind) IsValid() bool {
	return k == KindInbound || k == KindOutbound
}

// Author identifies who sent an inbound message.
type Author struct {
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
	FirstName string `json:"first_name,omitempty" yaml:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	UserID    int64  `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}

// DisplayName returns the name shown in rendered context lines.
func (a Author) DisplayName() string {
	switch {
	case a.FirstName != "":
		return a.FirstName
	case a.Username != "":
		return a.Username
	default:
		return "user"
	}
}

// Location is a shared geographic position.
type Location struct {
	Accuracy  *float64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty"` // Horizontal accuracy in meters
	Latitude  float64  `json:"latitude" yaml:"latitude"`
	Longitude float64  `json:"longitude" yaml:"longitude"`
}

// MapURL returns a map link for the location.
func (l Location) MapURL() string {
	return fmt.Sprintf("https://www.google.com/maps?q=%s,%s", formatCoord(l.Latitude), formatCoord(l.Longitude))
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%g", v)
}

// MessageRecord is a single message stored by the coordinator.
// Only Processed changes after creation.
// Fields are ordered to minimize memory padding.
type MessageRecord struct {
	Timestamp   time.Time    `json:"timestamp"`
	Location    *Location    `json:"location,omitempty"`
	Author      Author       `json:"author"`
	Kind        MessageKind  `json:"kind"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTo     []int64      `json:"reply_to,omitempty"` // Outbound only: inbound IDs this record answers
	Files       []string     `json:"files,omitempty"`    // Outbound only: delivered file names
	ID          int64        `json:"message_id"`
	ChatID      int64        `json:"chat_id"`
	Processed   bool         `json:"processed"`
}

// Key returns the uniqueness key of the record within a store.
func (m *MessageRecord) Key() MessageKey {
	return MessageKey{Kind: m.Kind, ID: m.ID}
}

// IsInbound returns true for records received from the chat.
func (m *MessageRecord) IsInbound() bool {
	return m.Kind == KindInbound
}

// MessageKey identifies a record. Inbound and outbound records live in separate ID spaces.
type MessageKey struct {
	Kind MessageKind
	ID   int64
}

// InboundMessage is a raw message returned by a transport pull.
type InboundMessage struct {
	Timestamp   time.Time
	Location    *Location
	Author      Author
	Text        string
	Attachments []Attachment
	ID          int64
	ChatID      int64
}

// NewInboundRecord converts a pulled message into an unprocessed store record.
func NewInboundRecord(msg InboundMessage) *MessageRecord {
	return &MessageRecord{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		Timestamp:   msg.Timestamp.Truncate(time.Second),
		Author:      msg.Author,
		Text:        msg.Text,
		Attachments: msg.Attachments,
		Location:    msg.Location,
		Kind:        KindInbound,
	}
}

// NewOutboundRecord creates the record of a delivered result.
// It takes the ID of the first message it answers.
func NewOutboundRecord(chatID int64, text string, replyTo []int64, files []string, at time.Time) *MessageRecord {
	var id int64
	if len(replyTo) > 0 {
		id = replyTo[0]
	}
	return &MessageRecord{
		ID:        id,
		ChatID:    chatID,
		Timestamp: at.Truncate(time.Second),
		Text:      text,
		ReplyTo:   append([]int64(nil), replyTo...),
		Files:     append([]string(nil), files...),
		Kind:      KindOutbound,
		Processed: true,
	}
}

// IsEmpty returns true if the message carries nothing to act on.
func (m InboundMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0 && m.Location == nil
}
