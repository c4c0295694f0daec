package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/runoshun/relay/internal/domain"
)

// MaxMessageRunes is the Bot API limit for one text message.
const MaxMessageRunes = 4096

// Sender implements domain.Sender with sendMessage and sendDocument.
type Sender struct {
	client *Client
}

// Ensure Sender implements domain.Sender.
var _ domain.Sender = (*Sender)(nil)

// NewSender creates a new Sender.
func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

// Send delivers text in chunks, then every file as a document.
// It stops at the first failure.
func (s *Sender) Send(ctx context.Context, chatID int64, text string, files []string) error {
	for _, chunk := range SplitText(text, MaxMessageRunes) {
		payload := map[string]any{"chat_id": chatID, "text": chunk}
		if err := s.client.call(ctx, "sendMessage", payload, nil); err != nil {
			return err
		}
	}
	for _, path := range files {
		if err := s.client.sendFile(ctx, "sendDocument", "document", chatID, path); err != nil {
			return fmt.Errorf("send file: %w", err)
		}
	}
	return nil
}

// SplitText cuts text into chunks of at most max runes, preferring line breaks.
// Blank text yields no chunks.
func SplitText(text string, max int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var chunks []string
	for utf8.RuneCountInString(text) > max {
		runes := []rune(text)
		cut := max
		if i := lastIndexRune(runes[:max], '\n'); i > 0 {
			cut = i + 1
		}
		chunks = append(chunks, string(runes[:cut]))
		text = string(runes[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
