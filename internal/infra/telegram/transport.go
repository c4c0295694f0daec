package telegram

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/relay/internal/domain"
)

type update struct {
	Message  *message `json:"message"`
	UpdateID int64    `json:"update_id"`
}

type user struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ID        int64  `json:"id"`
}

type photoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
}

type media struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Duration int    `json:"duration"`
}

type location struct {
	HorizontalAccuracy *float64 `json:"horizontal_accuracy"`
	Latitude           float64  `json:"latitude"`
	Longitude          float64  `json:"longitude"`
}

type message struct {
	From     *user       `json:"from"`
	Document *document   `json:"document"`
	Video    *media      `json:"video"`
	Audio    *media      `json:"audio"`
	Voice    *media      `json:"voice"`
	Location *location   `json:"location"`
	Text     string      `json:"text"`
	Caption  string      `json:"caption"`
	Photo    []photoSize `json:"photo"`
	Chat     struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
}

// Transport implements domain.Transport with getUpdates long polling.
// Attachments are downloaded into the message's task directory.
type Transport struct {
	client  *Client
	cursor  domain.CursorStore
	logger  domain.Logger
	allowed []int64
	dataDir string

	mu      sync.Mutex
	pending int64 // Highest update ID of the last pull, not yet acked
}

// Ensure Transport implements domain.Transport.
var _ domain.Transport = (*Transport)(nil)

// NewTransport creates a new Transport. An empty allowed list accepts every user.
func NewTransport(client *Client, cursor domain.CursorStore, logger domain.Logger, dataDir string, allowed []int64) *Transport {
	return &Transport{
		client:  client,
		cursor:  cursor,
		logger:  logger,
		dataDir: dataDir,
		allowed: allowed,
	}
}

// Pull fetches updates after the stored cursor.
func (t *Transport) Pull(ctx context.Context) ([]domain.InboundMessage, error) {
	offset, err := t.cursor.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	var updates []update
	payload := map[string]any{
		"offset":          offset + 1,
		"timeout":         int(t.client.cfg.PollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	if err := t.client.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}

	var messages []domain.InboundMessage
	highest := offset
	for _, u := range updates {
		if u.UpdateID > highest {
			highest = u.UpdateID
		}
		if u.Message == nil {
			continue
		}
		msg := u.Message
		if msg.From != nil && !t.isAllowed(msg.From.ID) {
			t.logger.Warn(0, "telegram", fmt.Sprintf("ignored message %d from user %d", msg.MessageID, msg.From.ID))
			continue
		}
		in := t.convert(ctx, msg)
		if in.IsEmpty() {
			continue
		}
		messages = append(messages, in)
	}

	t.mu.Lock()
	t.pending = highest
	t.mu.Unlock()
	return messages, nil
}

// Ack stores the highest update ID of the last pull.
func (t *Transport) Ack(ctx context.Context) error {
	t.mu.Lock()
	pending := t.pending
	t.mu.Unlock()
	if pending == 0 {
		return nil
	}
	return t.cursor.SaveCursor(ctx, pending)
}

func (t *Transport) isAllowed(userID int64) bool {
	return len(t.allowed) == 0 || slices.Contains(t.allowed, userID)
}

func (t *Transport) convert(ctx context.Context, msg *message) domain.InboundMessage {
	in := domain.InboundMessage{
		ID:        msg.MessageID,
		ChatID:    msg.Chat.ID,
		Timestamp: time.Unix(msg.Date, 0),
		Text:      msg.Caption,
	}
	if strings.TrimSpace(in.Text) == "" {
		in.Text = msg.Text
	}
	if msg.From != nil {
		in.Author = domain.Author{
			UserID:    msg.From.ID,
			Username:  msg.From.Username,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		}
	}
	if loc := msg.Location; loc != nil {
		in.Location = &domain.Location{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Accuracy:  loc.HorizontalAccuracy,
		}
	}

	dir := domain.TaskDir(t.dataDir, msg.MessageID)
	fetch := func(kind domain.AttachmentKind, fileID, name, prefix string) (string, int64, bool) {
		path, size, err := t.client.download(ctx, fileID, dir, name, prefix, msg.MessageID)
		if err != nil {
			t.logger.Warn(msg.MessageID, "telegram", fmt.Sprintf("download %s: %v", kind, err))
			return "", 0, false
		}
		return path, size, true
	}

	if n := len(msg.Photo); n > 0 {
		// Sizes are ascending; the last one is the original.
		p := msg.Photo[n-1]
		if path, size, ok := fetch(domain.AttachmentPhoto, p.FileID, "", "image"); ok {
			in.Attachments = append(in.Attachments, domain.NewPhoto(path, size, p.Width, p.Height))
		}
	}
	if d := msg.Document; d != nil {
		if path, size, ok := fetch(domain.AttachmentDocument, d.FileID, d.FileName, "file"); ok {
			in.Attachments = append(in.Attachments, domain.NewDocument(path, size, d.FileName, d.MIMEType))
		}
	}
	if v := msg.Video; v != nil {
		if path, size, ok := fetch(domain.AttachmentVideo, v.FileID, "", "video"); ok {
			in.Attachments = append(in.Attachments, domain.NewVideo(path, size, v.Duration))
		}
	}
	if a := msg.Audio; a != nil {
		if path, size, ok := fetch(domain.AttachmentAudio, a.FileID, a.FileName, "audio"); ok {
			in.Attachments = append(in.Attachments, domain.NewAudio(path, size, a.FileName, a.Duration))
		}
	}
	if v := msg.Voice; v != nil {
		if path, size, ok := fetch(domain.AttachmentVoice, v.FileID, "", "voice"); ok {
			in.Attachments = append(in.Attachments, domain.NewVoice(path, size, v.Duration))
		}
	}
	return in
}
