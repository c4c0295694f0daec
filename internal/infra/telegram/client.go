// Package telegram implements the transport and sender on the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultAPIRoot = "https://api.telegram.org"

// Config holds Bot API settings.
type Config struct {
	Token       string
	APIRoot     string
	PollTimeout time.Duration // Long-poll timeout passed to getUpdates
}

// Client is a minimal Bot API client.
type Client struct {
	http *http.Client
	cfg  Config
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.APIRoot) == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.PollTimeout + 30*time.Second},
	}
}

type apiResponse struct {
	Description string `json:"description"`
	OK          bool   `json:"ok"`
}

func (c *Client) methodURL(method string) string {
	return strings.TrimRight(c.cfg.APIRoot, "/") + "/bot" + c.cfg.Token + "/" + method
}

// call posts payload as JSON and decodes the "result" envelope into out.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

// sendFile uploads path as the multipart field of method.
func (c *Client) sendFile(ctx context.Context, method, field string, chatID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", fmt.Sprintf("%d", chatID)); err != nil {
		return err
	}
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, method, nil)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var base apiResponse
	_ = json.Unmarshal(respBody, &base)
	if resp.StatusCode >= 300 || !base.OK {
		desc := base.Description
		if desc == "" {
			desc = strings.TrimSpace(string(respBody))
		}
		return fmt.Errorf("telegram %s: status=%d: %s", method, resp.StatusCode, desc)
	}

	if out != nil {
		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("decode %s: %w", method, err)
		}
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
}

// download fetches the file identified by fileID into dir/name, creating dir.
// An empty name is derived from prefix, messageID and the remote extension.
func (c *Client) download(ctx context.Context, fileID, dir, name, prefix string, messageID int64) (string, int64, error) {
	var info fileInfo
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &info); err != nil {
		return "", 0, err
	}
	if info.FilePath == "" {
		return "", 0, fmt.Errorf("telegram getFile: no file_path for %s", fileID)
	}

	if name == "" {
		ext := filepath.Ext(info.FilePath)
		if ext == "" {
			ext = ".jpg"
		}
		name = fmt.Sprintf("%s_%d%s", prefix, messageID, ext)
	}
	name = filepath.Base(name)

	url := strings.TrimRight(c.cfg.APIRoot, "/") + "/file/bot" + c.cfg.Token + "/" + info.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("download %s: status=%d", name, resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create task dir: %w", err)
	}
	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", name, err)
	}
	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write %s: %w", name, err)
	}
	return path, n, nil
}
