package boardwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Notifier delivers a formatted notification to the chat endpoint. Send
// must gracefully degrade to text-only when a media batch fails.
type Notifier interface {
	Send(ctx context.Context, text string, media []MaterializedMedia) error
	SendText(ctx context.Context, text string) error
}

// TelegramNotifier sends notifications through the Telegram Bot API using
// sendMessage and sendMediaGroup.
type TelegramNotifier struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:   token,
		chatID:  chatID,
		apiBase: "https://api.telegram.org",
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// apiResult is the envelope every Bot API method returns.
type apiResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// mediaGroupItem is one entry of the sendMediaGroup media array.
type mediaGroupItem struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// Send delivers text plus up to ten media items as one media group with the
// caption on the first item. A failed media group falls back to text-only
// delivery of the same caption.
func (n *TelegramNotifier) Send(ctx context.Context, text string, media []MaterializedMedia) error {
	if len(media) == 0 {
		return n.SendText(ctx, text)
	}
	if len(media) > MaxMediaPerPost {
		media = media[:MaxMediaPerPost]
	}

	if err := n.sendMediaGroup(ctx, text, media); err != nil {
		log.Printf("ERROR: Media group send failed, falling back to text: %v", err)
		return n.SendText(ctx, text)
	}
	return nil
}

// SendText delivers a plain text message with HTML formatting.
func (n *TelegramNotifier) SendText(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.methodURL("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return n.do(req)
}

// sendMediaGroup uploads the media files as multipart form data, with
// attach:// references binding the media array entries to the file parts.
func (n *TelegramNotifier) sendMediaGroup(ctx context.Context, caption string, media []MaterializedMedia) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	group := make([]mediaGroupItem, 0, len(media))
	for i, item := range media {
		fileKey := fmt.Sprintf("media%d", i)

		entry := mediaGroupItem{
			Type:  telegramType(item.Kind),
			Media: "attach://" + fileKey,
		}
		if i == 0 {
			entry.Caption = caption
			entry.ParseMode = "HTML"
		}
		group = append(group, entry)

		if err := n.writeFilePart(writer, fileKey, item.Path); err != nil {
			return err
		}
	}

	groupJSON, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("failed to marshal media group: %w", err)
	}
	writer.WriteField("chat_id", n.chatID)
	writer.WriteField("media", string(groupJSON))

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.methodURL("sendMediaGroup"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return n.do(req)
}

// writeFilePart streams one local file into the multipart body.
func (n *TelegramNotifier) writeFilePart(writer *multipart.Writer, fileKey, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile(fileKey, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	return nil
}

// do executes the request and decodes the Bot API result envelope.
func (n *TelegramNotifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	var result apiResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("telegram returned status %d with unreadable body", resp.StatusCode)
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected request: %s", result.Description)
	}
	return nil
}

// methodURL builds the Bot API URL for a method.
func (n *TelegramNotifier) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", n.apiBase, n.token, method)
}

// telegramType maps a MediaKind to the Bot API media type string.
func telegramType(kind MediaKind) string {
	if kind == MediaVideo {
		return "video"
	}
	return "photo"
}
