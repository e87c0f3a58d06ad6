package notify

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
	"strconv"
	"time"
)

// WebhookNotifier forwards notifications and file deliveries to an
// external relay endpoint (the chat bridge). Messages go as JSON POSTs
// to <base>/message, files as multipart POSTs to <base>/file.
type WebhookNotifier struct {
	baseURL string
	client  *http.Client
}

// NewWebhookNotifier creates a webhook notifier targeting baseURL.
func NewWebhookNotifier(baseURL string, timeout time.Duration) *WebhookNotifier {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebhookNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type messagePayload struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// Notify posts a text message for the user to the relay.
func (n *WebhookNotifier) Notify(ctx context.Context, userID int64, text string) error {
	body, err := json.Marshal(messagePayload{UserID: userID, Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return n.do(req)
}

// SendFile streams the stored file to the relay for forwarding to the
// buyer. The relay sees the original filename, not the stored one.
func (n *WebhookNotifier) SendFile(ctx context.Context, userID int64, filePath, originalName string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open stored file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("user_id", strconv.FormatInt(userID, 10)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(originalName))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read stored file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/file", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return n.do(req)
}

func (n *WebhookNotifier) do(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Notifier      = (*WebhookNotifier)(nil)
	_ FileDeliverer = (*WebhookNotifier)(nil)
)
