package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookProvider posts JSON events to the alert gateway
type WebhookProvider struct{}

func init() {
	RegisterProvider(&WebhookProvider{})
}

func (w *WebhookProvider) Name() string {
	return "webhook"
}

func (w *WebhookProvider) Send(ctx context.Context, notification *Notification, message *Message) (string, error) {
	url, _ := notification.Config["webhook_url"].(string)
	token, _ := notification.Config["token"].(string)
	customHeaders, _ := notification.Config["headers"].(map[string]interface{})

	if url == "" {
		return "", fmt.Errorf("webhook_url is required")
	}

	payload := map[string]interface{}{
		"id":         message.ID,
		"event_type": message.EventType,
		"title":      message.Title,
		"message":    message.Body,
		"time":       message.Time.UTC().Format(time.RFC3339),
		"important":  message.Important,
	}
	if message.Data != nil {
		payload["data"] = message.Data
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Swasthya-Link/1.0")
	req.Header.Set("X-Event-ID", message.ID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range customHeaders {
		if strValue, ok := value.(string); ok {
			req.Header.Set(key, strValue)
		}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return message.ID, nil
}

func (w *WebhookProvider) Validate(config map[string]interface{}) error {
	url, ok := config["webhook_url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("webhook_url is required")
	}

	return nil
}
