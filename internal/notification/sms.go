package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// SMSProvider sends text messages through a Twilio-compatible Messages API
type SMSProvider struct{}

func init() {
	RegisterProvider(&SMSProvider{})
}

func (s *SMSProvider) Name() string {
	return "sms"
}

func (s *SMSProvider) Send(ctx context.Context, notification *Notification, message *Message) (string, error) {
	if err := s.Validate(notification.Config); err != nil {
		return "", err
	}

	apiURL, _ := notification.Config["api_url"].(string)
	accountSID, _ := notification.Config["account_sid"].(string)
	authToken, _ := notification.Config["auth_token"].(string)
	from, _ := notification.Config["from"].(string)
	to, _ := notification.Config["to"].(string)

	if apiURL == "" {
		apiURL = "https://api.twilio.com/2010-04-01"
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(apiURL, "/"), url.PathEscape(accountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", FormatMessage(message))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(accountSID, authToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg := gjson.GetBytes(body, "message").String(); msg != "" {
			return "", fmt.Errorf("sms api returned status %d: %s", resp.StatusCode, msg)
		}
		return "", fmt.Errorf("sms api returned status %d", resp.StatusCode)
	}

	return gjson.GetBytes(body, "sid").String(), nil
}

func (s *SMSProvider) Validate(config map[string]interface{}) error {
	for _, key := range []string{"account_sid", "auth_token", "from", "to"} {
		if v, ok := config[key].(string); !ok || v == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}
