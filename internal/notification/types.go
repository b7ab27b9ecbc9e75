package notification

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Provider defines the interface for all notification providers
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send delivers the message and returns the provider's receipt id, if any
	Send(ctx context.Context, notification *Notification, message *Message) (string, error)

	// Validate validates the provider configuration
	Validate(config map[string]interface{}) error
}

// Notification is one delivery target: a provider type plus its settings
type Notification struct {
	Name   string                 `json:"name"`
	Type   string                 `json:"type"` // webhook, sms
	Config map[string]interface{} `json:"config"`
}

// Message represents a notification message to be sent
type Message struct {
	ID        string
	EventType string
	Title     string
	Body      string
	Time      time.Time
	Important bool
	Data      interface{}
}

// Registry holds all registered notification providers
var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// RegisterProvider registers a new notification provider
func RegisterProvider(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func GetProvider(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	return provider, ok
}

// FormatMessage renders a message as plain text for SMS-style channels
func FormatMessage(msg *Message) string {
	if msg.Title == "" {
		return msg.Body
	}
	return fmt.Sprintf("%s: %s", msg.Title, msg.Body)
}

var httpClient = &http.Client{
	Timeout: 10 * time.Second,
}
