package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/config"
	"github.com/fuomag9/swasthya-link/internal/models"
	"github.com/fuomag9/swasthya-link/internal/websocket"
)

// StatusNoContacts is recorded when an alert had nobody to reach
const StatusNoContacts = "no_contacts"

// alertTimeout bounds delivery and recording once an alert is detached
// from its caller
const alertTimeout = time.Minute

var errSMSNotConfigured = errors.New("sms credentials not configured")

// Broadcaster pushes alert outcomes to dashboard clients
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Result is the outcome of one delivery attempt
type Result struct {
	Target string `json:"target"`
	Type   string `json:"type"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// AlertOutcome is the recorded event plus every delivery result
type AlertOutcome struct {
	Event   *models.EmergencyEvent `json:"event"`
	Results []Result               `json:"results"`
}

// Dispatcher relays alerts to emergency contacts and the gateway
type Dispatcher struct {
	db          *gorm.DB
	cfg         config.AlertConfig
	log         *zap.Logger
	broadcaster Broadcaster

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(db *gorm.DB, cfg config.AlertConfig, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:       db,
		cfg:      cfg,
		log:      log.Named("notification"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// SetBroadcaster attaches the live dashboard feed
func (d *Dispatcher) SetBroadcaster(b Broadcaster) {
	d.broadcaster = b
}

// Alert texts every configured contact and notifies the gateway, all
// concurrently, then records the event. The recorded status counts SMS
// deliveries only; the gateway result is reported alongside.
//
// The alert outlives ctx: a caller that goes away, such as a client that
// disconnects mid-request, does not cancel delivery or recording.
func (d *Dispatcher) Alert(ctx context.Context, eventType, text string) (*AlertOutcome, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()

	msg := &Message{
		ID:        uuid.NewString(),
		EventType: eventType,
		Title:     "Swasthya Link",
		Body:      text,
		Time:      time.Now(),
		Important: eventType != models.EventMedicineReminder,
	}

	contacts := d.cfg.Contacts()
	targets := make([]*Notification, 0, len(contacts)+1)
	for _, number := range contacts {
		targets = append(targets, d.smsTarget(number))
	}
	if gw := d.gatewayTarget(); gw != nil {
		targets = append(targets, gw)
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, n *Notification) {
			defer wg.Done()
			results[i] = d.deliver(ctx, n, msg)
		}(i, target)
	}
	wg.Wait()

	event := &models.EmergencyEvent{
		EventType:     eventType,
		Message:       text,
		Status:        smsStatus(results, len(contacts)),
		FamilyContact: optional(d.cfg.FamilyPhone),
		DoctorContact: optional(d.cfg.DoctorPhone),
	}
	if err := d.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to record emergency event: %w", err)
	}

	d.log.Info("Alert dispatched",
		zap.String("event_id", msg.ID),
		zap.String("event_type", eventType),
		zap.String("status", event.Status))

	outcome := &AlertOutcome{Event: event, Results: results}
	if d.broadcaster != nil {
		if err := d.broadcaster.Broadcast(websocket.TypeAlert, outcome); err != nil {
			d.log.Warn("Failed to broadcast alert", zap.Error(err))
		}
	}
	return outcome, nil
}

// Forward posts synced readings to the gateway. It is a no-op when no
// gateway is configured.
func (d *Dispatcher) Forward(ctx context.Context, kind string, payload interface{}) error {
	gw := d.gatewayTarget()
	if gw == nil {
		return nil
	}

	res := d.deliver(ctx, gw, &Message{
		ID:        uuid.NewString(),
		EventType: kind,
		Title:     "Wearable sync",
		Time:      time.Now(),
		Data:      payload,
	})
	if !res.OK {
		return fmt.Errorf("gateway forward failed: %s", res.Detail)
	}
	return nil
}

// Events returns the most recent recorded alerts, newest first
func (d *Dispatcher) Events(ctx context.Context, limit int) ([]models.EmergencyEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var events []models.EmergencyEvent
	err := d.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification, msg *Message) Result {
	res := Result{Target: n.Name, Type: n.Type}

	provider, ok := GetProvider(n.Type)
	if !ok {
		res.Detail = fmt.Sprintf("unknown notification provider: %s", n.Type)
		return res
	}
	if err := provider.Validate(n.Config); err != nil {
		if n.Type == "sms" {
			err = errSMSNotConfigured
		}
		res.Detail = err.Error()
		return res
	}

	receipt, err := d.breaker(n).Execute(func() (interface{}, error) {
		return provider.Send(ctx, n, msg)
	})
	if err != nil {
		d.log.Warn("Notification failed",
			zap.String("type", n.Type),
			zap.String("target", n.Name),
			zap.Error(err))
		res.Detail = err.Error()
		return res
	}

	res.OK = true
	res.Detail, _ = receipt.(string)
	return res
}

func (d *Dispatcher) breaker(n *Notification) *gobreaker.CircuitBreaker {
	key := n.Type + ":" + n.Name

	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[key]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        key,
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.log.Warn("Notification circuit state changed",
					zap.String("target", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		d.breakers[key] = cb
	}
	return cb
}

func (d *Dispatcher) smsTarget(number string) *Notification {
	n := &Notification{
		Name:   number,
		Type:   "sms",
		Config: map[string]interface{}{"to": number},
	}
	if d.cfg.SMSEnabled() {
		n.Config["api_url"] = d.cfg.SMSAPIURL
		n.Config["account_sid"] = d.cfg.SMSAccountSID
		n.Config["auth_token"] = d.cfg.SMSAuthToken
		n.Config["from"] = d.cfg.SMSFrom
	}
	return n
}

func (d *Dispatcher) gatewayTarget() *Notification {
	if d.cfg.GatewayURL == "" {
		return nil
	}
	return &Notification{
		Name: "gateway",
		Type: "webhook",
		Config: map[string]interface{}{
			"webhook_url": d.cfg.GatewayURL,
			"token":       d.cfg.GatewayToken,
		},
	}
}

func smsStatus(results []Result, contacts int) string {
	if contacts == 0 {
		return StatusNoContacts
	}
	sent := 0
	for _, r := range results {
		if r.Type == "sms" && r.OK {
			sent++
		}
	}
	return fmt.Sprintf("%d/%d sent", sent, contacts)
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
