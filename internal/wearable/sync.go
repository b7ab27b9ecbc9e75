package wearable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fuomag9/swasthya-link/internal/models"
	"github.com/fuomag9/swasthya-link/internal/tokenstore"
	"github.com/fuomag9/swasthya-link/internal/websocket"
)

const maxResponseBytes = 4 << 20

// Forwarder relays synced readings to the external gateway
type Forwarder interface {
	Forward(ctx context.Context, kind string, payload interface{}) error
}

// Broadcaster pushes live updates to dashboard clients
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// SyncResult summarizes one heart-rate sync run
type SyncResult struct {
	Date    string                  `json:"date"`
	Fetched int                     `json:"fetched"`
	Stored  int                     `json:"stored"`
	Latest  *models.HeartRateSample `json:"latest,omitempty"`
}

// Syncer pulls intraday heart-rate samples from the provider
type Syncer struct {
	manager     *Manager
	db          *gorm.DB
	forwarder   Forwarder
	broadcaster Broadcaster
	log         *zap.Logger

	group singleflight.Group
}

// NewSyncer creates a heart-rate syncer. forwarder and broadcaster may be nil.
func NewSyncer(manager *Manager, db *gorm.DB, forwarder Forwarder, broadcaster Broadcaster, log *zap.Logger) *Syncer {
	return &Syncer{
		manager:     manager,
		db:          db,
		forwarder:   forwarder,
		broadcaster: broadcaster,
		log:         log.Named("wearable-sync"),
	}
}

// Sync fetches and stores the samples for day. Concurrent calls for the
// same day share one run.
func (s *Syncer) Sync(ctx context.Context, day time.Time) (*SyncResult, error) {
	date := day.Format(time.DateOnly)
	v, err, shared := s.group.Do(date, func() (interface{}, error) {
		return s.run(ctx, day)
	})
	if shared {
		s.log.Debug("Joined in-flight sync", zap.String("date", date))
	}
	if err != nil {
		return nil, err
	}
	return v.(*SyncResult), nil
}

func (s *Syncer) run(ctx context.Context, day time.Time) (*SyncResult, error) {
	profile := s.manager.client.Profile()
	if profile.HeartRateURL == "" {
		return nil, fmt.Errorf("provider %s has no heart-rate endpoint configured", profile.Name)
	}

	date := day.Format(time.DateOnly)
	var body []byte
	err := s.manager.Use(ctx, func(ctx context.Context, rec *tokenstore.Record) error {
		var err error
		body, err = s.fetch(ctx, strings.ReplaceAll(profile.HeartRateURL, "{date}", date), rec)
		return err
	})
	if err != nil {
		return nil, err
	}

	samples, err := ParseHeartRate(body, profile.HeartRatePath, profile.Name, day)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Date: date, Fetched: len(samples)}
	if len(samples) == 0 {
		s.log.Info("No heart-rate samples returned", zap.String("date", date))
		return result, nil
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "recorded_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"bpm"}),
	}).CreateInBatches(&samples, 500)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to store heart-rate samples: %w", res.Error)
	}
	result.Stored = int(res.RowsAffected)
	latest := samples[len(samples)-1]
	result.Latest = &latest

	s.log.Info("Heart-rate sync complete",
		zap.String("date", date),
		zap.Int("fetched", result.Fetched),
		zap.Int("stored", result.Stored))

	if s.forwarder != nil {
		if err := s.forwarder.Forward(ctx, "heart_rate", samples); err != nil {
			s.log.Warn("Failed to forward heart-rate samples", zap.Error(err))
		}
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(websocket.TypeWearableSync, result); err != nil {
			s.log.Warn("Failed to broadcast sync result", zap.Error(err))
		}
	}

	return result, nil
}

func (s *Syncer) fetch(ctx context.Context, url string, rec *tokenstore.Record) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create heart-rate request: %w", err)
	}
	req.Header.Set("Authorization", rec.TokenType+" "+rec.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.manager.client.HTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("heart-rate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read heart-rate response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAccessTokenRejected
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("heart-rate request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ParseHeartRate extracts {time, value} samples found at path. Times are
// clock times on day, in day's location.
func ParseHeartRate(body []byte, path, provider string, day time.Time) ([]models.HeartRateSample, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("heart-rate response is not valid JSON")
	}
	if path == "" {
		path = "activities-heart-intraday.dataset"
	}

	date := day.Format(time.DateOnly)
	var samples []models.HeartRateSample
	for _, item := range gjson.GetBytes(body, path).Array() {
		clock := item.Get("time").String()
		value := item.Get("value")
		if clock == "" || !value.Exists() {
			continue
		}
		at, err := time.ParseInLocation(time.DateTime, date+" "+clock, day.Location())
		if err != nil {
			return nil, fmt.Errorf("invalid sample time %q: %w", clock, err)
		}
		samples = append(samples, models.HeartRateSample{
			Provider:   provider,
			RecordedAt: at,
			BPM:        int(value.Int()),
		})
	}
	return samples, nil
}
