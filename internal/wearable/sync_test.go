package wearable

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/models"
	"github.com/fuomag9/swasthya-link/internal/tokenstore"
)

const heartRateFixture = `{
  "activities-heart": [{"dateTime": "2023-11-14", "value": {"restingHeartRate": 61}}],
  "activities-heart-intraday": {
    "dataset": [
      {"time": "08:00:00", "value": 64},
      {"time": "08:01:00", "value": 66},
      {"time": "08:02:00", "value": 71}
    ],
    "datasetInterval": 1,
    "datasetType": "minute"
  }
}`

type recorder struct {
	mu     sync.Mutex
	kinds  []string
	counts []int
}

func (r *recorder) Forward(_ context.Context, kind string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.counts = append(r.counts, len(payload.([]models.HeartRateSample)))
	return nil
}

func (r *recorder) Broadcast(msgType string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, msgType)
	r.counts = append(r.counts, payload.(*SyncResult).Fetched)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.HeartRateSample{}))
	return db
}

func TestParseHeartRate(t *testing.T) {
	day := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)

	samples, err := ParseHeartRate([]byte(heartRateFixture), "activities-heart-intraday.dataset", "fitbit", day)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, time.Date(2023, 11, 14, 8, 2, 0, 0, time.UTC), samples[2].RecordedAt)
	assert.Equal(t, 71, samples[2].BPM)
	assert.Equal(t, "fitbit", samples[0].Provider)

	samples, err = ParseHeartRate([]byte(`{"activities-heart":[]}`), "", "fitbit", day)
	require.NoError(t, err)
	assert.Empty(t, samples)

	_, err = ParseHeartRate([]byte(`{"activities-heart-intraday":{"dataset":[{"time":"8am","value":60}]}}`), "", "fitbit", day)
	assert.Error(t, err)

	_, err = ParseHeartRate([]byte(`<html>`), "", "fitbit", day)
	assert.Error(t, err)
}

func TestSyncer_StoresForwardsAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "A", RefreshToken: "R", ExpiresAt: t0.Unix() + 3600, TokenType: "Bearer"})
	h.provider.set(func(p *fakeProvider) {
		p.heartRateBody = heartRateFixture
		p.validAccess = "A"
	})

	db := newTestDB(t)
	rec := &recorder{}
	s := NewSyncer(h.manager, db, rec, rec, zap.NewNop())
	day := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)

	res, err := s.Sync(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "2023-11-14", res.Date)
	assert.Equal(t, 3, res.Fetched)
	require.NotNil(t, res.Latest)
	assert.Equal(t, 71, res.Latest.BPM)

	assert.Equal(t, []string{"heart_rate", "wearable_sync"}, rec.kinds)
	assert.Equal(t, []int{3, 3}, rec.counts)

	// a second run upserts instead of duplicating
	_, err = s.Sync(ctx, day)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.HeartRateSample{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
	assert.Zero(t, h.provider.refreshes.Load())
}

func TestSyncer_RefreshesOnRejectedToken(t *testing.T) {
	h := newHarness(t)
	h.seed(t, &tokenstore.Record{AccessToken: "revoked", RefreshToken: "R", ExpiresAt: t0.Unix() + 3600, TokenType: "Bearer"})
	h.provider.set(func(p *fakeProvider) {
		p.heartRateBody = heartRateFixture
		p.validAccess = "A2"
	})

	s := NewSyncer(h.manager, newTestDB(t), nil, nil, zap.NewNop())

	res, err := s.Sync(context.Background(), time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.EqualValues(t, 1, h.provider.refreshes.Load())
	assert.EqualValues(t, 2, h.provider.apiCalls.Load())
}

func TestSyncer_NotConnected(t *testing.T) {
	h := newHarness(t)
	s := NewSyncer(h.manager, newTestDB(t), nil, nil, zap.NewNop())

	_, err := s.Sync(context.Background(), time.Now())

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, h.provider.apiCalls.Load())
}
