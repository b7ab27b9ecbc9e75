package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/config"
	"github.com/fuomag9/swasthya-link/internal/models"
	"github.com/fuomag9/swasthya-link/internal/notification"
	"github.com/fuomag9/swasthya-link/internal/oauth"
	"github.com/fuomag9/swasthya-link/internal/wearable"
)

const jobTimeout = 2 * time.Minute

// Alerter relays a message to the emergency contacts
type Alerter interface {
	Alert(ctx context.Context, eventType, text string) (*notification.AlertOutcome, error)
}

// HeartRateSyncer pulls wearable samples for a day
type HeartRateSyncer interface {
	Sync(ctx context.Context, day time.Time) (*wearable.SyncResult, error)
}

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	db       *gorm.DB
	cfg      config.JobConfig
	alerter  Alerter
	sessions oauth.SessionStore
	syncer   HeartRateSyncer
	log      *zap.Logger

	mu        sync.Mutex
	reminders map[int]cron.EntryID
}

// NewScheduler creates a new job scheduler. syncer may be nil when the
// wearable connector is disabled.
func NewScheduler(db *gorm.DB, cfg config.JobConfig, alerter Alerter, sessions oauth.SessionStore, syncer HeartRateSyncer, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		db:        db,
		cfg:       cfg,
		alerter:   alerter,
		sessions:  sessions,
		syncer:    syncer,
		log:       log.Named("jobs"),
		reminders: make(map[int]cron.EntryID),
	}
}

// Start registers the fixed jobs and every active reminder, then starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	// Expire abandoned wearable logins every 10 minutes
	if _, err := s.cron.AddFunc("*/10 * * * *", s.cleanupSessions); err != nil {
		return err
	}

	// Drop old heart-rate samples daily at 3:14 AM
	if _, err := s.cron.AddFunc("14 3 * * *", s.cleanupOldSamples); err != nil {
		return err
	}

	if s.syncer != nil && s.cfg.SyncSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, s.syncToday); err != nil {
			return fmt.Errorf("invalid SYNC_SCHEDULE: %w", err)
		}
	}

	var reminders []models.MedicineReminder
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&reminders).Error; err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}
	for i := range reminders {
		if err := s.ScheduleReminder(&reminders[i]); err != nil {
			s.log.Warn("Skipping reminder", zap.Int("reminder_id", reminders[i].ID), zap.Error(err))
		}
	}

	s.cron.Start()
	s.log.Info("Job scheduler started", zap.Int("reminders", len(reminders)))
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Job scheduler stopped")
}

// ScheduleReminder (re)registers a daily reminder
func (s *Scheduler) ScheduleReminder(r *models.MedicineReminder) error {
	if err := r.Validate(); err != nil {
		return err
	}

	reminder := *r
	id, err := s.cron.AddFunc(reminder.CronSpec(), func() {
		s.runReminder(&reminder)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.reminders[r.ID]; ok {
		s.cron.Remove(prev)
	}
	s.reminders[r.ID] = id
	return nil
}

// UnscheduleReminder removes a reminder; unknown ids are ignored
func (s *Scheduler) UnscheduleReminder(reminderID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.reminders[reminderID]; ok {
		s.cron.Remove(id)
		delete(s.reminders, reminderID)
	}
}

// NextReminder returns the next fire time of a scheduled reminder
func (s *Scheduler) NextReminder(reminderID int) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.reminders[reminderID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if !entry.Next.IsZero() {
		return entry.Next, true
	}
	// not started yet
	return entry.Schedule.Next(time.Now()), true
}

func (s *Scheduler) runReminder(r *models.MedicineReminder) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	out, err := s.alerter.Alert(ctx, models.EventMedicineReminder, r.Message())
	if err != nil {
		s.log.Error("Failed to send medicine reminder", zap.Int("reminder_id", r.ID), zap.Error(err))
		return
	}
	s.log.Info("Medicine reminder sent", zap.Int("reminder_id", r.ID), zap.String("status", out.Event.Status))
}

func (s *Scheduler) cleanupSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	oauth.CleanupExpiredSessions(ctx, s.sessions, s.log)
}

func (s *Scheduler) syncToday() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	res, err := s.syncer.Sync(ctx, time.Now())
	if err != nil {
		s.log.Warn("Scheduled heart-rate sync failed", zap.Error(err))
		return
	}
	s.log.Info("Scheduled heart-rate sync finished", zap.Int("fetched", res.Fetched))
}

// cleanupOldSamples removes heart-rate samples past the retention window
func (s *Scheduler) cleanupOldSamples() {
	days := s.cfg.SampleRetentionDays
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	result := s.db.Where("recorded_at < ?", cutoff).Delete(&models.HeartRateSample{})
	if result.Error != nil {
		s.log.Error("Failed to cleanup old heart-rate samples", zap.Error(result.Error))
		return
	}

	s.log.Info("Cleaned up old heart-rate samples", zap.Int64("count", result.RowsAffected))
}
