package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/config"
	"github.com/fuomag9/swasthya-link/internal/wearable"
)

// Deps are the services the HTTP layer routes to. Wearable and Syncer are
// nil when the wearable connector is disabled.
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Alerts      Alerter
	Scheduler   ReminderScheduler
	Broadcaster Broadcaster
	WebSocket   http.HandlerFunc
	Wearable    *wearable.Manager
	Syncer      *wearable.Syncer
}

// NewRouter creates a new HTTP router. ctx bounds background housekeeping.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	cfg := d.Config
	log := d.Log.Named("http")
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg.Environment == "production"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	general := NewRateLimiter(rate.Limit(20), 40)
	general.CleanupOldLimiters(ctx)
	strict := NewRateLimiter(rate.Every(12*time.Second), 5)
	strict.CleanupOldLimiters(ctx)

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(general, "Rate limit exceeded. Please try again later."))

		r.With(RateLimitMiddleware(strict, "Too many attempts. Please try again later.")).
			Post("/auth/login", HandleLogin(cfg, log))

		if d.Wearable != nil {
			r.With(RateLimitMiddleware(strict, "Too many attempts. Please try again later.")).
				Get("/wearable/callback", HandleWearableCallback(d.Wearable, log))
		}

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret))

			r.Route("/wearable", func(r chi.Router) {
				if d.Wearable == nil {
					r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
						writeError(w, http.StatusNotFound, "wearable_disabled", "Wearable connector is not configured")
					})
					return
				}
				r.Get("/status", HandleWearableStatus(d.Wearable, log))
				r.Post("/authorize", HandleWearableAuthorize(d.Wearable, log))
				r.Post("/refresh", HandleWearableRefresh(d.Wearable, log))
				r.Delete("/token", HandleWearableDisconnect(d.Wearable, log))
				r.Post("/sync", HandleWearableSync(d.Syncer, log))
			})

			r.Post("/vitals", HandleCreateVitals(d.DB, d.Alerts, d.Broadcaster, log))
			r.Get("/vitals", HandleGetVitals(d.DB))

			r.Post("/emergency", HandleTriggerEmergency(d.Alerts, log))
			r.Get("/emergency/events", HandleGetEmergencyEvents(d.Alerts))

			r.Get("/reminders", HandleGetReminders(d.DB, d.Scheduler))
			r.Post("/reminders", HandleCreateReminder(d.DB, d.Scheduler, d.Alerts, log))
			r.Delete("/reminders/{id}", HandleDeleteReminder(d.DB, d.Scheduler))

			r.Get("/travel/advisories", HandleGetTravelAdvisories())
		})
	})

	if d.WebSocket != nil {
		r.Get("/ws", d.WebSocket)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
